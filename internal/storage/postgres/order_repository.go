package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	opTimeout = 5 * time.Second

	paymentTxnIndexName = "uq_orders_payment_txn_id"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `
	id, user_id, status, currency,
	subtotal_minor, shipping_fee_minor, tax_minor, total_minor,
	ship_line1, ship_line2, ship_city, ship_postal_code, ship_country,
	contact_name, contact_email, contact_phone,
	payment_method, payment_status, payment_txn_id, paid_at,
	intent_id, version, created_at, updated_at
`

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`,
		order.ID, order.UserID, string(order.Status), order.Currency,
		order.SubtotalMinor, order.ShippingFeeMinor, order.TaxMinor, order.TotalMinor,
		order.Shipping.Line1, order.Shipping.Line2, order.Shipping.City,
		order.Shipping.PostalCode, order.Shipping.Country,
		order.Contact.Name, order.Contact.Email, order.Contact.Phone,
		string(order.Payment.Method), string(order.Payment.Status),
		nullableString(order.Payment.TransactionID), nullableTime(order.Payment.PaidAt),
		order.IntentID, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isTxnUniqueViolation(err) {
			return domain.ErrTransactionIDTaken
		}
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, qty, unit_price_minor, created_at
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			item.ID, order.ID, item.ProductID, item.Qty, item.UnitPriceMinor, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) ListByUser(userID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		items, err := r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

// Save обновляет заказ условной записью: совпадение версии обязательно,
// нарушение уникальности payment_txn_id отражается отдельной ошибкой.
// Позиции заказа после создания не переписываются.
func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_method = $2,
		    payment_status = $3,
		    payment_txn_id = $4,
		    paid_at = $5,
		    intent_id = $6,
		    subtotal_minor = $7,
		    shipping_fee_minor = $8,
		    tax_minor = $9,
		    total_minor = $10,
		    version = version + 1,
		    updated_at = $11
		WHERE id = $12
		  AND version = $13
	`,
		string(order.Status),
		string(order.Payment.Method),
		string(order.Payment.Status),
		nullableString(order.Payment.TransactionID),
		nullableTime(order.Payment.PaidAt),
		order.IntentID,
		order.SubtotalMinor,
		order.ShippingFeeMinor,
		order.TaxMinor,
		order.TotalMinor,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		if isTxnUniqueViolation(err) {
			return domain.ErrTransactionIDTaken
		}
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, qty, unit_price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.UnitPriceMinor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		method string
		pstat  string
		txnID  sql.NullString
		paidAt sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.UserID, &status, &order.Currency,
		&order.SubtotalMinor, &order.ShippingFeeMinor, &order.TaxMinor, &order.TotalMinor,
		&order.Shipping.Line1, &order.Shipping.Line2, &order.Shipping.City,
		&order.Shipping.PostalCode, &order.Shipping.Country,
		&order.Contact.Name, &order.Contact.Email, &order.Contact.Phone,
		&method, &pstat, &txnID, &paidAt,
		&order.IntentID, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Payment.Method = domain.PaymentMethod(method)
	order.Payment.Status = domain.PaymentStatus(pstat)
	if txnID.Valid {
		order.Payment.TransactionID = txnID.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		order.Payment.PaidAt = &t
	}

	return order, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isTxnUniqueViolation распознаёт нарушение уникального индекса по транзакции провайдера.
func isTxnUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == paymentTxnIndexName
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
