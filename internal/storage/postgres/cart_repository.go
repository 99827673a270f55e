package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type cartRepository struct {
	store *Store
}

// NewCartRepository создаёт PostgreSQL-реализацию CartService поверх таблицы cart_items.
func NewCartRepository(store *Store) domain.CartService {
	return &cartRepository{store: store}
}

func (r *cartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.DB().QueryContext(queryCtx, `
		SELECT product_id, qty, unit_price_minor, currency, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at ASC, product_id ASC
	`, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	cart := domain.Cart{UserID: userID}
	var latest time.Time
	for rows.Next() {
		var (
			item     domain.CartItem
			currency string
		)
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.UnitPriceMinor, &currency, &item.AddedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Currency = currency
		cart.Items = append(cart.Items, item)
		if item.AddedAt.After(latest) {
			latest = item.AddedAt
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}

	if len(cart.Items) == 0 {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	cart.UpdatedAt = latest

	return cart, nil
}

func (r *cartRepository) ClearCart(ctx context.Context, userID string) error {
	execCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.DB().ExecContext(execCtx, `
		DELETE FROM cart_items WHERE user_id = $1
	`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	return nil
}

var _ domain.CartService = (*cartRepository)(nil)
