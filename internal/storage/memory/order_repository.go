package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository с теми же
// гарантиями, что и у PostgreSQL-версии: optimistic locking по Version и
// уникальность transaction id провайдера.
type orderRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Order
	// txns отображает transaction id провайдера на ID заказа (уникальный индекс).
	txns map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
		txns:  make(map[string]string),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if err := r.claimTransaction(order); err != nil {
		return err
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByUser возвращает заказы пользователя, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByUser(userID string, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.UserID != userID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking) и
// уникальность transaction id провайдера.
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	if err := r.claimTransaction(order); err != nil {
		return err
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// claimTransaction регистрирует transaction id заказа в уникальном индексе.
func (r *orderRepositoryInMemory) claimTransaction(order domain.Order) error {
	txn := order.Payment.TransactionID
	if txn == "" {
		return nil
	}
	if owner, taken := r.txns[txn]; taken && owner != order.ID {
		return domain.ErrTransactionIDTaken
	}
	r.txns[txn] = order.ID
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	if src.Payment.PaidAt != nil {
		paidAt := *src.Payment.PaidAt
		dst.Payment.PaidAt = &paidAt
	}
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
