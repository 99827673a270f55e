package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// CartStore — in-memory реализация CartService. В бою корзиной владеет
// внешний сервис; здесь она нужна для разработки и тестов.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartStore возвращает пустое хранилище корзин.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]domain.Cart)}
}

// SetCart записывает корзину пользователя (seed для тестов и демо).
func (s *CartStore) SetCart(cart domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart.UpdatedAt = time.Now().UTC()
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	s.carts[cart.UserID] = cart
}

// GetCart возвращает корзину пользователя или ErrCartNotFound.
func (s *CartStore) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	return cart, nil
}

// ClearCart удаляет корзину пользователя. Отсутствие корзины не считается ошибкой.
func (s *CartStore) ClearCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, userID)
	return nil
}

var _ domain.CartService = (*CartStore)(nil)
