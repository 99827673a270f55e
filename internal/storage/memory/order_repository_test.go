package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func newOrder(id string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:       id,
		UserID:   "user-1",
		Status:   domain.OrderStatusPending,
		Currency: "USD",
		Items: []domain.OrderItem{
			{ID: id + "-item-1", ProductID: "prod-1", Qty: 2, UnitPriceMinor: 1000, CreatedAt: now},
		},
		SubtotalMinor: 2000,
		TotalMinor:    2000,
		Payment: domain.PaymentInfo{
			Method: domain.PaymentMethodCreditCard,
			Status: domain.PaymentStatusPending,
		},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1")

	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
	}
	if stored.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", stored.Payment.Status)
	}
}

func TestOrderRepository_ListByUser(t *testing.T) {
	repo := memory.NewOrderRepository()
	if err := repo.Create(newOrder("order-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(newOrder("order-2")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	orders, err := repo.ListByUser("user-1", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	orders, err = repo.ListByUser("user-2", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected 0 orders for another user, got %d", len(orders))
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	first.Payment.Status = domain.PaymentStatusCompleted
	first.Payment.TransactionID = "pi_1"
	if err := repo.Save(first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	// Вторая копия несёт устаревшую версию и должна получить конфликт.
	second.Payment.Status = domain.PaymentStatusCompleted
	second.Payment.TransactionID = "pi_2"
	if err := repo.Save(second); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Payment.TransactionID != "pi_1" {
		t.Fatalf("expected transaction pi_1 to win, got %s", stored.Payment.TransactionID)
	}
}

func TestOrderRepository_TransactionIDUnique(t *testing.T) {
	repo := memory.NewOrderRepository()
	if err := repo.Create(newOrder("order-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(newOrder("order-2")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := repo.Get("order-1")
	first.Payment.Status = domain.PaymentStatusCompleted
	first.Payment.TransactionID = "pi_shared"
	if err := repo.Save(first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second, _ := repo.Get("order-2")
	second.Payment.Status = domain.PaymentStatusCompleted
	second.Payment.TransactionID = "pi_shared"
	if err := repo.Save(second); !errors.Is(err, domain.ErrTransactionIDTaken) {
		t.Fatalf("expected ErrTransactionIDTaken, got %v", err)
	}
}

func TestOrderRepository_GetNotFound(t *testing.T) {
	repo := memory.NewOrderRepository()
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
