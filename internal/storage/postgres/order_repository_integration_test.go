package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func makeStoredOrder() domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	return domain.Order{
		ID:       id,
		UserID:   "user-1",
		Status:   domain.OrderStatusPending,
		Currency: "USD",
		Items: []domain.OrderItem{
			{ID: uuid.NewString(), ProductID: "prod-1", Qty: 2, UnitPriceMinor: 1000, CreatedAt: now},
			{ID: uuid.NewString(), ProductID: "prod-2", Qty: 1, UnitPriceMinor: 500, CreatedAt: now},
		},
		Shipping: domain.ShippingAddress{
			Line1:      "1 Main st",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		Contact: domain.ContactInfo{
			Name:  "John Doe",
			Email: "john@example.com",
		},
		SubtotalMinor: 2500,
		TotalMinor:    2500,
		Payment: domain.PaymentInfo{
			Method: domain.PaymentMethodCreditCard,
			Status: domain.PaymentStatusPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepositoryIntegration_CreateGet(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := makeStoredOrder()
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.TotalMinor != 2500 {
		t.Fatalf("expected total 2500, got %d", stored.TotalMinor)
	}
	if len(stored.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stored.Items))
	}
	if stored.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", stored.Payment.Status)
	}
}

func TestOrderRepositoryIntegration_SaveVersionConflict(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := makeStoredOrder()
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second := first

	now := time.Now().UTC()
	first.Payment.Status = domain.PaymentStatusCompleted
	first.Payment.TransactionID = "pi_" + uuid.NewString()
	first.Payment.PaidAt = &now
	first.Status = domain.OrderStatusProcessing
	first.UpdatedAt = now
	if err := repo.Save(first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	second.Payment.Status = domain.PaymentStatusCompleted
	second.Payment.TransactionID = "pi_" + uuid.NewString()
	second.UpdatedAt = now
	if err := repo.Save(second); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestOrderRepositoryIntegration_TransactionIDUnique(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	txn := "pi_" + uuid.NewString()
	now := time.Now().UTC()

	first := makeStoredOrder()
	if err := repo.Create(first); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second := makeStoredOrder()
	if err := repo.Create(second); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	a, _ := repo.Get(first.ID)
	a.Payment.Status = domain.PaymentStatusCompleted
	a.Payment.TransactionID = txn
	a.Payment.PaidAt = &now
	a.UpdatedAt = now
	if err := repo.Save(a); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	b, _ := repo.Get(second.ID)
	b.Payment.Status = domain.PaymentStatusCompleted
	b.Payment.TransactionID = txn
	b.Payment.PaidAt = &now
	b.UpdatedAt = now
	if err := repo.Save(b); !errors.Is(err, domain.ErrTransactionIDTaken) {
		t.Fatalf("expected ErrTransactionIDTaken, got %v", err)
	}
}

func TestOrderRepositoryIntegration_ListByUser(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	if err := repo.Create(makeStoredOrder()); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(makeStoredOrder()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	orders, err := repo.ListByUser("user-1", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
}
