package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/payment"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

type fixture struct {
	orders   domain.OrderRepository
	provider *payment.MockProvider
	carts    *memory.CartStore
	timeline domain.TimelineRepository
	svc      *Service
}

func newFixture() *fixture {
	orders := memory.NewOrderRepository()
	provider := payment.NewMockProvider()
	carts := memory.NewCartStore()
	timeline := memory.NewTimelineRepository()
	return &fixture{
		orders:   orders,
		provider: provider,
		carts:    carts,
		timeline: timeline,
		svc:      NewServiceWithoutMetrics(orders, provider, carts, timeline, nil),
	}
}

func (f *fixture) seedOrder(t *testing.T, userID string) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	order := domain.Order{
		ID:       uuid.NewString(),
		UserID:   userID,
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
	if err := f.orders.Create(order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// seedIntent создаёт intent у mock-провайдера с привязкой к заказу.
func (f *fixture) seedIntent(t *testing.T, order domain.Order, status domain.IntentStatus) domain.PaymentIntent {
	t.Helper()

	intent, err := f.provider.CreateIntent(context.Background(), domain.CreateIntentRequest{
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		Metadata: map[string]string{
			domain.MetadataOrderID: order.ID,
			domain.MetadataUserID:  order.UserID,
		},
	})
	if err != nil {
		t.Fatalf("seed intent: %v", err)
	}
	f.provider.SetStatus(intent.ID, status)
	intent.Status = status
	return intent
}

func TestApplySucceeded(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")

	got, err := f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_1")
	if err != nil {
		t.Fatalf("ApplySucceeded failed: %v", err)
	}

	if got.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected completed payment, got %s", got.Payment.Status)
	}
	if got.Payment.TransactionID != "pi_txn_1" {
		t.Errorf("expected txn pi_txn_1, got %s", got.Payment.TransactionID)
	}
	if got.Payment.PaidAt == nil {
		t.Error("expected PaidAt to be set")
	}
	if got.Status != domain.OrderStatusProcessing {
		t.Errorf("expected processing order, got %s", got.Status)
	}

	stored, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("transition not persisted: %s", stored.Payment.Status)
	}
}

func TestApplySucceeded_IdempotentReplay(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")

	first, err := f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_1")
	if err != nil {
		t.Fatalf("first ApplySucceeded failed: %v", err)
	}

	second, err := f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_1")
	if err != nil {
		t.Fatalf("replay must be a no-op success, got %v", err)
	}

	if second.Payment.TransactionID != first.Payment.TransactionID {
		t.Errorf("replay changed txn: %s vs %s", second.Payment.TransactionID, first.Payment.TransactionID)
	}
	if !second.Payment.PaidAt.Equal(*first.Payment.PaidAt) {
		t.Errorf("replay changed PaidAt: %v vs %v", second.Payment.PaidAt, first.Payment.PaidAt)
	}
	if second.Version != first.Version {
		t.Errorf("replay must not bump version: %d vs %d", second.Version, first.Version)
	}
}

func TestApplySucceeded_ConflictDifferentTxn(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")

	first, err := f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_1")
	if err != nil {
		t.Fatalf("first ApplySucceeded failed: %v", err)
	}

	_, err = f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_2")
	if !errors.Is(err, domain.ErrReconciliationConflict) {
		t.Fatalf("expected ErrReconciliationConflict, got %v", err)
	}

	// Сохранённая запись остаётся нетронутой.
	stored, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Payment.TransactionID != "pi_txn_1" {
		t.Errorf("conflict must not change recorded txn, got %s", stored.Payment.TransactionID)
	}
	if stored.Version != first.Version {
		t.Errorf("conflict must not bump version: %d vs %d", stored.Version, first.Version)
	}

	events, _ := f.timeline.List(order.ID)
	var sawConflict bool
	for _, ev := range events {
		if ev.Type == domain.TimelineEventReconcileConflict {
			sawConflict = true
		}
	}
	if !sawConflict {
		t.Error("expected ReconcileConflict timeline event")
	}
}

func TestApplySucceeded_ConflictTerminalStatus(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")

	// Платёж уже помечен проваленным другим потоком.
	stored, _ := f.orders.Get(order.ID)
	stored.Payment.Status = domain.PaymentStatusFailed
	stored.UpdatedAt = time.Now().UTC()
	if err := f.orders.Save(stored); err != nil {
		t.Fatalf("save failed order: %v", err)
	}

	_, err := f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_1")
	if !errors.Is(err, domain.ErrReconciliationConflict) {
		t.Fatalf("expected ErrReconciliationConflict, got %v", err)
	}
}

func TestApplySucceeded_ConcurrentSignals(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")

	// Подтверждение клиента и webhook приходят одновременно с одним txn.
	const concurrency = 8
	var wg sync.WaitGroup
	errs := make([]error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_1")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("signal %d failed: %v", i, err)
		}
	}

	stored, err := f.orders.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected completed, got %s", stored.Payment.Status)
	}
	if stored.Status != domain.OrderStatusProcessing {
		t.Errorf("expected processing, got %s", stored.Status)
	}
	if stored.Payment.TransactionID != "pi_txn_1" {
		t.Errorf("unexpected txn %s", stored.Payment.TransactionID)
	}
}

func TestApplySucceeded_ClearsCart(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")
	f.carts.SetCart(domain.Cart{
		UserID:   "user-1",
		Currency: "USD",
		Items:    []domain.CartItem{{ProductID: "prod-1", Qty: 1, UnitPriceMinor: 100}},
	})

	if _, err := f.svc.ApplySucceeded(context.Background(), order.ID, "pi_txn_1"); err != nil {
		t.Fatalf("ApplySucceeded failed: %v", err)
	}

	if _, err := f.carts.GetCart(context.Background(), "user-1"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Errorf("cart must be cleared after payment, got %v", err)
	}
}

func TestApplySucceeded_OrderNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ApplySucceeded(context.Background(), uuid.NewString(), "pi_txn_1")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestConfirm(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")
	intent := f.seedIntent(t, order, domain.IntentStatusSucceeded)

	got, err := f.svc.Confirm(context.Background(), intent.ID, order.ID, "user-1")
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if got.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected completed payment, got %s", got.Payment.Status)
	}
	if got.Payment.TransactionID != intent.ID {
		t.Errorf("expected txn %s, got %s", intent.ID, got.Payment.TransactionID)
	}
}

func TestConfirm_NotSucceeded(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")
	intent := f.seedIntent(t, order, domain.IntentStatusProcessing)

	_, err := f.svc.Confirm(context.Background(), intent.ID, order.ID, "user-1")
	if !errors.Is(err, domain.ErrPaymentNotCompleted) {
		t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
	}

	stored, _ := f.orders.Get(order.ID)
	if stored.Payment.Status != domain.PaymentStatusPending {
		t.Errorf("pending payment must stay pending, got %s", stored.Payment.Status)
	}
}

func TestConfirm_OwnershipMismatch(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")
	intent := f.seedIntent(t, order, domain.IntentStatusSucceeded)

	cases := []struct {
		name    string
		orderID string
		userID  string
	}{
		{name: "foreign user", orderID: order.ID, userID: "user-2"},
		{name: "foreign order", orderID: uuid.NewString(), userID: "user-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Confirm(context.Background(), intent.ID, tc.orderID, tc.userID)
			if !errors.Is(err, domain.ErrOwnershipMismatch) {
				t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
			}
		})
	}

	stored, _ := f.orders.Get(order.ID)
	if stored.Payment.Status != domain.PaymentStatusPending {
		t.Errorf("order must stay untouched, got %s", stored.Payment.Status)
	}
}

func TestConfirm_IntentNotFound(t *testing.T) {
	f := newFixture()
	order := f.seedOrder(t, "user-1")

	_, err := f.svc.Confirm(context.Background(), "pi_missing", order.ID, "user-1")
	if !errors.Is(err, domain.ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestApplySucceeded_TxnTakenByAnotherOrder(t *testing.T) {
	f := newFixture()
	first := f.seedOrder(t, "user-1")
	second := f.seedOrder(t, "user-2")

	if _, err := f.svc.ApplySucceeded(context.Background(), first.ID, "pi_shared"); err != nil {
		t.Fatalf("first ApplySucceeded failed: %v", err)
	}

	_, err := f.svc.ApplySucceeded(context.Background(), second.ID, "pi_shared")
	if !errors.Is(err, domain.ErrReconciliationConflict) {
		t.Fatalf("expected ErrReconciliationConflict, got %v", err)
	}

	stored, _ := f.orders.Get(second.ID)
	if stored.Payment.Status != domain.PaymentStatusPending {
		t.Errorf("second order must stay pending, got %s", stored.Payment.Status)
	}
}
