package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishOrderEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var event OrderEvent
		return json.Unmarshal(value, &event)
	})

	event := NewOrderEvent(
		EventTypeOrderCreated,
		"order-123",
		"user-1",
		"pending",
		map[string]interface{}{
			"total_minor": 2500,
		},
	)

	if err := producer.PublishOrderEvent(event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishOrderEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypePaymentCompleted, "order-123", "user-1", "processing", nil)

	if err := producer.PublishOrderEvent(event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	metadata := map[string]interface{}{
		"total_minor": 2500,
	}

	event := NewOrderEvent(EventTypeOrderCreated, "order-123", "user-1", "pending", metadata)

	if event.EventType != EventTypeOrderCreated {
		t.Errorf("expected event type %s, got %s", EventTypeOrderCreated, event.EventType)
	}

	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}

	if event.UserID != "user-1" {
		t.Errorf("expected user id user-1, got %s", event.UserID)
	}

	if event.Status != "pending" {
		t.Errorf("expected status pending, got %s", event.Status)
	}

	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}

	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}
