package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const clientID = "checkout-service"

// Producer публикует события checkout в Kafka. Все события идут в один
// топик, ключ — order id, чтобы события одного заказа попадали в одну
// партицию и сохраняли порядок.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer создаёт синхронный идемпотентный producer.
func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентность требует не более одного запроса в полёте.
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

// PublishOrderEvent публикует событие заказа в TopicOrderEvents с ключом
// по order id и заголовком event_type для фильтрации на стороне consumer.
func (p *Producer) PublishOrderEvent(event *OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicOrderEvents,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
		},
		Timestamp: event.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"event_type": event.EventType,
			"order_id":   event.OrderID,
		}).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"event_type": event.EventType,
		"order_id":   event.OrderID,
		"partition":  partition,
		"offset":     offset,
	}).Debug("order event sent to kafka")

	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
