package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-parcel/internal/models"
)

// Event types the notification consumers react to (emails, SMS, push).
const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingRejected  = "booking_rejected"
	EventPaymentReceived  = "payment_received"
	EventBookingDelivered = "booking_delivered"
	EventBookingPickedUp  = "booking_picked_up"
	EventBookingCancelled = "booking_cancelled"
	EventPayoutCompleted  = "payout_completed"
)

// BookingEvent is the envelope published on every lifecycle transition.
// Delivery is best-effort: the engine never fails a transition because a
// notification could not be published.
type BookingEvent struct {
	Type      string               `json:"type"`
	BookingID string               `json:"booking_id"`
	Status    models.BookingStatus `json:"status"`
	Actor     string               `json:"actor,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Amount    int64                `json:"amount,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: brokers,
		Topic:   topic,
	})
	return &Producer{Writer: writer}
}

// PublishBookingEvent streams a lifecycle event to Kafka
func (p *Producer) PublishBookingEvent(event BookingEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.BookingID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
