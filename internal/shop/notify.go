package shop

import (
	"time"

	kafkax "github.com/eamaze/shopcore/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// EventSink is the fire-and-forget notification surface. A publish failure
// must never roll back the state change that caused it.
type EventSink interface {
	Publish(eventType, correlationID string, payload any)
}

// KafkaNotifier publishes envelopes to the notifications topic.
type KafkaNotifier struct {
	Producer *kafkax.Producer
	Service  string
}

func (n *KafkaNotifier) Publish(eventType, correlationID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.Service,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	n.Producer.Publish(PartitionKey(correlationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// NopSink drops events; used where no broker is wired.
type NopSink struct{}

func (NopSink) Publish(string, string, any) {}
