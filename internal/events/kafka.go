package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"namehaus/pkg/domain"
)

// RecordProducer is the transport port the Kafka sink publishes through.
type RecordProducer interface {
	Produce(ctx context.Context, key, value []byte, onErr func(error))
}

// wireEvent is the JSON shape published to the event topic.
type wireEvent struct {
	Name      string    `json:"name"`
	At        time.Time `json:"at"`
	TokenID   string    `json:"token_id,omitempty"`
	Label     string    `json:"label,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	AmountWei string    `json:"amount_wei,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// KafkaEmitter publishes each signal to the event topic, keyed by token so a
// consumer sees one name's history in partition order. Publishing is
// fire-and-forget: delivery failures are logged and never surface to the
// operation that emitted.
type KafkaEmitter struct {
	producer RecordProducer
	logger   *slog.Logger
}

func NewKafkaEmitter(producer RecordProducer, logger *slog.Logger) *KafkaEmitter {
	return &KafkaEmitter{producer: producer, logger: logger}
}

func (k *KafkaEmitter) Emit(event Event) {
	wire := wireEvent{
		Name:      string(event.Name),
		At:        event.At,
		Label:     event.Label,
		RequestID: event.RequestID,
	}
	if event.TokenID != (domain.TokenID{}) {
		wire.TokenID = event.TokenID.Hex()
	}
	if !event.Actor.IsZero() {
		wire.Actor = event.Actor.Hex()
	}
	if event.Amount != nil {
		wire.AmountWei = event.Amount.String()
	}

	value, err := json.Marshal(wire)
	if err != nil {
		if k.logger != nil {
			k.logger.Error("failed to encode event", "event", wire.Name, "error", err)
		}
		return
	}
	key := []byte(wire.TokenID)
	if len(key) == 0 {
		key = []byte(wire.Name)
	}
	k.producer.Produce(context.Background(), key, value, func(err error) {
		if k.logger != nil {
			k.logger.Error("failed to publish event", "event", wire.Name, "error", err)
		}
	})
}
