package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/exactly/protocol-sub001/internal/core"
	"github.com/exactly/protocol-sub001/internal/observability"
)

// OutboundPublisher streams applied ledger events to NATS for downstream
// consumers (risk dashboards, settlement, analytics). Publishing is
// best-effort: the event log in Postgres is the source of truth, and a
// consumer that missed a publish can always catch up from there.
// Subjects follow the pattern lend.ledger.events.{event_type}.{market}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	metrics   *observability.Metrics
}

// publishedEvent is the outbound wire format.
type publishedEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	MarketID       *string         `json:"market_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      []byte          `json:"state_hash"`
	PrevHash       []byte          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan core.Output, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the outbound publisher loop. Blocks until ctx is cancelled.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	log := observability.NewLogger("publisher")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, out); err != nil {
				// Non-fatal: downstream consumers can query the event log.
				log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out core.Output) error {
	env := out.Envelope

	evt := publishedEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		MarketID:       env.MarketID,
		Payload:        env.Payload,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("lend.ledger.events.%s", env.EventType)
	if env.MarketID != nil {
		subject = fmt.Sprintf("%s.%s", subject, *env.MarketID)
	}

	if _, err := op.js.Publish(ctx, subject, data); err != nil {
		return err
	}

	if op.metrics != nil {
		op.metrics.OutboundPublished.WithLabelValues(env.EventType.String()).Inc()
	}
	return nil
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEND_LEDGER_EVENTS",
		Subjects:  []string{"lend.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log := observability.NewLogger("publisher")
	log.Info().Msg("ensured outbound stream LEND_LEDGER_EVENTS")
	return nil
}
