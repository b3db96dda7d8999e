package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/exactly/protocol-sub001/internal/observability"
)

// PriceFeedSubscriber subscribes to NATS JetStream price subjects and feeds
// raw quotes into the shell via quoteChan. NATS is the only ingestion surface
// for oracle prices; account commands arrive over HTTP.
type PriceFeedSubscriber struct {
	js        jetstream.JetStream
	quoteChan chan<- RawQuote
	consumers []jetstream.ConsumeContext
}

// RawQuote is a price message pulled off NATS, not yet validated.
type RawQuote struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the quote reaches the engine
	NakFunc   func() // NAK on failure (redelivered)
}

// SubjectConfig maps a NATS subject to a durable consumer.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard price-feed subject configuration.
// Quotes are published per asset: lend.prices.{asset}.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "lend.prices.>", ConsumerName: "ledger-prices", StreamName: "LEND_PRICES"},
	}
}

func NewPriceFeedSubscriber(js jetstream.JetStream, quoteChan chan<- RawQuote) *PriceFeedSubscriber {
	return &PriceFeedSubscriber{
		js:        js,
		quoteChan: quoteChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s. Quotes are ACKed
// only after they are queued for the engine, so a crash between delivery and
// queueing redelivers the quote; the engine's stale-sequence check makes the
// redelivery harmless.
func (ps *PriceFeedSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	log := observability.NewLogger("ingestion")

	for _, cfg := range subjects {
		consumer, err := ps.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawQuote{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ps.quoteChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ps.consumers = append(ps.consumers, consumerContext)
		log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	log := observability.NewLogger("ingestion")

	streams := []jetstream.StreamConfig{
		{
			Name:      "LEND_PRICES",
			Subjects:  []string{"lend.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ps *PriceFeedSubscriber) Stop() {
	for _, cc := range ps.consumers {
		cc.Stop()
	}
	log := observability.NewLogger("ingestion")
	log.Info().Msg("price feed subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("ingestion")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
