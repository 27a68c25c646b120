package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/warp/brokerage-engine/config"
	"github.com/warp/brokerage-engine/engine"
)

// Connect opens a NATS connection with the reconnect policy from cfg.
func Connect(cfg config.NATSConfig, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// =============================================================================
// PUBLISHER
// =============================================================================

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is an engine.CommissionDispatcher that hands payment completions
// to NATS. Publishing is at-most-once; the commission backfill recovers
// anything lost.
type Publisher struct {
	conn    Conn
	subject string
	log     zerolog.Logger
}

func NewPublisher(conn Conn, subject string, log zerolog.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject, log: log}
}

func (p *Publisher) Dispatch(_ context.Context, ev engine.PaymentCompletedEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode payment event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.log.Debug().
		Str("subject", p.subject).
		Str("payment_id", string(ev.PaymentID)).
		Msg("payment completion published")
	return nil
}

var _ engine.CommissionDispatcher = (*Publisher)(nil)

// =============================================================================
// SUBSCRIBER
// =============================================================================

// Generator is the commission entry point the subscriber feeds.
type Generator interface {
	HandlePaymentCompleted(ctx context.Context, ev engine.PaymentCompletedEvent) (*engine.Commission, error)
}

// Subscriber consumes payment completions and generates commissions. With a
// queue group, each event is handled by one subscriber process.
type Subscriber struct {
	nc        *nats.Conn
	subject   string
	queue     string
	generator Generator
	log       zerolog.Logger
}

func NewSubscriber(nc *nats.Conn, cfg config.NATSConfig, generator Generator, log zerolog.Logger) *Subscriber {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &Subscriber{nc: nc, subject: subject, queue: cfg.Queue, generator: generator, log: log}
}

// Start subscribes and blocks until ctx is done.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, func(msg *nats.Msg) {
		s.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}

	s.log.Info().Str("subject", s.subject).Str("queue", s.queue).Msg("NATS subscriber started")

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		s.log.Warn().Err(err).Msg("NATS drain failed")
	}
	return ctx.Err()
}

func (s *Subscriber) handleMessage(ctx context.Context, msg *nats.Msg) {
	if err := s.Handle(context.WithoutCancel(ctx), msg.Data); err != nil {
		s.log.Error().Err(err).Str("subject", msg.Subject).Msg("payment event not processed")
	}
}

// Handle decodes one message and generates its commission in the company
// scope the event names.
func (s *Subscriber) Handle(ctx context.Context, data []byte) error {
	ev, err := Decode(data)
	if err != nil {
		return err
	}
	return engine.RunAsTenant(ctx, engine.Tenant{CompanyID: ev.CompanyID}, func(ctx context.Context) error {
		c, err := s.generator.HandlePaymentCompleted(ctx, ev)
		if err != nil {
			return fmt.Errorf("generate commission for payment %s: %w", ev.PaymentID, err)
		}
		if c == nil {
			s.log.Debug().Str("payment_id", string(ev.PaymentID)).Msg("no commission generated")
		}
		return nil
	})
}
