package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/teemow/inboxindex/internal/logging"
)

// DefaultStream is the JetStream stream that holds inboxindex events.
const DefaultStream = "INBOXINDEX_EVENTS"

// jetStream is the part of nats.JetStreamContext used for publishing.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// JetStreamPublisher publishes events to NATS JetStream. The event id is
// the JetStream message id so duplicates inside the stream's window are
// dropped by the server.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetStream
	prefix string
	logger *slog.Logger
}

// Connect dials url and ensures stream exists.
func Connect(url, stream string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("inboxindex"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if err := ensureStream(js, stream); err != nil {
		nc.Close()
		return nil, err
	}

	p := newJetStreamPublisher(js, DefaultSubjectPrefix, logger)
	p.nc = nc
	return p, nil
}

func newJetStreamPublisher(js jetStream, prefix string, logger *slog.Logger) *JetStreamPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &JetStreamPublisher{
		js:     js,
		prefix: prefix,
		logger: logging.WithComponent(logger, "events"),
	}
}

func ensureStream(js nats.JetStreamContext, stream string) error {
	if info, err := js.StreamInfo(stream); err == nil && info != nil {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:       stream,
		Subjects:   []string{DefaultSubjectPrefix + ">"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", stream, err)
	}
	return nil
}

// Subject returns the subject an event type is published on.
func (p *JetStreamPublisher) Subject(eventType string) string {
	return p.prefix + eventType
}

// Publish sends ev and waits for the stream's acknowledgement.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	subject := p.Subject(ev.Type)
	if _, err := p.js.Publish(subject, payload, nats.MsgId(ev.ID), nats.Context(ctx)); err != nil {
		p.logger.WarnContext(ctx, "event publish failed",
			slog.String("subject", subject),
			logging.Err(err))
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("subject", subject),
		slog.String("event_id", ev.ID))
	return nil
}

// Close drains nothing and closes the connection.
func (p *JetStreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
