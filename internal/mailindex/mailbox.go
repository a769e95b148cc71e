package mailindex

import (
	"context"
	"log/slog"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxindex/internal/events"
	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
)

// Mailbox is the provider surface used for indexing, hydration and search.
// *gmail.Client implements it.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, query string, includeSpamTrash bool, limit int) ([]string, int64, error)
	GetMetadata(ctx context.Context, id string, headers ...string) (*gmailapi.Message, error)
	GetFull(ctx context.Context, id string) (*gmailapi.Message, error)
}

// Option configures an Indexer, Hydrator or Searcher.
type Option func(*deps)

type deps struct {
	publisher events.Publisher
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func newDeps(opts []Option) deps {
	d := deps{
		publisher: events.Noop{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithPublisher publishes completion events through p.
func WithPublisher(p events.Publisher) Option {
	return func(d *deps) {
		if p != nil {
			d.publisher = p
		}
	}
}

// WithMetrics records row counts.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *deps) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// publish sends an event. Failures are logged and otherwise ignored since
// the work it describes has already been persisted.
func (d deps) publish(ctx context.Context, eventType string, data any) {
	ev, err := events.New(eventType, data, d.now())
	if err == nil {
		err = d.publisher.Publish(ctx, ev)
	}
	if err != nil {
		d.logger.WarnContext(ctx, "failed to publish event",
			slog.String("event_type", eventType),
			logging.Err(err))
	}
}
