package mailindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxindex/internal/events"
	"github.com/teemow/inboxindex/internal/gmail"
	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
)

const hydrateBatchSize = 100

var (
	// storedHeaders is the header subset persisted with each message.
	storedHeaders = []string{"From", "To", "Subject", "Date", "Message-ID"}

	// metadataHeaders are requested when bodies are not fetched.
	metadataHeaders = []string{"From", "To", "Subject", "Date"}
)

// ErrInvalidDay is returned for a day that is not formatted as YYYY-MM-DD
// or a range whose start is after its end.
var ErrInvalidDay = errors.New("invalid day")

// HydrateOptions configures hydration.
type HydrateOptions struct {
	// FetchBodies fetches full messages and decodes their body. Without
	// it only metadata is fetched and the raw provider JSON is stored.
	FetchBodies bool
}

// Hydrator fills the message store from the index, one UTC day at a time.
type Hydrator struct {
	mailbox Mailbox
	store   *Store
	deps
}

// NewHydrator creates a hydrator.
func NewHydrator(mailbox Mailbox, store *Store, opts ...Option) *Hydrator {
	h := &Hydrator{mailbox: mailbox, store: store, deps: newDeps(opts)}
	h.logger = logging.WithComponent(h.logger, "hydrator")
	return h
}

// ParseDay validates a day bucket.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDay, day)
	}
	return t, nil
}

// HydrateDay fetches every message indexed on day and upserts it. It
// returns the number of messages written. Re-running a day overwrites the
// same rows.
func (h *Hydrator) HydrateDay(ctx context.Context, day string, opts HydrateOptions) (int, error) {
	ctx, span := instrumentation.StartSpan(ctx, "mailindex.hydrate_day",
		attribute.String(instrumentation.SpanAttrDay, day))
	n, err := h.hydrateDay(ctx, day, opts)
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrCount, n))
	instrumentation.EndSpan(span, err)
	return n, err
}

func (h *Hydrator) hydrateDay(ctx context.Context, day string, opts HydrateOptions) (int, error) {
	if _, err := ParseDay(day); err != nil {
		return 0, err
	}
	logger := logging.WithOperation(h.logger, "hydrate")

	entries, err := h.store.IndexedOn(ctx, day)
	if err != nil {
		return 0, err
	}

	count := 0
	batch := make([]StoredMessage, 0, hydrateBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := h.store.UpsertMessages(ctx, batch); err != nil {
			return err
		}
		h.metrics.RecordHydratedMessages(ctx, len(batch))
		count += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, e := range entries {
		msg, err := h.fetch(ctx, e, opts)
		if err != nil {
			logger.ErrorContext(ctx, "hydration failed", logging.Day(day), logging.Err(err))
			return count, err
		}
		batch = append(batch, msg)
		if len(batch) >= hydrateBatchSize {
			if err := flush(); err != nil {
				return count, err
			}
		}
	}
	if err := flush(); err != nil {
		return count, err
	}

	logger.InfoContext(ctx, "day hydrated",
		logging.Day(day),
		logging.Count(count),
		slog.Bool("fetch_bodies", opts.FetchBodies))

	h.publish(ctx, events.TypeDayHydrated, events.DayHydrated{
		Day:         day,
		Messages:    count,
		FetchBodies: opts.FetchBodies,
	})
	return count, nil
}

func (h *Hydrator) fetch(ctx context.Context, e IndexEntry, opts HydrateOptions) (StoredMessage, error) {
	var (
		msg = StoredMessage{ID: e.ID}
		err error
	)

	if opts.FetchBodies {
		full, ferr := h.mailbox.GetFull(ctx, e.ID)
		if ferr != nil {
			return msg, fmt.Errorf("failed to fetch message %s: %w", e.ID, ferr)
		}
		body := gmail.ExtractBody(full.Payload)
		msg.BodyFull = &body
		fill(&msg, e, full.ThreadId, full.InternalDate, full.Snippet)
		msg.Headers = gmail.Headers(full, storedHeaders...)
		return msg, nil
	}

	meta, ferr := h.mailbox.GetMetadata(ctx, e.ID, metadataHeaders...)
	if ferr != nil {
		return msg, fmt.Errorf("failed to fetch message %s: %w", e.ID, ferr)
	}
	fill(&msg, e, meta.ThreadId, meta.InternalDate, meta.Snippet)
	msg.Headers = gmail.Headers(meta, storedHeaders...)
	msg.RawJSON, err = meta.MarshalJSON()
	if err != nil {
		return msg, fmt.Errorf("failed to encode message %s: %w", e.ID, err)
	}
	return msg, nil
}

// fill copies provider fields, falling back to the index entry.
func fill(msg *StoredMessage, e IndexEntry, threadID string, internalMS int64, snippet string) {
	msg.ThreadID = threadID
	if msg.ThreadID == "" {
		msg.ThreadID = e.ThreadID
	}
	msg.InternalMS = internalMS
	if msg.InternalMS == 0 {
		msg.InternalMS = e.InternalMS
	}
	msg.Snippet = snippet
}

// HydrateRange hydrates every day from from to to inclusive and returns
// the total message count. It stops at the first failing day.
func (h *Hydrator) HydrateRange(ctx context.Context, from, to string, opts HydrateOptions) (int, error) {
	start, err := ParseDay(from)
	if err != nil {
		return 0, err
	}
	end, err := ParseDay(to)
	if err != nil {
		return 0, err
	}
	if start.After(end) {
		return 0, fmt.Errorf("%w range: %s is after %s", ErrInvalidDay, from, to)
	}

	total := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := h.HydrateDay(ctx, d.Format(DayLayout), opts)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
