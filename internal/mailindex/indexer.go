package mailindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inboxindex/internal/events"
	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
)

const (
	// DefaultLookback is how far back a backfill reaches.
	DefaultLookback = 182 * 24 * time.Hour

	// DefaultWindowWidth is the width of one listing window.
	DefaultWindowWidth = 4 * 24 * time.Hour

	indexFlushSize = 200
)

// indexHeaders are requested with each metadata fetch.
var indexHeaders = []string{"From", "Subject", "Date"}

// ErrInvalidWindow is returned when the window width is one second or less.
var ErrInvalidWindow = errors.New("window width must exceed one second")

// IndexOptions configures one backfill run. Zero values select defaults.
type IndexOptions struct {
	Lookback         time.Duration
	WindowWidth      time.Duration
	IncludeSpamTrash bool
	// PerWindowLimit caps the IDs listed per window; 0 lists all.
	PerWindowLimit int
	Now            time.Time
}

// IndexStats summarizes a run.
type IndexStats struct {
	Windows    int `json:"windows"`
	Listed     int `json:"listed"`
	Fetched    int `json:"fetched"`
	Duplicates int `json:"duplicates"`
	Flushed    int `json:"flushed"`
}

// Indexer backfills the message index window by window.
type Indexer struct {
	mailbox Mailbox
	store   *Store
	deps
}

// NewIndexer creates an indexer.
func NewIndexer(mailbox Mailbox, store *Store, opts ...Option) *Indexer {
	ix := &Indexer{mailbox: mailbox, store: store, deps: newDeps(opts)}
	ix.logger = logging.WithComponent(ix.logger, "indexer")
	return ix
}

// Run walks [now-lookback, now] oldest first. Every ID not yet seen in
// this run has its metadata fetched and is upserted into the index in
// batches. A provider or store error aborts the run; batches flushed
// before it stay written, so the run can simply be repeated.
func (ix *Indexer) Run(ctx context.Context, opts IndexOptions) (IndexStats, error) {
	ctx, span := instrumentation.StartSpan(ctx, "mailindex.index")
	stats, err := ix.run(ctx, opts)
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrCount, stats.Flushed))
	instrumentation.EndSpan(span, err)
	return stats, err
}

func (ix *Indexer) run(ctx context.Context, opts IndexOptions) (IndexStats, error) {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.WindowWidth == 0 {
		opts.WindowWidth = DefaultWindowWidth
	}
	if opts.WindowWidth <= time.Second {
		return IndexStats{}, ErrInvalidWindow
	}
	if opts.Now.IsZero() {
		opts.Now = ix.now()
	}

	end := opts.Now.Unix()
	start := opts.Now.Add(-opts.Lookback).Unix()
	logger := logging.WithOperation(ix.logger, "index")
	began := time.Now()

	var (
		stats IndexStats
		seen  = make(map[string]struct{})
		batch = make([]IndexEntry, 0, indexFlushSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.store.UpsertIndex(ctx, batch); err != nil {
			return err
		}
		ix.metrics.RecordIndexWindow(ctx, len(batch))
		stats.Flushed += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, w := range Windows(start, end, int64(opts.WindowWidth/time.Second)) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Windows++

		ids, _, err := ix.mailbox.ListMessageIDs(ctx, w.Query(), opts.IncludeSpamTrash, opts.PerWindowLimit)
		if err != nil {
			logger.ErrorContext(ctx, "window listing failed", logging.Window(w.After, w.Before), logging.Err(err))
			return stats, fmt.Errorf("failed to list window %s: %w", w, err)
		}
		stats.Listed += len(ids)

		for _, id := range ids {
			if _, dup := seen[id]; dup {
				stats.Duplicates++
				continue
			}
			seen[id] = struct{}{}

			meta, err := ix.mailbox.GetMetadata(ctx, id, indexHeaders...)
			if err != nil {
				return stats, fmt.Errorf("failed to fetch metadata for %s: %w", id, err)
			}
			stats.Fetched++

			batch = append(batch, IndexEntry{
				ID:         id,
				ThreadID:   meta.ThreadId,
				InternalMS: meta.InternalDate,
				Day:        DayOf(meta.InternalDate),
			})
			if len(batch) >= indexFlushSize {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}

		if err := flush(); err != nil {
			return stats, err
		}
		logger.DebugContext(ctx, "window indexed",
			logging.Window(w.After, w.Before),
			logging.Count(len(ids)))
	}

	logger.InfoContext(ctx, "index run completed",
		slog.Int("windows", stats.Windows),
		slog.Int("fetched", stats.Fetched),
		slog.Int("duplicates", stats.Duplicates),
		logging.Count(stats.Flushed),
		slog.Duration(logging.KeyDuration, time.Since(began)))

	ix.publish(ctx, events.TypeIndexCompleted, events.IndexCompleted{
		After:   start,
		End:     end,
		Windows: stats.Windows,
		Listed:  stats.Listed,
		Fetched: stats.Fetched,
		Flushed: stats.Flushed,
	})
	return stats, nil
}
