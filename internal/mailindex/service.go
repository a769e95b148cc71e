package mailindex

import (
	"context"
)

// MailboxOpener returns a mailbox bound to the current credential. It
// fails with the credential error when the mailbox is not authorized.
type MailboxOpener func(ctx context.Context) (Mailbox, error)

// Service opens a mailbox per operation so that a credential obtained or
// reset after startup takes effect on the next call.
type Service struct {
	open  MailboxOpener
	store *Store
	opts  []Option
}

// NewService creates a service. The options apply to every indexer,
// hydrator and searcher it creates.
func NewService(open MailboxOpener, store *Store, opts ...Option) *Service {
	return &Service{open: open, store: store, opts: opts}
}

// Backfill runs one index pass.
func (s *Service) Backfill(ctx context.Context, opts IndexOptions) (IndexStats, error) {
	mb, err := s.open(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return NewIndexer(mb, s.store, s.opts...).Run(ctx, opts)
}

// HydrateDay hydrates one day bucket.
func (s *Service) HydrateDay(ctx context.Context, day string, opts HydrateOptions) (int, error) {
	if _, err := ParseDay(day); err != nil {
		return 0, err
	}
	mb, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	return NewHydrator(mb, s.store, s.opts...).HydrateDay(ctx, day, opts)
}

// HydrateRange hydrates the inclusive range of day buckets.
func (s *Service) HydrateRange(ctx context.Context, from, to string, opts HydrateOptions) (int, error) {
	mb, err := s.open(ctx)
	if err != nil {
		return 0, err
	}
	return NewHydrator(mb, s.store, s.opts...).HydrateRange(ctx, from, to, opts)
}

// Search runs an ad-hoc search.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, int64, error) {
	mb, err := s.open(ctx)
	if err != nil {
		return nil, 0, err
	}
	return NewSearcher(mb, s.opts...).Search(ctx, query, limit)
}
