package mailindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/teemow/inboxindex/internal/rowstore"
)

// IndexEntry is one row of the message index.
type IndexEntry struct {
	ID         string
	ThreadID   string
	InternalMS int64
	Day        string
}

func (e IndexEntry) row() rowstore.Row {
	return rowstore.Row{
		"id":          e.ID,
		"thread_id":   e.ThreadID,
		"internal_ms": e.InternalMS,
		"ymd":         e.Day,
	}
}

// StoredMessage is one hydrated message. BodyFull is nil when bodies were
// not fetched; RawJSON is set only in that case.
type StoredMessage struct {
	ID         string
	ThreadID   string
	InternalMS int64
	Headers    map[string]string
	Snippet    string
	BodyFull   *string
	RawJSON    json.RawMessage
}

func (m StoredMessage) row() rowstore.Row {
	r := rowstore.Row{
		"id":          m.ID,
		"thread_id":   m.ThreadID,
		"internal_ms": m.InternalMS,
		"headers":     m.Headers,
		"snippet":     m.Snippet,
		"body_full":   nil,
		"raw_json":    nil,
	}
	if m.BodyFull != nil {
		r["body_full"] = *m.BodyFull
	}
	if len(m.RawJSON) > 0 {
		r["raw_json"] = m.RawJSON
	}
	return r
}

// Store persists the index and hydrated messages in the row store. Both
// writes are upserts keyed on the message id.
type Store struct {
	rows rowstore.Client
}

// NewStore creates a Store over client.
func NewStore(client rowstore.Client) *Store {
	return &Store{rows: client}
}

// UpsertIndex writes index entries.
func (s *Store) UpsertIndex(ctx context.Context, entries []IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]rowstore.Row, len(entries))
	for i, e := range entries {
		rows[i] = e.row()
	}
	if err := s.rows.Upsert(ctx, rowstore.TableMessageIndex, "id", rows...); err != nil {
		return fmt.Errorf("failed to upsert %d index rows: %w", len(rows), err)
	}
	return nil
}

// IndexedOn returns the index entries of one day bucket.
func (s *Store) IndexedOn(ctx context.Context, day string) ([]IndexEntry, error) {
	rows, err := s.rows.Select(ctx, rowstore.TableMessageIndex, rowstore.Query{
		Columns: []string{"id", "thread_id", "internal_ms", "ymd"},
		Filters: []rowstore.Filter{rowstore.Eq("ymd", day)},
		Order:   &rowstore.Order{Column: "internal_ms"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select index rows for %s: %w", day, err)
	}

	out := make([]IndexEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, IndexEntry{
			ID:         rowstore.String(r, "id"),
			ThreadID:   rowstore.String(r, "thread_id"),
			InternalMS: rowstore.Int64(r, "internal_ms"),
			Day:        rowstore.String(r, "ymd"),
		})
	}
	return out, nil
}

// UpsertMessages writes hydrated messages.
func (s *Store) UpsertMessages(ctx context.Context, msgs []StoredMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]rowstore.Row, len(msgs))
	for i, m := range msgs {
		rows[i] = m.row()
	}
	if err := s.rows.Upsert(ctx, rowstore.TableMessages, "id", rows...); err != nil {
		return fmt.Errorf("failed to upsert %d messages: %w", len(rows), err)
	}
	return nil
}
