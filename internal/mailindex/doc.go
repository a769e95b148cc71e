// Package mailindex builds and uses a durable index of a Gmail mailbox.
//
// The Indexer walks the trailing lookback period in overlapping windows,
// lists message IDs per window and upserts {id, thread_id, internal_ms,
// ymd} rows into gmail_message_index. The Hydrator reads one day bucket of
// that index back, fetches each message and upserts it into
// gmail_messages. Both are safe to re-run: writes are upserts keyed on
// the message id and deduplication only lives for one run.
//
// The Searcher runs ad-hoc provider searches without touching storage.
package mailindex
