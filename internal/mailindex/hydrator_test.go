package mailindex

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxindex/internal/events"
	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/rowstore"
)

const (
	jan6 = int64(1736157600000) // 2025-01-06 10:00 UTC
	jan7 = int64(1736244000000) // 2025-01-07 10:00 UTC
)

func newHydratorFixture(t *testing.T, mb *fakeMailbox, entries []IndexEntry, opts ...Option) (*Hydrator, *rowstore.Memory) {
	t.Helper()
	mem := rowstore.NewMemory()
	store := NewStore(mem)
	require.NoError(t, store.UpsertIndex(context.Background(), entries))
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewHydrator(mb, store, opts...), mem
}

func entryFor(id string, ms int64) IndexEntry {
	return IndexEntry{ID: id, ThreadID: "thread-" + id, InternalMS: ms, Day: DayOf(ms)}
}

func messagesByID(t *testing.T, mem *rowstore.Memory) map[string]rowstore.Row {
	t.Helper()
	out := make(map[string]rowstore.Row)
	for _, r := range mem.Rows(rowstore.TableMessages) {
		out[rowstore.String(r, "id")] = r
	}
	return out
}

func TestHydrateDayWithBodies(t *testing.T) {
	mb := newFakeMailbox(
		message("a", jan6, "hello a"),
		message("b", jan6+1000, "hello b"),
		message("c", jan7, "other day"),
	)
	rec := &events.Recorder{}
	h, mem := newHydratorFixture(t, mb, []IndexEntry{
		entryFor("a", jan6), entryFor("b", jan6+1000), entryFor("c", jan7),
	}, WithPublisher(rec))

	n, err := h.HydrateDay(context.Background(), "2025-01-06", HydrateOptions{FetchBodies: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := messagesByID(t, mem)
	require.Len(t, rows, 2)
	a := rows["a"]
	assert.Equal(t, "thread-a", rowstore.String(a, "thread_id"))
	assert.Equal(t, jan6, rowstore.Int64(a, "internal_ms"))
	assert.Equal(t, "hello a", rowstore.String(a, "body_full"))
	assert.Equal(t, "snippet a", rowstore.String(a, "snippet"))
	assert.Nil(t, a["raw_json"])

	var headers map[string]string
	ok, err := rowstore.DecodeJSON(a, "headers", &headers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"From":       "sender@example.com",
		"To":         "staff@example.com",
		"Subject":    "Subject a",
		"Date":       "Mon, 6 Jan 2025 10:00:00 +0000",
		"Message-ID": "<a@example.com>",
	}, headers)

	evs := rec.Events()
	require.Len(t, evs, 1)
	var payload events.DayHydrated
	require.NoError(t, json.Unmarshal(evs[0].Data, &payload))
	assert.Equal(t, events.DayHydrated{Day: "2025-01-06", Messages: 2, FetchBodies: true}, payload)
}

func TestHydrateDayMetadataOnly(t *testing.T) {
	mb := newFakeMailbox(message("a", jan6, "hello"))
	h, mem := newHydratorFixture(t, mb, []IndexEntry{entryFor("a", jan6)})

	n, err := h.HydrateDay(context.Background(), "2025-01-06", HydrateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a := messagesByID(t, mem)["a"]
	assert.Nil(t, a["body_full"])

	var raw map[string]any
	ok, err := rowstore.DecodeJSON(a, "raw_json", &raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", raw["id"])
	assert.Equal(t, strconv.FormatInt(jan6, 10), raw["internalDate"])
}

func TestHydrateDayFallsBackToIndex(t *testing.T) {
	m := message("a", 0, "x")
	m.ThreadId = ""
	mb := newFakeMailbox(m)
	h, mem := newHydratorFixture(t, mb, []IndexEntry{entryFor("a", jan6)})

	_, err := h.HydrateDay(context.Background(), "2025-01-06", HydrateOptions{FetchBodies: true})
	require.NoError(t, err)

	a := messagesByID(t, mem)["a"]
	assert.Equal(t, "thread-a", rowstore.String(a, "thread_id"))
	assert.Equal(t, jan6, rowstore.Int64(a, "internal_ms"))
}

func TestHydrateDayIsIdempotent(t *testing.T) {
	mb := newFakeMailbox(message("a", jan6, "v1"))
	h, mem := newHydratorFixture(t, mb, []IndexEntry{entryFor("a", jan6)})
	ctx := context.Background()

	_, err := h.HydrateDay(ctx, "2025-01-06", HydrateOptions{FetchBodies: true})
	require.NoError(t, err)
	mb.messages["a"] = message("a", jan6, "v2")
	_, err = h.HydrateDay(ctx, "2025-01-06", HydrateOptions{FetchBodies: true})
	require.NoError(t, err)

	rows := mem.Rows(rowstore.TableMessages)
	require.Len(t, rows, 1)
	assert.Equal(t, "v2", rowstore.String(rows[0], "body_full"))
}

func TestHydrateDayBatches(t *testing.T) {
	var entries []IndexEntry
	mb := newFakeMailbox()
	for i := range 230 {
		id := "m" + strconv.Itoa(i)
		mb.messages[id] = message(id, jan6+int64(i), "")
		entries = append(entries, entryFor(id, jan6+int64(i)))
	}
	counting := &countingStore{Memory: rowstore.NewMemory()}
	store := NewStore(counting)
	require.NoError(t, store.UpsertIndex(context.Background(), entries))
	counting.batches = nil
	h := NewHydrator(mb, store, WithLogger(logging.Discard()))

	n, err := h.HydrateDay(context.Background(), "2025-01-06", HydrateOptions{FetchBodies: true})
	require.NoError(t, err)
	assert.Equal(t, 230, n)
	assert.Equal(t, []int{100, 100, 30}, counting.batches)
}

func TestHydrateDayEmpty(t *testing.T) {
	h, _ := newHydratorFixture(t, newFakeMailbox(), nil)
	n, err := h.HydrateDay(context.Background(), "2025-01-06", HydrateOptions{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHydrateDayInvalidDay(t *testing.T) {
	mb := newFakeMailbox()
	h, _ := newHydratorFixture(t, mb, nil)

	for _, day := range []string{"", "2025-1-6", "06/01/2025", "2025-02-30"} {
		_, err := h.HydrateDay(context.Background(), day, HydrateOptions{})
		assert.ErrorIs(t, err, ErrInvalidDay, day)
	}
	assert.Zero(t, mb.getCount())
}

func TestHydrateDayProviderError(t *testing.T) {
	mb := newFakeMailbox(message("a", jan6, "x"))
	mb.getErr["a"] = errors.New("gmail messages.get a failed")
	h, mem := newHydratorFixture(t, mb, []IndexEntry{entryFor("a", jan6)})

	_, err := h.HydrateDay(context.Background(), "2025-01-06", HydrateOptions{FetchBodies: true})
	assert.ErrorIs(t, err, mb.getErr["a"])
	assert.Empty(t, mem.Rows(rowstore.TableMessages))
}

func TestHydrateRange(t *testing.T) {
	mb := newFakeMailbox(message("a", jan6, "a"), message("c", jan7, "c"))
	rec := &events.Recorder{}
	h, _ := newHydratorFixture(t, mb, []IndexEntry{entryFor("a", jan6), entryFor("c", jan7)}, WithPublisher(rec))

	n, err := h.HydrateRange(context.Background(), "2025-01-05", "2025-01-07", HydrateOptions{FetchBodies: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, rec.Events(), 3)

	_, err = h.HydrateRange(context.Background(), "2025-01-07", "2025-01-05", HydrateOptions{})
	assert.ErrorIs(t, err, ErrInvalidDay)
}
