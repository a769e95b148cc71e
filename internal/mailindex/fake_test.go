package mailindex

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"

	gmailapi "google.golang.org/api/gmail/v1"
)

// fakeMailbox answers time-range queries from an in-memory message set.
type fakeMailbox struct {
	mu       sync.Mutex
	messages map[string]*gmailapi.Message
	queries  []string
	gets     []string
	listErr  error
	getErr   map[string]error
}

func newFakeMailbox(msgs ...*gmailapi.Message) *fakeMailbox {
	f := &fakeMailbox{messages: make(map[string]*gmailapi.Message), getErr: make(map[string]error)}
	for _, m := range msgs {
		f.messages[m.Id] = m
	}
	return f
}

func (f *fakeMailbox) ListMessageIDs(_ context.Context, query string, _ bool, limit int) ([]string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return nil, 0, f.listErr
	}

	var after, before int64
	ranged := true
	if _, err := fmt.Sscanf(query, "after:%d before:%d", &after, &before); err != nil {
		ranged = false
	}

	var ids []string
	for id, m := range f.messages {
		sec := m.InternalDate / 1000
		if !ranged || (sec >= after && sec <= before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	estimate := int64(len(ids))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, estimate, nil
}

func (f *fakeMailbox) get(id string) (*gmailapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

func (f *fakeMailbox) GetMetadata(_ context.Context, id string, _ ...string) (*gmailapi.Message, error) {
	m, err := f.get(id)
	if err != nil {
		return nil, err
	}
	meta := *m
	if m.Payload != nil {
		meta.Payload = &gmailapi.MessagePart{Headers: m.Payload.Headers}
	}
	return &meta, nil
}

func (f *fakeMailbox) GetFull(_ context.Context, id string) (*gmailapi.Message, error) {
	return f.get(id)
}

func (f *fakeMailbox) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

func message(id string, internalMS int64, body string) *gmailapi.Message {
	return &gmailapi.Message{
		Id:           id,
		ThreadId:     "thread-" + id,
		InternalDate: internalMS,
		Snippet:      "snippet " + id,
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: "sender@example.com"},
				{Name: "To", Value: "staff@example.com"},
				{Name: "Subject", Value: "Subject " + id},
				{Name: "Date", Value: "Mon, 6 Jan 2025 10:00:00 +0000"},
				{Name: "Message-ID", Value: "<" + id + "@example.com>"},
				{Name: "Received", Value: "dropped"},
			},
			Body: &gmailapi.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte(body))},
		},
	}
}
