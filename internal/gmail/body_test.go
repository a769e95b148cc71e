package gmail

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	gmail "google.golang.org/api/gmail/v1"
)

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func part(mime, data string, children ...*gmail.MessagePart) *gmail.MessagePart {
	p := &gmail.MessagePart{MimeType: mime, Parts: children}
	if data != "" {
		p.Body = &gmail.MessagePartBody{Data: data}
	}
	return p
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name    string
		payload *gmail.MessagePart
		want    string
	}{
		{
			name:    "nil payload",
			payload: nil,
			want:    "",
		},
		{
			name:    "single part",
			payload: part("text/plain", enc("just text")),
			want:    "just text",
		},
		{
			name: "plain preferred over earlier html",
			payload: part("multipart/alternative", "",
				part("text/html", enc("<p>html</p>")),
				part("text/plain", enc("plain")),
			),
			want: "plain",
		},
		{
			name: "nested plain found depth first",
			payload: part("multipart/mixed", "",
				part("multipart/alternative", "",
					part("text/plain", enc("inner")),
				),
				part("text/plain", enc("outer")),
			),
			want: "inner",
		},
		{
			name: "html fallback",
			payload: part("multipart/alternative", "",
				part("text/html", enc("<b>x</b>")),
			),
			want: "<b>x</b>",
		},
		{
			name: "plain part without data skipped",
			payload: part("multipart/alternative", "",
				part("text/plain", ""),
				part("text/html", enc("html only")),
			),
			want: "html only",
		},
		{
			name:    "single text part of another subtype",
			payload: part("text/calendar", enc("BEGIN:VCALENDAR")),
			want:    "BEGIN:VCALENDAR",
		},
		{
			name:    "single binary part",
			payload: part("application/octet-stream", enc("\x00\x01bytes")),
			want:    "",
		},
		{
			name: "multipart with no text",
			payload: part("multipart/mixed", "",
				part("application/pdf", enc("%PDF")),
			),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBody(tt.payload))
		})
	}
}

func TestDecodeData(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("ab?>"))
	unpadded := base64.RawURLEncoding.EncodeToString([]byte("ab?>"))

	assert.Equal(t, "ab?>", DecodeData(padded))
	assert.Equal(t, "ab?>", DecodeData(unpadded))
	assert.Equal(t, "", DecodeData(""))
	assert.Equal(t, "", DecodeData("!!!"))
	assert.Equal(t, "a�b", DecodeData(base64.RawURLEncoding.EncodeToString([]byte{'a', 0xff, 'b'})))
}

func TestHeaders(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
		{Name: "from", Value: "a@example.com"},
		{Name: "Subject", Value: "first"},
		{Name: "Subject", Value: "second"},
		{Name: "X-Other", Value: "ignored"},
	}}}

	got := Headers(msg, "From", "To", "Subject")
	assert.Equal(t, map[string]string{"From": "a@example.com", "Subject": "first"}, got)
	assert.Equal(t, "a@example.com", HeaderValue(msg, "FROM"))
	assert.Empty(t, HeaderValue(nil, "From"))
}
