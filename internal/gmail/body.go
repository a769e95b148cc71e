package gmail

import (
	"encoding/base64"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// ExtractBody returns the readable body of a message payload.
//
// The first text/plain part in depth-first order wins, wherever text/html
// parts appear. Without a plain part the first text/html part is returned
// undecorated. A single-part payload of any other text/* type yields its
// own data. Anything else yields "".
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	var plain, html *gmail.MessagePart
	walkParts(payload, func(p *gmail.MessagePart) bool {
		if p.Body == nil || p.Body.Data == "" {
			return true
		}
		switch strings.ToLower(p.MimeType) {
		case "text/plain":
			plain = p
			return false
		case "text/html":
			if html == nil {
				html = p
			}
		}
		return true
	})

	switch {
	case plain != nil:
		return DecodeData(plain.Body.Data)
	case html != nil:
		return DecodeData(html.Body.Data)
	case len(payload.Parts) == 0 && payload.Body != nil &&
		strings.HasPrefix(strings.ToLower(payload.MimeType), "text/"):
		return DecodeData(payload.Body.Data)
	default:
		return ""
	}
}

// walkParts visits part and its descendants depth-first until fn returns
// false.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart) bool) bool {
	if !fn(part) {
		return false
	}
	for _, child := range part.Parts {
		if child == nil {
			continue
		}
		if !walkParts(child, fn) {
			return false
		}
	}
	return true
}

// DecodeData decodes Gmail's base64url body data, padded or not. Invalid
// UTF-8 is replaced with U+FFFD; undecodable input yields "".
func DecodeData(data string) string {
	if data == "" {
		return ""
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		// Some producers use the standard alphabet.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return strings.ToValidUTF8(string(raw), "�")
}
