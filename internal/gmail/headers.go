package gmail

import (
	"strings"

	gmail "google.golang.org/api/gmail/v1"
)

// HeaderValue returns the first header called name (case-insensitive).
func HeaderValue(m *gmail.Message, name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Headers returns the subset of headers listed in names, keyed by the
// spelling in names. Absent headers are omitted.
func Headers(m *gmail.Message, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	if m == nil || m.Payload == nil {
		return out
	}
	for _, h := range m.Payload.Headers {
		for _, n := range names {
			if _, seen := out[n]; !seen && strings.EqualFold(h.Name, n) {
				out[n] = h.Value
			}
		}
	}
	return out
}
