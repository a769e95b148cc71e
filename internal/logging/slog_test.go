package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := WithOperation(slog.New(slog.NewTextHandler(&buf, nil)), "index.run")
	logger.Info("hello")
	if !strings.Contains(buf.String(), "operation=index.run") {
		t.Errorf("output %q does not contain operation attribute", buf.String())
	}
}

func TestWindowAttr(t *testing.T) {
	attr := Window(10, 20)
	if attr.Key != KeyWindow {
		t.Errorf("Window key = %q, want %q", attr.Key, KeyWindow)
	}
	if attr.Value.String() != "10-20" {
		t.Errorf("Window value = %q, want %q", attr.Value.String(), "10-20")
	}
}

func TestErr(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		attr := Err(nil)
		if attr.Key != "" {
			t.Errorf("Err(nil) key = %q, want empty", attr.Key)
		}
	})

	t.Run("non-nil error", func(t *testing.T) {
		attr := Err(errors.New("boom"))
		if attr.Key != KeyError {
			t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
		}
		if attr.Value.String() != "boom" {
			t.Errorf("Err value = %q, want %q", attr.Value.String(), "boom")
		}
	})
}

func TestHashState(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  string
	}{
		{name: "empty", state: "", want: ""},
		{name: "stable prefix", state: "abc", want: "state:ba7816bf8f01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashState(tt.state); got != tt.want {
				t.Errorf("HashState(%q) = %q, want %q", tt.state, got, tt.want)
			}
		})
	}

	if HashState("a") == HashState("b") {
		t.Error("different states produced the same hash")
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{token: "", want: "<empty>"},
		{token: "ya29.secret", want: "[token:11 chars]"},
	}
	for _, tt := range tests {
		got := SanitizeToken(tt.token)
		if got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
		if tt.token != "" && strings.Contains(got, tt.token) {
			t.Errorf("SanitizeToken leaked token content: %q", got)
		}
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, FormatJSON, true)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("debug line")
	if !strings.Contains(buf.String(), `"msg":"debug line"`) {
		t.Errorf("expected JSON debug output, got %q", buf.String())
	}

	if _, err := New(&buf, "xml", false); err == nil {
		t.Error("expected error for unsupported format")
	}
}
