package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"steady/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf, Component: ComponentQuery})

	l.Info("hello", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentQuery {
		t.Errorf("component = %v, want %s", rec[FieldComponent], ComponentQuery)
	}
	if rec["k"] != "v" {
		t.Errorf("k = %v, want v", rec["k"])
	}
}

func TestWithComponentDoesNotDuplicate(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf}).WithComponent(ComponentWorker)
	l.Info("started")

	if n := strings.Count(buf.String(), "component="); n != 1 {
		t.Errorf("component appears %d times in %q", n, buf.String())
	}
	if !strings.Contains(buf.String(), "component=worker") {
		t.Errorf("missing worker component in %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelWarn, Output: &buf})
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	l := New(Config{Output: &bytes.Buffer{}, Component: ComponentHTTP})
	if got := FromContext(WithLogger(context.Background(), l)); got != l {
		t.Error("FromContext did not return the stored logger")
	}
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("fallback component = %q, want unknown", got.Component())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	h := Middleware(l)(RequestIDMiddleware(func(*http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/overview", nil))

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("request id not logged: %q", buf.String())
	}
}

func TestLogErrorLevelByKind(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf}))

	sl.LogError(context.Background(), "rejected", &core.OverlapError{}, ComponentLedger, OpAppend, nil)
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "error_kind=overlap") {
		t.Errorf("caller error not logged at warn: %q", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "failed", errors.New("disk full"), ComponentStorage, OpAppend, NewFields())
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "error_kind=internal") {
		t.Errorf("internal error not logged at error: %q", buf.String())
	}
}
