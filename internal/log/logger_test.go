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
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentWorker, JSON: true, Output: &buf})

	logger.Info("hello", FieldCount, 2)

	entry := decodeLine(t, &buf)
	if entry[FieldComponent] != ComponentWorker || entry[FieldCount] != float64(2) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Component: ComponentHTTP, JSON: true, Output: &buf})

	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "handled")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if entry := decodeLine(t, &buf); entry[FieldRequestID] != "req-1" {
		t.Fatalf("request id missing: %v", entry)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()).Logger != slog.Default() {
		t.Fatal("expected the default slog logger")
	}
}

func TestStructuredLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{JSON: true, Output: &buf}))

	sl.LogError(context.Background(), "job failed", errors.New("boom"), ComponentWorker, OpRunJob,
		NewFields().WithJob("job-1", 3).WithErrorType(ErrorTypeInternal))

	entry := decodeLine(t, &buf)
	for key, want := range map[string]any{
		FieldError:     "boom",
		FieldOperation: OpRunJob,
		FieldJobID:     "job-1",
		FieldAttempts:  float64(3),
		FieldErrorType: ErrorTypeInternal,
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestComponentLoggedOnce(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *Logger)
		want string
	}{
		{
			name: "ingest batch",
			log: func(l *Logger) {
				NewStructuredLogger(l).LogTransactionsIngested(context.Background(), "u1", "h1", "sms", 2)
			},
			want: ComponentIngest,
		},
		{
			name: "error with its own component",
			log: func(l *Logger) {
				NewStructuredLogger(l).LogError(context.Background(), "failed", errors.New("boom"), ComponentWorker, OpRunJob, nil)
			},
			want: ComponentWorker,
		},
		{
			name: "component override",
			log:  func(l *Logger) { l.WithComponent(ComponentRateLimit).Warn("slow down") },
			want: ComponentRateLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(New(Config{Component: ComponentIngest, JSON: true, Output: &buf}))

			if n := strings.Count(buf.String(), `"component"`); n != 1 {
				t.Fatalf("component appears %d times in %s", n, buf.String())
			}
			if entry := decodeLine(t, &buf); entry[FieldComponent] != tt.want {
				t.Errorf("component = %v, want %v", entry[FieldComponent], tt.want)
			}
		})
	}
}
