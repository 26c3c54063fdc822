package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestHandler(w, console *bytes.Buffer, level slog.Level) *lineHandler {
	h := &lineHandler{mu: &sync.Mutex{}, w: w, level: level, opID: "op-1"}
	if console != nil {
		h.console = console
	}
	return h
}

func TestLineHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 3, 9, 8, 5, 1, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "info",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "workspace selected",
			want:    "2024-03-09T08:05:01Z\tINFO\top-123\tworkspace selected\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "workspace restored",
			want:    "2024-03-09T08:05:01Z\tDEBUG\top-456\tworkspace restored\n",
		},
		{
			name:    "record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "images deleted",
			attrs:   []slog.Attr{slog.String("file", "cat.png"), slog.Int("deleted", 2)},
			want:    "2024-03-09T08:05:01Z\tINFO\top-789\timages deleted\tfile=cat.png\tdeleted=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTestHandler(&buf, nil, slog.LevelDebug)
			h.opID = tt.opID

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLineHandler_Console(t *testing.T) {
	var file, console bytes.Buffer
	logger := slog.New(newTestHandler(&file, &console, slog.LevelInfo))

	logger.Debug("hidden")
	logger.Info("quiet")
	logger.Warn("loud", "file", "a.png")
	logger.Error("louder")

	if strings.Contains(file.String(), "hidden") {
		t.Errorf("file log contains a debug record: %q", file.String())
	}
	if n := strings.Count(file.String(), "\n"); n != 3 {
		t.Errorf("file log has %d lines, want 3", n)
	}
	if strings.Contains(console.String(), "quiet") {
		t.Errorf("console got an info record: %q", console.String())
	}
	if !strings.Contains(console.String(), "loud\tfile=a.png") || !strings.Contains(console.String(), "louder") {
		t.Errorf("console = %q, want the warning and the error", console.String())
	}
}

func TestLineHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTestHandler(&buf, nil, slog.LevelDebug)

	scoped := h.WithAttrs([]slog.Attr{slog.String("store", "local")}).(*lineHandler)

	r := slog.NewRecord(time.Unix(0, 0), slog.LevelInfo, "image uploaded", 0)
	r.AddAttrs(slog.String("id", "img-1"))
	if err := scoped.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	line := buf.String()
	if !strings.HasSuffix(line, "image uploaded\tstore=local\tid=img-1\n") {
		t.Errorf("Handle() output = %q, want handler attrs before record attrs", line)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestLineHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTestHandler(&buf, nil, slog.LevelDebug)).WithGroup("remote").With("url", "http://nas")

	logger.Info("request", "status", 404)

	got := buf.String()
	if !strings.Contains(got, "\tremote.url=http://nas\tremote.status=404\n") {
		t.Errorf("grouped attrs missing, got: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "test-op", slog.LevelInfo, nil)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("started", "mode", "local")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "\ttest-op\tstarted\tmode=local\n") {
		t.Errorf("log file = %q", data)
	}
}
