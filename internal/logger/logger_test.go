package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCycleID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := CycleID(ctx); id != "" {
		t.Errorf("expected empty cycle id, got %q", id)
	}

	ctx = WithCycleID(ctx, "dca-1")
	if id := CycleID(ctx); id != "dca-1" {
		t.Errorf("expected 'dca-1', got %q", id)
	}
}

func TestNewCycleID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	id := NewCycleID("alarms", ts)

	if !strings.HasPrefix(id, "alarms-") {
		t.Errorf("expected cycle id to start with 'alarms-', got %s", id)
	}
	if !strings.Contains(id, "123456789") {
		t.Errorf("expected cycle id to contain nanoseconds, got %s", id)
	}
}

func TestAttrs(t *testing.T) {
	ctx := context.Background()
	if attrs := Attrs(ctx); attrs != nil {
		t.Errorf("expected nil attrs without cycle id, got %v", attrs)
	}

	ctx = WithCycleID(ctx, "trailing-42")
	if attrs := Attrs(ctx); len(attrs) != 1 {
		t.Fatalf("expected one attr, got %v", attrs)
	}
}
