package logger

import (
	"context"
	"testing"

	"mathtutor/pkg/utils/contextkey"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := SetGlobal(NewWithZap(zap.New(core)))
	defer SetGlobal(prev)

	ctx := context.WithValue(context.Background(), contextkey.TraceID, "trace-1")
	ctx = context.WithValue(ctx, contextkey.RequestID, "req-1")
	ctx = context.WithValue(ctx, contextkey.UserID, "42")

	Info(ctx, "submission graded", zap.String("problem_id", "question-1"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "trace-1" {
		t.Fatalf("expected trace_id field, got %v", fields["trace_id"])
	}
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id field, got %v", fields["request_id"])
	}
	if fields["user_id"] != "42" {
		t.Fatalf("expected user_id field, got %v", fields["user_id"])
	}
	if fields["problem_id"] != "question-1" {
		t.Fatalf("expected problem_id field, got %v", fields["problem_id"])
	}
}

func TestNilGlobalLoggerIsSilent(t *testing.T) {
	prev := SetGlobal(nil)
	defer SetGlobal(prev)

	Info(context.Background(), "dropped")
	if err := Sync(); err != nil {
		t.Fatalf("expected nil sync error, got %v", err)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
