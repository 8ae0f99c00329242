package log

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"ledger/internal/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentWorker, Output: &buf})

	logger.InfoContext(context.Background(), "Processing import job", FieldJobID, "job-1")
	logger.WithComponent(ComponentImporter).DebugContext(context.Background(), "Preview built")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "job_id=job-1") {
		t.Errorf("missing worker attributes in %q", out)
	}
	if !strings.Contains(out, "component=importer") {
		t.Errorf("missing importer component in %q", out)
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})

	logger.InfoContext(context.Background(), "hidden")
	logger.WarnContext(context.Background(), "shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("info record logged at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "component=app") {
		t.Errorf("default component missing: %q", buf.String())
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{core.NewValidationError("amount", "must be positive"), ErrorTypeValidation},
		{fmt.Errorf("post row: %w", &core.NotFoundError{Entity: "account", ID: 9}), ErrorTypeNotFound},
		{core.Persistence("insert transaction", errors.New("disk full")), ErrorTypeDatabase},
		{context.Canceled, ErrorTypeCanceled},
		{errors.New("boom"), ErrorTypeInternal},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithComponent(ComponentImporter).
		WithOperation(OpImport).
		WithImportResult("import-20240301T120000Z-abcd1234", 3, 1).
		WithError(core.NewValidationError("date", "invalid"))

	got := fields.ToSlice()
	if len(got) != 2*len(fields) {
		t.Fatalf("ToSlice() len = %d, want %d", len(got), 2*len(fields))
	}
	if got[0] != FieldBatch {
		t.Errorf("ToSlice() not sorted: first key %v", got[0])
	}
	if fields[FieldErrorType] != ErrorTypeValidation {
		t.Errorf("error type = %v", fields[FieldErrorType])
	}
	if _, ok := NewFields().WithError(nil)[FieldError]; ok {
		t.Error("WithError(nil) added an error field")
	}
}

func TestTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	ctx := WithTraceID(context.Background(), "job-42")
	if got := TraceID(ctx); got != "job-42" {
		t.Fatalf("TraceID() = %q", got)
	}
	logger.With(FieldBatch, "b1").InfoContext(ctx, "traced")
	logger.InfoContext(context.Background(), "untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "trace_id=job-42") || !strings.Contains(lines[0], "batch=b1") {
		t.Errorf("traced line = %q", lines[0])
	}
	if strings.Contains(lines[1], "trace_id") {
		t.Errorf("untraced line = %q", lines[1])
	}

	if TraceID(WithTraceID(context.Background(), "")) == "" {
		t.Error("WithTraceID(\"\") did not generate an id")
	}
}
