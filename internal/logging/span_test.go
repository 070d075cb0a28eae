package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestStartSpanNestsUnderTrace(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base)

	ctx, parent := StartSpan(ctx, "feed.refresh")
	traceID := TraceIDFromContext(ctx)
	parentID := SpanIDFromContext(ctx)
	if traceID == "" || parentID == "" {
		t.Fatalf("expected trace and span ids, got %q %q", traceID, parentID)
	}

	childCtx, child := StartSpan(ctx, "gateway.request")
	if TraceIDFromContext(childCtx) != traceID {
		t.Fatal("expected child span to share the trace id")
	}
	if SpanIDFromContext(childCtx) == parentID {
		t.Fatal("expected child span to get its own id")
	}

	child.End(errors.New("boom"))
	parent.End(nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines got %d", len(lines))
	}
	if lines[0]["msg"] != "operation failed" || lines[0]["error"] != "boom" {
		t.Fatalf("unexpected child entry %+v", lines[0])
	}
	if lines[0]["parent_span_id"] != parentID {
		t.Fatalf("expected parent span id %q got %v", parentID, lines[0]["parent_span_id"])
	}
	if lines[1]["msg"] != "operation completed" || lines[1]["operation"] != "feed.refresh" {
		t.Fatalf("unexpected parent entry %+v", lines[1])
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
	if WithRequestID(context.Background(), "") != context.Background() {
		t.Fatal("expected empty request id to leave context untouched")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
