package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/devint-cl/devint-web/internal/xerrors"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer, opts Options) *slogLogger {
	t.Helper()
	opts.Writer = buf
	l, err := newSlog(opts)
	if err != nil {
		t.Fatalf("newSlog: %v", err)
	}
	return l.(*slogLogger)
}

// jsonRecord parses the last JSON line written to buf
func jsonRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("parse JSON log line: %v\nraw: %s", err, buf.String())
	}
	return m
}

func TestNewSlog_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "devint-web", Version: "1.4.0", Environment: "production", JSONFormat: true})

	l.Info(context.Background(), "hello")

	m := jsonRecord(t, &buf)
	if m["msg"] != "hello" || m["app"] != "devint-web" || m["env"] != "production" || m["version"] != "1.4.0" {
		t.Fatalf("unexpected record: %v", m)
	}
}

func TestNewSlog_Defaults(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x"})
	if l.maxErrorLinks != 8 {
		t.Fatalf("maxErrorLinks = %d, want 8", l.maxErrorLinks)
	}
}

func TestNewSlog_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x"})
	l.Info(context.Background(), "text test")
	if !strings.Contains(buf.String(), `msg="text test"`) {
		t.Fatalf("expected logfmt output, got %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", JSONFormat: true, Level: slog.LevelWarn})
	ctx := context.Background()

	l.Debug(ctx, "debug msg")
	l.Info(ctx, "info msg")
	if buf.Len() != 0 {
		t.Fatalf("debug/info should be filtered, got %s", buf.String())
	}
	l.Warn(ctx, "warn msg")
	if !strings.Contains(buf.String(), "warn msg") {
		t.Fatalf("warn should pass, got %s", buf.String())
	}
}

func TestWith_CopyOnWrite(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", JSONFormat: true})

	child := l.With("component", "ratelimit", 42, "ignored-non-string-key")

	l.Info(context.Background(), "parent")
	if _, ok := jsonRecord(t, &buf)["component"]; ok {
		t.Fatal("parent should not see child attrs")
	}

	buf.Reset()
	child.Info(context.Background(), "child")
	if got := jsonRecord(t, &buf)["component"]; got != "ratelimit" {
		t.Fatalf("component = %v, want ratelimit", got)
	}
}

func TestError_AddsErrorFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", JSONFormat: true, IncludeErrorLinks: true})

	base := errors.New("bucket not found")
	err := xerrors.Wrap(base, "put submission")
	l.Error(context.Background(), err, "contact sink failed", "id", "abc")

	m := jsonRecord(t, &buf)
	if m["err"] != "put submission: bucket not found" {
		t.Fatalf("err = %v", m["err"])
	}
	if m["cause_type"] != "*errors.errorString" {
		t.Fatalf("cause_type = %v", m["cause_type"])
	}
	if m["id"] != "abc" {
		t.Fatalf("id = %v", m["id"])
	}
	chain, ok := m["error_chain"].([]any)
	if !ok || len(chain) != 2 {
		t.Fatalf("error_chain = %v", m["error_chain"])
	}
	links, ok := m["error_links"].([]any)
	if !ok || len(links) == 0 {
		t.Fatalf("error_links = %v", m["error_links"])
	}
	if _, ok := m["stack"]; !ok {
		t.Fatal("error records should carry a stack")
	}
}

func TestError_NilErr(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", JSONFormat: true})
	l.Error(context.Background(), nil, "no error attached")
	m := jsonRecord(t, &buf)
	if _, ok := m["err"]; ok {
		t.Fatal("nil error should not add err field")
	}
}

func TestOtelHandler_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "x", JSONFormat: true})

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Info(ctx, "traced")
	m := jsonRecord(t, &buf)
	if m["trace_id"] != tid.String() || m["span_id"] != sid.String() {
		t.Fatalf("trace ids missing: %v", m)
	}
}

func TestClassifyTypes(t *testing.T) {
	err := fmt.Errorf("outer: %w", xerrors.Wrap(errors.New("inner"), "mid"))
	surface, root := classifyTypes(err)
	if surface != "*errors.errorString" {
		t.Fatalf("surface = %q", surface)
	}
	if root != "*errors.errorString" {
		t.Fatalf("root = %q", root)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{" INFO ", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"", slog.LevelInfo, false},
		{"trace", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
