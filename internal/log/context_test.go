package log

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	l := &slogLogger{}
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext returned a different logger")
	}
}

func TestFromContext_FallsBackToNop(t *testing.T) {
	got := FromContext(context.Background())
	if _, ok := got.(nopLogger); !ok {
		t.Fatalf("got %T, want nopLogger", got)
	}
	// must be safe to use
	got.With("k", "v").Error(context.Background(), nil, "ignored")
	if err := got.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestFromContext_NilLoggerStored(t *testing.T) {
	ctx := WithContext(context.Background(), nil)
	if FromContext(ctx) == nil {
		t.Fatal("nil stored logger should fall back to Nop")
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{App: "x", JSONFormat: true, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	ctx := WithContext(context.Background(), l)
	if WithFields(ctx) != ctx {
		t.Fatal("WithFields without fields should return ctx unchanged")
	}

	ctx = WithFields(ctx, "submission_id", "abc")
	FromContext(ctx).Info(ctx, "delivered")
	if !strings.Contains(buf.String(), `"submission_id":"abc"`) {
		t.Fatalf("field missing from %s", buf.String())
	}
}
