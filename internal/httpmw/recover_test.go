package httpmw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/devint-cl/devint-web/internal/log"
)

// spyLogger records Error calls along with the fields added through With.
type spyLogger struct {
	log.Logger
	mu     *sync.Mutex
	fields []any
	errors *[]spyError
}

type spyError struct {
	msg    string
	err    error
	fields map[string]any
}

func newSpyLogger() *spyLogger {
	return &spyLogger{Logger: log.Nop(), mu: &sync.Mutex{}, errors: &[]spyError{}}
}

func (s *spyLogger) With(kv ...any) log.Logger {
	return &spyLogger{Logger: s.Logger, mu: s.mu, errors: s.errors, fields: append(append([]any{}, s.fields...), kv...)}
}

func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	all := append(append([]any{}, s.fields...), kv...)
	fields := map[string]any{}
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			fields[k] = all[i+1]
		}
	}
	s.mu.Lock()
	*s.errors = append(*s.errors, spyError{msg: msg, err: err, fields: fields})
	s.mu.Unlock()
}

func (s *spyLogger) logged() []spyError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spyError(nil), *s.errors...)
}

func TestRecover_NoPanic(t *testing.T) {
	spy := newSpyLogger()
	h := Recover(spy, func() { t.Fatal("onPanic called without a panic") })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Custom", "value")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("created"))
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))

	if rec.Code != http.StatusCreated || rec.Header().Get("X-Custom") != "value" || rec.Body.String() != "created" {
		t.Fatalf("response altered: %d %v %q", rec.Code, rec.Header(), rec.Body.String())
	}
	if len(spy.logged()) != 0 {
		t.Fatal("error logged without a panic")
	}
}

func TestRecover_Panics(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string", "something broke"},
		{"error", errors.New("database connection lost")},
		{"int", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := newSpyLogger()
			panics := 0
			h := Recover(spy, func() { panics++ })(
				http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(tt.value) }))

			req := httptest.NewRequest(http.MethodPost, "/api/contact", http.NoBody)
			ctx := WithClientID(WithRequestID(req.Context(), "req-9"), "203.0.113.5")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req.WithContext(ctx))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatalf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
			}
			if panics != 1 {
				t.Fatalf("onPanic calls = %d", panics)
			}

			logged := spy.logged()
			if len(logged) != 1 {
				t.Fatalf("logged %d errors", len(logged))
			}
			e := logged[0]
			if e.err == nil || e.msg != "http handler panic recovered" {
				t.Fatalf("logged %+v", e)
			}
			want := map[string]string{
				"http.request.method": http.MethodPost,
				"url.path":            "/api/contact",
				"request_id":          "req-9",
				"client_id":           "203.0.113.5",
			}
			for k, v := range want {
				if e.fields[k] != v {
					t.Errorf("field %s = %v, want %q", k, e.fields[k], v)
				}
			}
		})
	}
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(newSpyLogger(), nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	t.Fatal("panic was swallowed")
}

func TestRecover_NilLogger(t *testing.T) {
	h := Recover(nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
