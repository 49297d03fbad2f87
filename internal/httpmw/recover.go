package httpmw

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/devint-cl/devint-web/internal/log"
	"github.com/devint-cl/devint-web/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a plain 500 that
// is never cached. http.ErrAbortHandler is re-raised so net/http can abort
// the connection. onPanic may be nil.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if e, ok := rec.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.WithStack(xerrors.Wrap(e, "panic"))
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				ctx := r.Context()
				if span := trace.SpanFromContext(ctx); span.IsRecording() {
					span.RecordError(err)
					span.SetStatus(codes.Error, "panic")
				}
				logger.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(ctx),
					"client_id", ClientIDFromContext(ctx),
				).Error(ctx, err, "http handler panic recovered")

				if onPanic != nil {
					onPanic()
				}
				w.Header().Set("Cache-Control", "no-store")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
