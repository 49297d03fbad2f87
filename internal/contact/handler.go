package contact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/devint-cl/devint-web/internal/httpmw"
	"github.com/devint-cl/devint-web/internal/log"
)

const (
	MsgMissingFields = "Faltan campos obligatorios"
	MsgProcessFailed = "No se pudo procesar el formulario"
	MsgInvalidFields = "Revise los campos del formulario"
	MsgTooMany       = "Demasiados envíos, intente nuevamente en unos minutos"

	// DefaultMaxBody bounds the JSON body
	DefaultMaxBody = 16 << 10

	RetryAfterSeconds = "60"
)

// Submission outcomes, used as the metrics label.
const (
	OutcomeAccepted      = "accepted"
	OutcomeMissingFields = "missing_fields"
	OutcomeInvalid       = "invalid"
	OutcomeMalformed     = "malformed"
	OutcomeTooLarge      = "too_large"
	OutcomeThrottled     = "throttled"
	OutcomeSinkError     = "sink_error"
)

// Throttle is satisfied by *ratelimit.Buckets.
type Throttle interface {
	Allow(key string) bool
}

type Metrics interface {
	IncContact(outcome string)
	ObserveContactSink(sink string, d time.Duration)
}

type Options struct {
	Sink     Sink
	Throttle Throttle
	Metrics  Metrics
	MaxBody  int64

	// Now and NewID default to time.Now and uuid.NewString
	Now   func() time.Time
	NewID func() string
}

type Handler struct {
	opts Options
}

type response struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func NewHandler(opts Options) *Handler {
	if opts.Sink == nil {
		opts.Sink = LogSink{}
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Handler{opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)
	clientID := httpmw.ClientIDOf(r)

	if h.opts.Throttle != nil && !h.opts.Throttle.Allow(clientID) {
		h.outcome(ctx, OutcomeThrottled)
		w.Header().Set("Retry-After", RetryAfterSeconds)
		writeJSON(w, http.StatusTooManyRequests, response{Message: MsgTooMany})
		return
	}

	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.opts.MaxBody))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.outcome(ctx, OutcomeTooLarge)
			writeJSON(w, http.StatusRequestEntityTooLarge, response{Message: MsgProcessFailed})
			return
		}
		L.Warn(ctx, "contact: malformed body", "err", err)
		h.outcome(ctx, OutcomeMalformed)
		writeJSON(w, http.StatusInternalServerError, response{Message: MsgProcessFailed})
		return
	}

	if req.missingRequired() {
		h.outcome(ctx, OutcomeMissingFields)
		writeJSON(w, http.StatusBadRequest, response{Message: MsgMissingFields})
		return
	}

	req.sanitize()
	if errs := req.fieldErrors(); errs != nil {
		h.outcome(ctx, OutcomeInvalid)
		writeJSON(w, http.StatusBadRequest, response{Message: MsgInvalidFields, Errors: errs})
		return
	}

	sub := &Submission{
		ID:         h.opts.NewID(),
		ReceivedAt: h.opts.Now().UTC(),
		ClientID:   clientID,
		RequestID:  httpmw.RequestIDFromContext(ctx),
		Request:    req,
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("contact.submission_id", sub.ID))
	ctx = log.WithFields(ctx, "submission_id", sub.ID, "sink", h.opts.Sink.Name())
	L = log.FromContext(ctx)

	start := time.Now()
	err := h.opts.Sink.Deliver(ctx, sub)
	if h.opts.Metrics != nil {
		h.opts.Metrics.ObserveContactSink(h.opts.Sink.Name(), time.Since(start))
	}
	if err != nil {
		L.Error(ctx, err, "contact: delivery failed")
		h.outcome(ctx, OutcomeSinkError)
		writeJSON(w, http.StatusInternalServerError, response{Message: MsgProcessFailed})
		return
	}

	L.Info(ctx, "contact submission accepted")
	h.outcome(ctx, OutcomeAccepted)
	writeJSON(w, http.StatusOK, response{Success: true})
}

func (h *Handler) outcome(ctx context.Context, outcome string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("contact.outcome", outcome))
	if h.opts.Metrics != nil {
		h.opts.Metrics.IncContact(outcome)
	}
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
