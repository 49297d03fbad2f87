package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sony/gobreaker"

	"github.com/devint-cl/devint-web/internal/log"
	"github.com/devint-cl/devint-web/internal/xerrors"
)

// Sink delivers accepted submissions somewhere a person will read them.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, s *Submission) error
}

// LogSink writes each submission as a structured log line.
type LogSink struct {
	Logger log.Logger
}

func (LogSink) Name() string { return "log" }

func (l LogSink) Deliver(ctx context.Context, s *Submission) error {
	L := l.Logger
	if L == nil {
		L = log.FromContext(ctx)
	}
	L.Info(ctx, "contact submission",
		"submission_id", s.ID,
		"received_at", s.ReceivedAt,
		"nombre", s.Nombre,
		"email", s.Email,
		"telefono", s.Telefono,
		"empresa", s.Empresa,
		"rut", s.RUT,
		"mensaje", s.Mensaje,
	)
	return nil
}

// S3API is the subset of *s3.Client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink stores each submission as JSON at <prefix>/YYYY/MM/DD/<id>.json.
// Objects are encrypted with SSE-KMS when KMSKeyID is set.
type S3Sink struct {
	client   S3API
	bucket   string
	prefix   string
	kmsKeyID string
}

func NewS3Sink(client S3API, bucket, prefix, kmsKeyID string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix, kmsKeyID: kmsKeyID}
}

func (*S3Sink) Name() string { return "s3" }

func (s *S3Sink) Key(sub *Submission) string {
	return path.Join(s.prefix, sub.ReceivedAt.UTC().Format("2006/01/02"), sub.ID+".json")
}

func (s *S3Sink) Deliver(ctx context.Context, sub *Submission) error {
	b, err := json.Marshal(sub)
	if err != nil {
		return xerrors.Wrap(err, "contact: marshal submission")
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(sub)),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	}
	if s.kmsKeyID != "" {
		in.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		in.SSEKMSKeyId = aws.String(s.kmsKeyID)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return xerrors.Wrapf(err, "contact: put s3://%s/%s", s.bucket, aws.ToString(in.Key))
	}
	return nil
}

// BreakerOptions configures NewBreakerSink. Zero values use the defaults.
type BreakerOptions struct {
	// MaxFailures consecutive failures open the breaker (default 5)
	MaxFailures uint32
	// Timeout is how long the breaker stays open (default 30s)
	Timeout time.Duration
	// OnStateChange receives 0 closed, 1 half-open, 2 open
	OnStateChange func(state int)
}

// BreakerSink stops calling a failing sink for a while so form posts fail
// fast instead of waiting on a dead backend.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSink(next Sink, opts BreakerOptions) *BreakerSink {
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "contact-" + next.Name(),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	if opts.OnStateChange != nil {
		settings.OnStateChange = func(_ string, _, to gobreaker.State) {
			opts.OnStateChange(int(to))
		}
	}
	return &BreakerSink{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerSink) Name() string { return b.next.Name() }

func (b *BreakerSink) Deliver(ctx context.Context, s *Submission) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Deliver(ctx, s)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return xerrors.Wrapf(err, "contact: breaker (%s)", b.cb.Name())
	}
	return err
}

func (b *BreakerSink) State() gobreaker.State { return b.cb.State() }
