package content

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/devint-cl/devint-web/internal/log"
	"github.com/devint-cl/devint-web/internal/xerrors"
)

const (
	// DefaultPollInterval is how often the watcher re-stats the site directory.
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps exponential backoff on consecutive stat errors.
	maxBackoff = 5 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollStatError
	pollLoadError
	pollValidationError
)

// SnapshotSource is what the Watcher polls. Fingerprint must be cheap and
// change whenever Load would return different content.
type SnapshotSource interface {
	Fingerprint(ctx context.Context) (string, error)
	Load(ctx context.Context) (*Snapshot, error)
}

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncWatcherSwaps()
	IncWatcherError(errType string)
}

type WatcherOptions struct {
	Logger       log.Logger
	Source       SnapshotSource
	Manager      *Manager
	PollInterval time.Duration

	// Validation runs against new snapshots before they are swapped in.
	// nil uses DefaultValidationOptions().
	Validation *ValidationOptions

	// OnSwap is called synchronously on the poll goroutine after a swap.
	OnSwap func(hash, version string)

	Metrics WatcherMetrics
}

// Watcher polls a SnapshotSource and hot-swaps changed content into the manager.
type Watcher struct {
	source     SnapshotSource
	manager    *Manager
	logger     log.Logger
	interval   time.Duration
	validation ValidationOptions
	onSwap     func(hash, version string)
	metrics    WatcherMetrics

	fingerprint     string
	consecutiveErrs int

	pollCount int64
	swapCount int64
}

func NewWatcher(opts *WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	validation := DefaultValidationOptions()
	if opts.Validation != nil {
		validation = *opts.Validation
	}
	return &Watcher{
		source:     opts.Source,
		manager:    opts.Manager,
		logger:     opts.Logger,
		interval:   interval,
		validation: validation,
		onSwap:     opts.OnSwap,
		metrics:    opts.Metrics,
	}
}

// Prime records the source's current fingerprint so the first poll does
// not reload what was loaded at startup.
func (w *Watcher) Prime(ctx context.Context) error {
	fp, err := w.source.Fingerprint(ctx)
	if err != nil {
		return err
	}
	w.fingerprint = fp
	return nil
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content watcher starting",
		"poll_interval", w.interval.String(),
		"fingerprint", truncHash(w.fingerprint),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)
			if result == pollStatError {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "content watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				w.logger.Info(ctx, "content watcher: recovered, resuming normal interval",
					"had_consecutive_errors", w.consecutiveErrs,
				)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}
		}
	}
}

func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++

	fp, err := w.source.Fingerprint(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "content watcher: fingerprint failed")
		w.incError("stat")
		return pollStatError
	}
	if fp == w.fingerprint {
		return pollNoChange
	}

	w.logger.Info(ctx, "content watcher: site change detected",
		"old_fingerprint", truncHash(w.fingerprint),
		"new_fingerprint", truncHash(fp),
	)

	snap, err := w.source.Load(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "content watcher: failed to load site")
		w.incError("load")
		return pollLoadError
	}

	// a rejected build keeps its fingerprint unrecorded so a fixed build
	// with identical stat data is still retried on the next poll
	if err := ValidateSnapshot(snap, w.validation); err != nil {
		w.logger.Error(ctx, err, "content watcher: new site failed validation, keeping current content",
			"rejected_hash", truncHash(snap.Meta.SHA256),
			"current_hash", truncHash(w.manager.SiteHash()),
		)
		w.incError("validation")
		return pollValidationError
	}

	oldHash := w.manager.SiteHash()
	w.manager.Set(*snap)
	w.fingerprint = fp
	w.swapCount++

	w.logger.Info(ctx, "content watcher: site swapped",
		"old_hash", truncHash(oldHash),
		"new_hash", truncHash(snap.Meta.SHA256),
		"version", snap.Meta.Version,
		"files", snap.Meta.Files,
		"total_swaps", w.swapCount,
	)
	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}

	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r),
						"content watcher: OnSwap callback panicked, continuing",
					)
				}
			}()
			w.onSwap(snap.Meta.SHA256, snap.Meta.Version)
		}()
	}
	return pollSwapped
}

func (w *Watcher) incError(kind string) {
	if w.metrics != nil {
		w.metrics.IncWatcherError(kind)
	}
}

// backoffDuration doubles the interval per consecutive error, capped at maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	mult := math.Pow(2, float64(w.consecutiveErrs))
	d := time.Duration(float64(w.interval) * mult)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// DirSource is a SnapshotSource over a site build directory. Its
// fingerprint hashes each file's path, size and mtime without reading it.
type DirSource struct {
	Dir string
}

func (d DirSource) Fingerprint(ctx context.Context) (string, error) {
	h := sha256.New()
	var buf [16]byte
	err := fs.WalkDir(os.DirFS(d.Dir), ".", func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			return nil
		}
		fi, err := e.Info()
		if err != nil {
			return err
		}
		io.WriteString(h, p)
		binary.BigEndian.PutUint64(buf[:8], uint64(fi.Size()))
		binary.BigEndian.PutUint64(buf[8:], uint64(fi.ModTime().UnixNano()))
		h.Write(buf[:])
		return nil
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "content: fingerprint %s", d.Dir)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (d DirSource) Load(_ context.Context) (*Snapshot, error) {
	return LoadDir(d.Dir)
}
