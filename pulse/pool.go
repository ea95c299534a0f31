// Package pulse runs metadata fetches for one batch of work items on a
// bounded set of goroutines, applying the retry policy per item and writing
// one artifact file per item.
package pulse

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/fetch"
	"github.com/teranos/pwcmeta/ixgest/types"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/sym"
)

// pulseLogger wraps zap.SugaredLogger with lifecycle helpers:
// Starting at DEBUG, Closing at WARN, Pulse at INFO.
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an opening event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, keysAndValues...)
}

// Closing logs a closing event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, keysAndValues...)
}

// Pulse logs general pool operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(sym.Pulse+" "+msg, keysAndValues...)
}

// Config configures a WorkerPool
type Config struct {
	Workers     int         // concurrent fetches; at least 1
	Policy      RetryPolicy // per-item retry policy
	ArtifactDir string      // directory for per-item artifacts; must exist
}

// WorkerPool executes fetches for a batch with bounded concurrency.
// A WorkerPool holds no per-batch state and may be reused across batches,
// but Run calls must not overlap.
type WorkerPool struct {
	cfg     Config
	fetcher fetch.Fetcher
	metrics *Metrics
	logger  pulseLogger

	// Sleep waits between retries; tests replace it to record delays.
	Sleep SleepFunc

	memOnce sync.Once
}

// NewWorkerPool creates a pool. metrics and log may be nil.
func NewWorkerPool(cfg Config, fetcher fetch.Fetcher, metrics *Metrics, log *zap.SugaredLogger) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &WorkerPool{
		cfg:     cfg,
		fetcher: fetcher,
		metrics: metrics,
		logger:  pulseLogger{logger.OrNop(log).Named("pulse")},
		Sleep:   Sleep,
	}
}

// Workers returns the configured concurrency.
func (wp *WorkerPool) Workers() int { return wp.cfg.Workers }

// Run processes every item of batch and sends exactly one Result per item
// to results, in completion order. It returns once all Results are sent.
//
// Cancelling ctx does not stop Run early: in-flight fetches see the
// cancellation, and items not yet started are emitted as skipped, each with
// an empty artifact.
func (wp *WorkerPool) Run(ctx context.Context, batch []types.WorkItem, results chan<- types.Result) {
	if len(batch) == 0 {
		return
	}
	workers := min(wp.cfg.Workers, len(batch))
	wp.memOnce.Do(func() { wp.checkMemory(wp.cfg.Workers) })

	wp.logger.Starting("Batch starting", logger.FieldBatchSize, len(batch), "workers", workers)
	start := time.Now()

	jobs := make(chan types.WorkItem)
	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for item := range jobs {
				res := wp.process(ctx, id, item)
				wp.metrics.observeResult(res)
				results <- res
			}
		}(id)
	}

	for _, item := range batch {
		jobs <- item
	}
	close(jobs)
	wg.Wait()

	wp.logger.Closing("Batch complete",
		logger.FieldBatchSize, len(batch),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
}

// process runs one item to a final Result. It never panics.
func (wp *WorkerPool) process(ctx context.Context, workerID int, item types.WorkItem) types.Result {
	res := types.Result{Item: item}

	if ctx.Err() == nil {
		outcome, attempts, cancelled := wp.fetchWithRetry(ctx, workerID, item)
		res.Attempts = attempts
		res.Skipped = cancelled
		if !outcome.OK() {
			res.Failure = outcome.Failure
		} else {
			res.Statements = len(outcome.Statements)
		}

		if !res.Skipped && outcome.OK() {
			path, written, err := writeArtifact(wp.cfg.ArtifactDir, item, outcome.Statements)
			res.ArtifactPath = path
			if err != nil {
				res.Err = err
				res.Statements = 0
				wp.logger.Errorw("Artifact write failed",
					logger.FieldRepoURL, item.RepoURL,
					logger.FieldError, err)
				return res
			}
			wp.logger.Debugw("Artifact written",
				logger.FieldArtifact, path,
				logger.FieldStatements, written.Statements,
				logger.FieldBytes, written.Bytes)
			return res
		}
	} else {
		res.Skipped = true
	}

	if res.Failure != nil && !res.Skipped {
		wp.logger.Infow("Item failed",
			logger.FieldRepoURL, item.RepoURL,
			logger.FieldSeq, item.Seq,
			logger.FieldKind, res.Failure.Kind.String(),
			logger.FieldAttempt, res.Attempts,
			logger.FieldError, res.Failure.Err)
	}

	// failed and skipped items still get their (empty) artifact
	path, _, err := writeArtifact(wp.cfg.ArtifactDir, item, nil)
	res.ArtifactPath = path
	if err != nil {
		res.Err = err
	}
	return res
}

// fetchWithRetry calls the fetcher until it succeeds, fails terminally or
// the policy is exhausted. cancelled reports that ctx ended the retries.
func (wp *WorkerPool) fetchWithRetry(ctx context.Context, workerID int, item types.WorkItem) (out fetch.Outcome, attempts int, cancelled bool) {
	start := time.Now()
	for attempts = 1; ; attempts++ {
		callStart := time.Now()
		out = wp.safeFetch(ctx, item)

		kind := ""
		if !out.OK() {
			kind = out.Failure.Kind.String()
		}
		wp.metrics.observeAttempt(time.Since(callStart), kind)

		if out.OK() || !out.Failure.Kind.Retryable() {
			return out, attempts, false
		}
		if ctx.Err() != nil {
			return out, attempts, true
		}
		if !wp.cfg.Policy.allowRetry(attempts, time.Since(start)) {
			return out, attempts, false
		}

		wp.logger.Warnw("Retrying after transient failure",
			logger.FieldRepoURL, item.RepoURL,
			logger.FieldWorkerID, workerID,
			logger.FieldAttempt, attempts,
			logger.FieldBackoff, wp.cfg.Policy.Backoff.String(),
			logger.FieldError, out.Failure.Err)

		if err := wp.Sleep(ctx, wp.cfg.Policy.Backoff); err != nil {
			return out, attempts, true
		}
	}
}

// safeFetch isolates a panicking fetch to its own item.
func (wp *WorkerPool) safeFetch(ctx context.Context, item types.WorkItem) (out fetch.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("fetch panicked: %v", r)
			wp.logger.Errorw("Recovered panic in fetch",
				logger.FieldRepoURL, item.RepoURL,
				logger.FieldError, err)
			out = fetch.Fail(fetch.PermanentRejection, item.RepoURL, err)
		}
	}()

	out = wp.fetcher.Fetch(ctx, item.RepoURL)
	if !out.OK() && out.Failure.RepoURL == "" {
		out.Failure.RepoURL = item.RepoURL
	}
	return out
}

// MakeArtifactDir creates a fresh artifact directory under parent (or the OS
// temp dir when parent is empty).
func MakeArtifactDir(parent, runID string) (string, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", errors.Wrapf(err, "create %s", parent)
	}
	dir, err := os.MkdirTemp(parent, fmt.Sprintf("pwcmeta-%s-", runID))
	if err != nil {
		return "", errors.Wrap(err, "create artifact directory")
	}
	return dir, nil
}
