package ixgest

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/pwcmeta/am"
	"github.com/teranos/pwcmeta/errors"
	"github.com/teranos/pwcmeta/fetch"
	"github.com/teranos/pwcmeta/logger"
	"github.com/teranos/pwcmeta/pulse"
)

// Pipeline wires dispatcher, concatenator and aggregator for one run.
type Pipeline struct {
	RunID        string
	Dispatcher   *Dispatcher
	Concatenator *Concatenator
	Aggregator   *Aggregator
	BatchCount   int           // desired batches when Dispatcher.BatchSize is 0
	ArtifactDir  string        // removed after a successful run
	Deadline     time.Duration // 0 = none
	Logger       *zap.SugaredLogger

	// OnResult, if set, observes each result after ingestion.
	OnResult func(Result)
}

// New builds a Pipeline from configuration: a fresh run id, a per-run
// artifact directory, a worker pool around fetcher, and store paths next to
// the configured canonical store. metrics may be nil.
func New(cfg *am.Config, fetcher fetch.Fetcher, metrics *pulse.Metrics, log *zap.SugaredLogger) (*Pipeline, *pulse.WorkerPool, error) {
	log = logger.OrNop(log)
	runID := uuid.NewString()

	dir, err := pulse.MakeArtifactDir(cfg.Location.WorkDir, runID[:8])
	if err != nil {
		return nil, nil, err
	}

	pool := pulse.NewWorkerPool(pulse.Config{
		Workers: cfg.Extract.Workers,
		Policy: pulse.RetryPolicy{
			Backoff:     cfg.Extract.RetryBackoff(),
			MaxAttempts: cfg.Extract.MaxAttempts,
			MaxElapsed:  cfg.Extract.MaxItemElapsed(),
		},
		ArtifactDir: dir,
	}, fetcher, metrics, log)

	p := &Pipeline{
		RunID: runID,
		Dispatcher: &Dispatcher{
			Pool:      pool,
			BatchSize: cfg.Extract.BatchSize, // resolved against the input in Run when 0
			Logger:    log.Named("dispatch"),
		},
		Concatenator: &Concatenator{Path: cfg.MergedPath(), BufferSize: cfg.Extract.CopyBufferBytes},
		Aggregator: &Aggregator{
			MergedPath:    cfg.MergedPath(),
			CanonicalPath: cfg.Location.Metadata,
			Logger:        log.Named("aggregate"),
		},
		BatchCount:  cfg.Extract.BatchCount,
		ArtifactDir: dir,
		Deadline:    cfg.Extract.Deadline(),
		Logger:      log.Named("ixgest"),
	}
	return p, pool, nil
}

// Run processes items end to end and returns the run report.
//
// Every item yields exactly one result. Artifacts are ingested in arrival
// order by this goroutine alone. On cancellation or deadline, results
// already in flight are still ingested, the merged store is kept and no
// canonical store is written; the returned error wraps ctx.Err().
func (p *Pipeline) Run(ctx context.Context, items []WorkItem) (*Report, error) {
	log := logger.OrNop(p.Logger).With(logger.FieldRunID, p.RunID)
	report := newReport(p.RunID)
	report.MergedStore = p.Concatenator.Path
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}
	// cancelled on a fatal ingest error to stop new batches
	ctx, abort := context.WithCancel(ctx)
	defer abort()

	if err := p.Concatenator.Reset(); err != nil {
		report.fail(err)
		return report, err
	}

	dispatcher := *p.Dispatcher
	dispatcher.BatchSize = BatchSize(len(items), p.BatchCount, p.Dispatcher.BatchSize)

	log.Infow("Run starting",
		logger.FieldTotalCount, len(items),
		logger.FieldBatchSize, dispatcher.BatchSize)

	results := make(chan Result, max(1, p.workers()))
	dispatched := make(chan error, 1)
	go func() {
		defer close(results)
		dispatched <- dispatcher.Dispatch(ctx, items, results)
	}()

	var fatal error
	for res := range results {
		report.add(res)
		if res.ArtifactPath != "" {
			if fatal != nil {
				os.Remove(res.ArtifactPath)
			} else {
				p.ingest(log, res, report, &fatal, abort)
			}
		}
		if p.OnResult != nil {
			p.OnResult(res)
		}
	}
	dispatchErr := <-dispatched

	if report.Items != len(items) {
		err := errors.AssertionFailedf("produced %d results for %d items", report.Items, len(items))
		report.fail(err)
		return report, err
	}
	if fatal != nil {
		report.fail(fatal)
		return report, fatal
	}
	if dispatchErr != nil || report.Skipped > 0 {
		cause := dispatchErr
		if cause == nil {
			cause = ctx.Err()
		}
		if cause == nil {
			cause = context.Canceled
		}
		err := errors.WithHintf(errors.Wrapf(cause, "run cancelled after %d of %d items", report.Succeeded+report.Failed, len(items)),
			"merged store kept at %s", p.Concatenator.Path)
		report.fail(err)
		log.Warnw("Run cancelled", logger.FieldError, err)
		return report, err
	}

	stats, err := p.Aggregator.Aggregate(p.Concatenator.Size())
	report.UniqueStatements = stats.Unique
	report.PartialLines = stats.PartialLines
	if err != nil {
		report.fail(err)
		return report, err
	}
	report.CanonicalStore = p.Aggregator.CanonicalPath

	if err := os.Remove(p.Concatenator.Path); err != nil {
		log.Warnw("Could not remove merged store", logger.FieldPath, p.Concatenator.Path, logger.FieldError, err)
	}
	if p.ArtifactDir != "" {
		if err := os.RemoveAll(p.ArtifactDir); err != nil {
			log.Warnw("Could not remove artifact directory", logger.FieldPath, p.ArtifactDir, logger.FieldError, err)
		}
	}

	report.Duration = time.Since(start)
	if lost := report.Lost(); lost > 0 {
		log.Warnw("Statements of some items never reached the canonical store",
			"lost_artifacts", lost,
			logger.FieldPath, p.Aggregator.CanonicalPath)
	}
	log.Infow("Run complete",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"lost_artifacts", report.Lost(),
		"unique", report.UniqueStatements,
		logger.FieldDurationMS, report.Duration.Milliseconds())
	return report, nil
}

func (p *Pipeline) ingest(log *zap.SugaredLogger, res Result, report *Report, fatal *error, abort context.CancelFunc) {
	n, err := p.Concatenator.Ingest(res.ArtifactPath)
	report.BytesIngested += n
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrAggregationIO):
		log.Errorw("Merged store write failed; stopping run",
			logger.FieldArtifact, res.ArtifactPath,
			logger.FieldError, err)
		*fatal = err
		abort()
	case errors.Is(err, errors.ErrPartialArtifact):
		report.LostArtifacts++
		log.Warnw("Artifact could not be ingested",
			logger.FieldRepoURL, res.Item.RepoURL,
			logger.FieldArtifact, res.ArtifactPath,
			logger.FieldError, err)
	default:
		// bytes are in; only the cleanup failed
		log.Debugw("Artifact cleanup failed", logger.FieldArtifact, res.ArtifactPath, logger.FieldError, err)
	}
}

func (p *Pipeline) workers() int {
	if w, ok := p.Dispatcher.Pool.(interface{ Workers() int }); ok {
		return w.Workers()
	}
	return 1
}
