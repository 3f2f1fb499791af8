// Package worker implements the ingestion poll loop: claim a job, process
// it, record the outcome, repeat — plus a ticker-driven lock sweeper that
// recovers jobs stuck 'locked' by a worker that crashed mid-job, and an
// optional LISTEN/NOTIFY wake-up to cut tail latency on an idle queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/albapepper/chess-ingest/internal/config"
	"github.com/albapepper/chess-ingest/internal/ingest"
	"github.com/albapepper/chess-ingest/internal/jobqueue"
)

// Loop drives the claim/process/record cycle against the job store.
type Loop struct {
	jobs      *jobqueue.Store
	processor *ingest.Processor
	cfg       *config.Config
	log       *slog.Logger
}

// New builds a Loop.
func New(jobs *jobqueue.Store, processor *ingest.Processor, cfg *config.Config, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{jobs: jobs, processor: processor, cfg: cfg, log: log}
}

// RunOnce processes at most one queued job. Returns (true, nil) if a job
// was claimed and processed (regardless of its own success/failure),
// (false, nil) if the queue was empty.
func (l *Loop) RunOnce(ctx context.Context) (bool, error) {
	job, err := l.jobs.Claim(ctx)
	if err != nil {
		if errors.Is(err, jobqueue.ErrNoJobAvailable) {
			return false, nil
		}
		return false, err
	}

	start := time.Now()
	l.log.Info("processing job", "job_id", job.ID, "platform", job.Platform, "kind", job.Kind)

	if procErr := l.processor.Process(ctx, job); procErr != nil {
		l.log.Error("job failed", "job_id", job.ID, "platform", job.Platform, "kind", job.Kind,
			"attempts", job.Attempts, "duration", time.Since(start), "error", procErr)
		if markErr := l.jobs.MarkFailure(ctx, job, procErr); markErr != nil {
			return true, markErr
		}
		return true, nil
	}

	if err := l.jobs.MarkSuccess(ctx, job.ID); err != nil {
		return true, err
	}
	l.log.Info("job succeeded", "job_id", job.ID, "platform", job.Platform, "kind", job.Kind,
		"duration", time.Since(start))
	return true, nil
}

// Run polls until ctx is cancelled, sleeping PollInterval between empty
// claims and waking immediately on a wakeup signal (typically the
// LISTEN/NOTIFY consumer) so a freshly enqueued job doesn't wait out a
// full poll cycle on an otherwise idle queue.
func (l *Loop) Run(ctx context.Context, wakeup <-chan struct{}) error {
	l.log.Info("starting ingestion worker loop", "poll_interval", l.cfg.PollInterval)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		processed, err := l.RunOnce(ctx)
		if err != nil {
			l.log.Error("claim/process cycle failed", "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wakeup:
		}
	}
}

// RunSweeper ticks on SweepInterval, moving jobs locked longer than
// StuckThreshold back to 'queued'. There is no native lease expiry in the
// schema, so this explicit sweep is how a crashed worker's claim is
// recovered.
func (l *Loop) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.jobs.SweepStuckJobs(ctx, l.cfg.StuckThreshold)
			if err != nil {
				l.log.Error("lock sweep failed", "error", err)
				continue
			}
			if n > 0 {
				l.log.Warn("recovered stuck jobs", "count", n)
			}
		}
	}
}
