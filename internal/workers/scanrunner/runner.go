package scanrunner

import (
	"context"
	"sync"
	"time"

	"orgwatch/internal/logger"
	"orgwatch/internal/ports"
)

// ScanProcessor performs the scan work for a job's scan id.
type ScanProcessor interface {
	Process(ctx context.Context, scanID string) error
}

// Tracker observes jobs in flight.
type Tracker interface {
	JobStarted() (done func())
}

type Options struct {
	Concurrency  int
	PollInterval time.Duration
	Log          logger.Logger
	Tracker      Tracker
}

// Run starts a dispatcher that claims queued jobs and a fixed set of workers
// that process them. The returned channel closes once ctx is done and every
// worker has returned.
func Run(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, opts Options) <-chan struct{} {
	done := make(chan struct{})
	if opts.Concurrency < 1 {
		close(done)
		return done
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Log == nil {
		opts.Log = logger.NewNop()
	}
	jobsCh := make(chan ports.ScanJob, opts.Concurrency)

	// dispatcher loop
	go func() {
		defer close(jobsCh)
		ticker := time.NewTicker(opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for {
				job, found, err := repo.ClaimNext(ctx)
				if err != nil {
					if ctx.Err() == nil {
						opts.Log.Error("job claim failed", logger.Error(err))
					}
					break
				}
				if !found {
					break
				}
				select {
				case jobsCh <- job:
				case <-ctx.Done():
					_ = repo.MarkFailed(ctx, job.ID, "shutdown before processing")
					return
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			log := opts.Log.With(logger.Int("worker", idx))
			for job := range jobsCh {
				process(ctx, repo, processor, job, opts.Tracker, log)
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func process(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, job ports.ScanJob, tracker Tracker, log logger.Logger) {
	if tracker != nil {
		defer tracker.JobStarted()()
	}
	log = log.With(logger.String("job_id", job.ID), logger.String("scan_id", job.ScanID))
	if err := processor.Process(ctx, job.ScanID); err != nil {
		log.Error("scan job failed", logger.Error(err))
		if err := repo.MarkFailed(ctx, job.ID, err.Error()); err != nil {
			log.Error("could not mark job failed", logger.Error(err))
		}
		return
	}
	if err := repo.MarkCompleted(ctx, job.ID); err != nil {
		log.Error("could not mark job completed", logger.Error(err))
	}
}

// ProcessInline starts and processes a specific scan synchronously using the same processor logic
// as the background workers. It marks the job as running, calls processor.Process, and completes or fails.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, scanID string) error {
	jobID, err := repo.StartJobForScan(ctx, scanID)
	if err != nil {
		return err
	}
	if err := processor.Process(ctx, scanID); err != nil {
		_ = repo.MarkFailed(ctx, jobID, err.Error())
		return err
	}
	return repo.MarkCompleted(ctx, jobID)
}
