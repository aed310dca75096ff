package digest

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"steady/internal/log"
)

// Scheduler runs a Job on a standard five-field cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	job     *Job
	logger  *log.Logger
	baseCtx context.Context
}

func NewScheduler(baseCtx context.Context, job *Job, logger *log.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentDigest)
	}
	return &Scheduler{
		cron:    cron.New(),
		job:     job,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Schedule registers the job. Runs that overlap a slow predecessor are
// skipped rather than queued.
func (s *Scheduler) Schedule(expr string) (cron.EntryID, error) {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(s.runOnce))
	id, err := s.cron.AddJob(expr, wrapped)
	if err != nil {
		return 0, fmt.Errorf("schedule digest %q: %w", expr, err)
	}
	return id, nil
}

func (s *Scheduler) runOnce() {
	if s.baseCtx.Err() != nil {
		return
	}
	if _, err := s.job.Run(s.baseCtx); err != nil {
		log.NewStructuredLogger(s.logger).LogError(s.baseCtx, "Digest run failed", err, log.ComponentDigest, log.OpPublish, nil)
	}
}

// Next reports when the job fires next; zero before Start.
func (s *Scheduler) Next(id cron.EntryID) string {
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return ""
	}
	return next.Format("2006-01-02 15:04 MST")
}

func (s *Scheduler) Start() {
	s.logger.Info("Digest scheduler started", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Digest scheduler stopped")
}
