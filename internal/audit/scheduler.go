package audit

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSchedule runs an audit every minute. Schedules take a leading
// seconds field.
const DefaultSchedule = "0 * * * * *"

// Scheduler runs jobs on cron schedules. A job still running when its next
// tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger zerolog.Logger
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    context.Background(),
		logger: logger,
	}
}

// Add registers job; it receives the context passed to Run.
func (s *Scheduler) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() { job(s.ctx) })
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits
// for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("cron started")
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("cron stopped")
	return nil
}

// ScheduleAudits runs a every tick of spec, logging failures.
func ScheduleAudits(s *Scheduler, a *Auditor, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	return s.Add(spec, func(ctx context.Context) {
		if _, err := a.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("audit run failed")
		}
	})
}
