package triggers

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"conveyor/internal/common/logging"
	"conveyor/internal/strategy"
)

// SubmitFunc receives a run request when a schedule fires.
type SubmitFunc func(ctx context.Context, req strategy.RunRequest)

// Scheduler fires pipeline run requests on cron schedules. Entries are
// standard five-field cron expressions evaluated in UTC.
type Scheduler struct {
	cron   *cron.Cron
	submit SubmitFunc
	logger logging.Logger
	maxRun time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithScheduledRunTimeout bounds each fired run. The default is 4 hours.
func WithScheduledRunTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxRun = d
		}
	}
}

// NewScheduler creates a stopped scheduler delivering to submit.
func NewScheduler(submit SubmitFunc, logger logging.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		submit: submit,
		logger: logger,
		maxRun: 4 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a cron schedule for a run request.
func (s *Scheduler) Add(spec string, req strategy.RunRequest) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("scheduled run firing",
			logging.String("application", req.Application),
			logging.String("component", req.Component),
			logging.String("schedule", spec))

		ctx, cancel := context.WithTimeout(context.Background(), s.maxRun)
		defer cancel()
		s.submit(ctx, req)
	})
	return err
}

// Start begins evaluating schedules in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
