package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/app"
)

// SweepScheduler runs every registered sweep on its own cron spec. A sweep
// still running when its next tick fires is skipped, not stacked.
type SweepScheduler struct {
	cronEngine *cron.Cron
	sweeps     *app.Sweeps
	specs      map[string]string
	jobTimeout time.Duration
	logger     *logrus.Entry
	now        func() time.Time
}

func NewSweepScheduler(sweeps *app.Sweeps, specs map[string]string, jobTimeout time.Duration, logger *logrus.Entry) *SweepScheduler {
	cronLogger := cron.PrintfLogger(logger.WithField("component", "cron"))
	return &SweepScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeps:     sweeps,
		specs:      specs,
		jobTimeout: jobTimeout,
		logger:     logger.WithField("component", "scheduler"),
		now:        time.Now,
	}
}

// Start registers one job per sweep with a non-empty spec and starts the
// cron engine.
func (s *SweepScheduler) Start() error {
	s.logger.Info("Starting sweep scheduler...")

	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		name := name
		spec := s.specs[name]
		if spec == "" {
			s.logger.WithField("sweep", name).Info("Sweep has no schedule, skipping")
			continue
		}
		if _, ok := s.sweeps.Get(name); !ok {
			return fmt.Errorf("%w: %q", app.ErrUnknownSweep, name)
		}
		if _, err := s.cronEngine.AddFunc(spec, func() { s.run(name) }); err != nil {
			return fmt.Errorf("could not add %s cron job with spec %q: %w", name, spec, err)
		}
		s.logger.WithFields(logrus.Fields{"sweep": name, "spec": spec}).Info("Sweep scheduled")
	}

	s.cronEngine.Start()
	s.logger.Info("Sweep scheduler started with jobs.")
	return nil
}

func (s *SweepScheduler) run(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	report, err := s.sweeps.Run(ctx, name, s.now().UTC())
	if err != nil {
		s.logger.WithError(err).WithField("sweep", name).Error("Sweep could not run")
		return
	}
	entry := s.logger.WithFields(report.Fields())
	switch {
	case report.Failed > 0:
		entry.WithField("errors", report.Errors).Warn("Sweep finished with failures")
	case report.Processed > 0:
		entry.Info("Sweep finished")
	default:
		entry.Debug("Sweep finished, nothing to do")
	}
}

func (s *SweepScheduler) Stop() {
	s.logger.Info("Stopping sweep scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Sweep scheduler gracefully stopped.")
}
