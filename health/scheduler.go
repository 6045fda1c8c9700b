package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/repokeeper/permission"
	"github.com/robfig/cron/v3"
)

// Scheduler runs CheckAll on a cron schedule under administrative rights.
type Scheduler struct {
	cron    *cron.Cron
	checker *Checker
	budget  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	lastRun time.Time
	runs    int
}

// NewScheduler creates a Scheduler running CheckAll with budget per run.
// spec uses the standard five field cron format, e.g. "*/15 * * * *".
func NewScheduler(checker *Checker, spec string, budget time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if checker == nil {
		return nil, ErrCheckerRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(),
		checker: checker,
		budget:  budget,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid health check schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("health check scheduler started")
}

// Stop stops the scheduler and waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("health check scheduler stopped")
}

// Run performs one scheduled pass.
func (s *Scheduler) Run(ctx context.Context) {
	var complete bool
	err := permission.RunAsAdmin(ctx, func(ctx context.Context) error {
		var err error
		complete, err = s.checker.CheckAll(ctx, s.budget)
		return err
	})

	s.mu.Lock()
	s.lastRun = time.Now()
	s.runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scheduled health check failed", "err", err)
		return
	}
	s.logger.Info("scheduled health check finished", "complete", complete)
}

// Runs returns how many passes have run and when the last one finished.
func (s *Scheduler) Runs() (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastRun
}
