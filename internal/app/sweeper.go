/**
 * @description
 * Cron-driven eviction of idle workspaces.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule is used when no schedule is configured.
const DefaultSweepSchedule = "@every 5m"

// Sweeper evicts idle workspaces on a schedule.
type Sweeper struct {
	cron       *cron.Cron
	workspaces *Workspaces
	logger     *slog.Logger
	schedule   string
	idle       time.Duration
}

// NewSweeper creates a sweeper for workspaces idle longer than idle.
func NewSweeper(workspaces *Workspaces, logger *slog.Logger, schedule string, idle time.Duration) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Sweeper{
		cron:       c,
		workspaces: workspaces,
		logger:     logger,
		schedule:   schedule,
		idle:       idle,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		s.logger.Error("failed to schedule workspace sweep", "error", err)
		return err
	}
	s.logger.Info("scheduled workspace sweep", "schedule", s.schedule, "idle", s.idle.String())
	s.cron.Start()
	return nil
}

// Sweep runs one eviction pass.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	evicted := s.workspaces.EvictIdle(ctx, s.idle)
	if evicted > 0 {
		s.logger.Info("evicted idle workspaces", "count", evicted, "remaining", s.workspaces.Len())
	}
}

// Stop gracefully stops the scheduler.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
