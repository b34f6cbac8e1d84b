// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultSweepInterval is how often expired one-time-code tickets are purged.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper drops expired entries and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

// Scheduler manages scheduled tasks for the application.
type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
}

// New creates a scheduler running on UTC.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{scheduler: gocron.NewScheduler(time.UTC), logger: logger}
}

// Sweep registers store to be swept every interval.
func (s *Scheduler) Sweep(name string, every time.Duration, store Sweeper) error {
	if every <= 0 {
		every = DefaultSweepInterval
	}
	_, err := s.scheduler.Every(every).Do(func() {
		if removed := store.Sweep(); removed > 0 {
			s.logger.Info("swept expired entries", slog.String("job", name), slog.Int("removed", removed))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start runs the scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
