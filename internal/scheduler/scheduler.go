// Package scheduler runs the periodic background tasks: PnL snapshots,
// stale-position reaping, and retention pruning. Each task is independently
// supervised; a panic or error in one never affects the others.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives a set of tasks on independent tickers.
type Scheduler struct {
	tasks []Task
	log   *logrus.Entry
	wg    sync.WaitGroup
}

// New creates a scheduler.
func New(log *logrus.Logger) *Scheduler {
	return &Scheduler{log: log.WithField("component", "scheduler")}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.tasks = append(s.tasks, Task{Name: name, Interval: interval, Run: run})
}

// Start launches one goroutine per task.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.runTask(ctx, t)
		}(t)
	}
}

// Wait blocks until all task goroutines exit.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runTask(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	log := s.log.WithField("task", t.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t, log)
		}
	}
}

// runOnce executes one tick with panic isolation.
func (s *Scheduler) runOnce(ctx context.Context, t Task, log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("task panicked")
		}
	}()

	if err := t.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Warn("task run failed")
	}
}
