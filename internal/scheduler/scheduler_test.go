package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerRunsRegisteredTasks(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	s := New(log)
	var ticks atomic.Int32
	s.Register("counter", 10*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	assert.GreaterOrEqual(t, ticks.Load(), int32(3))
}

func TestSchedulerIsolatesPanickingTask(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	s := New(log)
	var healthy atomic.Int32
	s.Register("panics", 10*time.Millisecond, func(ctx context.Context) error {
		panic("boom")
	})
	s.Register("healthy", 10*time.Millisecond, func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	// The panicking neighbour must not stop the healthy task.
	assert.GreaterOrEqual(t, healthy.Load(), int32(3))
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	s := New(log)
	s.Register("idle", time.Hour, func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
