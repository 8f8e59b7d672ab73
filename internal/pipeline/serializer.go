package pipeline

import (
	"context"
	"sync"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
)

// queueCapacity bounds the submission queue. Producers block when full,
// which backpressures ingestion instead of dropping descriptors.
const queueCapacity = 1024

type job struct {
	descriptor   *domain.SwapDescriptor
	sellBuffered bool
	sellBufferMs int64
	done         chan struct{}
}

// Serializer is the FIFO queue feeding the single stage worker. Submissions
// are processed strictly in Submit order.
type Serializer struct {
	proc  *Processor
	prom  *observability.Metrics
	queue chan *job

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// NewSerializer creates a serializer around the processor.
func NewSerializer(proc *Processor, prom *observability.Metrics) *Serializer {
	return &Serializer{
		proc:   proc,
		prom:   prom,
		queue:  make(chan *job, queueCapacity),
		closed: make(chan struct{}),
	}
}

// Start launches the worker goroutine. The worker drains until Stop.
func (s *Serializer) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case j := <-s.queue:
				s.prom.QueueDepth.Set(float64(len(s.queue)))
				s.proc.Process(ctx, j.descriptor, j.sellBuffered, j.sellBufferMs)
				close(j.done)
			}
		}
	}()
}

// Submit appends a descriptor to the queue and returns a channel closed when
// its stage completes. Returns nil when the serializer is shut down.
func (s *Serializer) Submit(ctx context.Context, d *domain.SwapDescriptor, sellBuffered bool, sellBufferMs int64) <-chan struct{} {
	j := &job{
		descriptor:   d,
		sellBuffered: sellBuffered,
		sellBufferMs: sellBufferMs,
		done:         make(chan struct{}),
	}
	select {
	case s.queue <- j:
		s.prom.QueueDepth.Set(float64(len(s.queue)))
		return j.done
	case <-s.closed:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Stop halts the worker after the in-flight job finishes. Queued jobs are
// abandoned; the durable ledger has not admitted them, so a restart
// re-ingests safely.
func (s *Serializer) Stop() {
	s.closeOnce.Do(func() { close(s.closed) })
	s.wg.Wait()
}
