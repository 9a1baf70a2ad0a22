package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lalith-99/chatlog/internal/observ"
)

// ErrQueueFull is returned by the in-process executor when its buffer is
// full; enqueueing never blocks the request path.
var ErrQueueFull = errors.New("task queue is full")

// ErrClosed is returned for tasks enqueued after Close.
var ErrClosed = errors.New("task executor is closed")

type job struct {
	kind    Kind
	data    []byte
	attempt int
}

// MemoryExecutor is a channel-backed worker pool. Tasks live only in this
// process, so a crash loses whatever is still buffered; use it for tests
// and single-binary development, NATS everywhere else.
type MemoryExecutor struct {
	jobs    chan job
	workers int
	policy  Policy
	logger  *zap.Logger
	metrics *observ.Metrics

	done      chan struct{}
	closeOnce sync.Once
	timers    sync.WaitGroup

	inFlight    atomic.Int64
	delayed     atomic.Int64
	redelivered atomic.Uint64
	abandoned   atomic.Uint64
}

func NewMemoryExecutor(queueSize, workers int, policy Policy, logger *zap.Logger, metrics *observ.Metrics) *MemoryExecutor {
	return &MemoryExecutor{
		jobs:    make(chan job, queueSize),
		workers: workers,
		policy:  policy,
		logger:  logger.Named("tasks"),
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

func (e *MemoryExecutor) EnqueuePersistChat(_ context.Context, t PersistChat) error {
	data, err := encode(KindPersistChat, t)
	if err != nil {
		return err
	}
	return e.push(job{kind: KindPersistChat, data: data, attempt: 1})
}

func (e *MemoryExecutor) EnqueuePersistMessage(_ context.Context, t PersistMessage) error {
	data, err := encode(KindPersistMessage, t)
	if err != nil {
		return err
	}
	return e.push(job{kind: KindPersistMessage, data: data, attempt: 1})
}

func (e *MemoryExecutor) push(j job) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	select {
	case e.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the worker pool until ctx is cancelled or Close is called.
func (e *MemoryExecutor) Start(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.logger.Debug("worker started", zap.Int("worker", workerID))
			for {
				select {
				case <-ctx.Done():
					return
				case <-e.done:
					return
				case j := <-e.jobs:
					e.run(ctx, h, j)
				}
			}
		}(i)
	}
	wg.Wait()
	return nil
}

func (e *MemoryExecutor) run(ctx context.Context, h Handler, j job) {
	e.inFlight.Add(1)
	err := dispatch(ctx, h, j.kind, j.data)
	e.inFlight.Add(-1)

	if !outcome(e.logger, e.metrics, e.policy, j.kind, j.data, j.attempt, err) {
		if err != nil {
			e.abandoned.Add(1)
		}
		return
	}

	delay := e.policy.Delay(j.attempt)
	j.attempt++
	e.redelivered.Add(1)
	e.delayed.Add(1)
	e.timers.Add(1)
	time.AfterFunc(delay, func() {
		defer e.timers.Done()
		defer e.delayed.Add(-1)
		select {
		case e.jobs <- j:
		case <-e.done:
		}
	})
}

func (e *MemoryExecutor) Stats(context.Context) (Stats, error) {
	return Stats{
		Driver:      "memory",
		Workers:     e.workers,
		Pending:     uint64(len(e.jobs)) + uint64(max(e.delayed.Load(), 0)),
		InFlight:    uint64(max(e.inFlight.Load(), 0)),
		Redelivered: e.redelivered.Load(),
		Abandoned:   e.abandoned.Load(),
		MaxAttempts: e.policy.MaxAttempts,
	}, nil
}

// Close stops accepting tasks and releases pending retry timers.
func (e *MemoryExecutor) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	e.timers.Wait()
	return nil
}
