// Package worker runs fire-and-forget tasks on a fixed set of goroutines.
//
// Request handlers use it for writes the response must not wait on, such as
// recording a profile visit or sending a reset mail. A failed task is logged
// and dropped.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("worker: pool stopped")

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = errors.New("worker: queue full")

// Task is one unit of background work. ctx carries the task timeout.
type Task func(ctx context.Context) error

type job struct {
	name string
	fn   Task
}

// Pool is a bounded queue drained by a fixed number of goroutines.
type Pool struct {
	logger  *slog.Logger
	timeout time.Duration
	queue   chan job

	mu      sync.RWMutex
	stopped bool

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	workers   int
}

// Config sizes a Pool.
type Config struct {
	Workers   int
	QueueSize int
	// TaskTimeout bounds each task. Zero means no limit.
	TaskTimeout time.Duration
}

// NewPool builds a pool. Call Start before submitting.
func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		logger:  logger,
		timeout: cfg.TaskTimeout,
		queue:   make(chan job, cfg.QueueSize),
		workers: cfg.Workers,
	}
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", slog.Int("workers", p.workers), slog.Int("queue", cap(p.queue)))
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Submit queues fn without blocking. It fails when the queue is full or the
// pool has been stopped; the caller decides whether that matters.
func (p *Pool) Submit(name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- job{name: name, fn: fn}:
		return nil
	default:
		p.logger.Warn("worker queue full, dropping task", slog.String("task", name))
		return ErrQueueFull
	}
}

// Stop refuses new tasks, lets the workers finish everything already
// queued, and waits for them to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down worker pool")

		p.mu.Lock()
		p.stopped = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(id, j)
	}
}

func (p *Pool) run(id int, j job) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background task panicked",
				slog.String("task", j.name),
				slog.Int("worker", id),
				slog.Any("panic", r),
			)
		}
	}()

	if err := j.fn(ctx); err != nil {
		p.logger.Error("background task failed",
			slog.String("task", j.name),
			slog.Int("worker", id),
			slog.String("error", err.Error()),
		)
	}
}
