// Package async runs fire-and-forget tasks on a bounded worker pool.
//
// Tasks never share the caller's context: a request that has already
// returned must not cancel the e-mail or the session cascade it scheduled.
package async

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls pool size and queue behavior.
type Config struct {
	Workers    int
	QueueSize  int
	DropIfFull bool
	// TaskTimeout bounds each task. Zero means no bound.
	TaskTimeout time.Duration
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Runner executes submitted tasks in the background. A nil *Runner runs
// nothing and reports every submission as rejected.
type Runner struct {
	cfg       Config
	logger    *zap.Logger
	ch        chan task
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	completed atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	// OnFailure is called after a task returns an error or panics.
	OnFailure func(name string)
}

func NewRunner(cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		cfg:    cfg,
		logger: logger,
		ch:     make(chan task, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.work()
	}
	return r
}

func (r *Runner) work() {
	defer r.wg.Done()

	for {
		select {
		case t := <-r.ch:
			r.execute(t)
		case <-r.done:
			for {
				select {
				case t := <-r.ch:
					r.execute(t)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) execute(t task) {
	ctx := context.Background()
	if r.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.failed.Add(1)
			r.logger.Error("background task panicked", zap.String("task", t.name), zap.Any("panic", rec))
			if r.OnFailure != nil {
				r.OnFailure(t.name)
			}
		}
	}()

	if err := t.fn(ctx); err != nil {
		r.failed.Add(1)
		r.logger.Error("background task failed", zap.String("task", t.name), zap.Error(err))
		if r.OnFailure != nil {
			r.OnFailure(t.name)
		}
		return
	}
	r.completed.Add(1)
}

// Submit queues fn under name. It returns false when the runner is closed
// or, with DropIfFull, when the queue is full.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) bool {
	if r == nil || fn == nil || r.closed.Load() {
		return false
	}

	t := task{name: name, fn: fn}
	if r.cfg.DropIfFull {
		select {
		case r.ch <- t:
			return true
		case <-r.done:
			return false
		default:
			r.dropped.Add(1)
			r.logger.Warn("background queue full, task dropped", zap.String("task", name))
			return false
		}
	}

	select {
	case r.ch <- t:
		return true
	case <-r.done:
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (r *Runner) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Runner) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

func (r *Runner) Failed() uint64 {
	if r == nil {
		return 0
	}
	return r.failed.Load()
}

func (r *Runner) Completed() uint64 {
	if r == nil {
		return 0
	}
	return r.completed.Load()
}
