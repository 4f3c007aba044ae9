package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/baharkarakas/pixelmart/internal/metrics"
)

type task struct {
	name string
	run  func(context.Context) error
}

type Options struct {
	Workers  int
	Queue    int
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Pool runs best-effort side effects (audit writes, notifications) off the
// request path. Each task is retried with doubling delay; a task that still
// fails is logged and dropped.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan task
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
}

func NewPool(opts Options) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Queue < 1 {
		opts.Queue = 1024
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Delay <= 0 {
		opts.Delay = 100 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{jobs: make(chan task, opts.Queue), opts: opts, ctx: ctx, cancel: cancel}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				p.runTask(job)
			}
		}()
	}
	return p
}

func (p *Pool) runTask(t task) {
	err := retry.Call(retry.CallArgs{
		Func:        func() error { return t.run(p.ctx) },
		Attempts:    p.opts.Attempts,
		Delay:       p.opts.Delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       p.opts.Clock,
		Stop:        p.ctx.Done(),
		IsFatalError: func(err error) bool {
			return errors.Is(err, errors.NotValid) || errors.Is(err, errors.NotFound)
		},
		NotifyFunc: func(err error, attempt int) {
			p.opts.Logger.Debug("task attempt failed", "task", t.name, "attempt", attempt, "err", err)
		},
	})
	if err != nil {
		metrics.WorkerTasksFailed.WithLabelValues(t.name).Inc()
		p.opts.Logger.Error("task failed", "task", t.name, "err", retry.LastError(err))
	}
}

// Submit queues fn under name. It returns false once the pool is stopping.
// Submit blocks while the queue is full.
func (p *Pool) Submit(name string, fn func(context.Context) error) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	metrics.WorkerQueueDepth.Inc()
	p.jobs <- task{name: name, run: fn}
	return true
}

// Stop drains queued tasks and waits for the workers to exit. Retries still
// waiting on a delay are abandoned.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		p.cancel()
		<-done
	}
	p.cancel()
}
