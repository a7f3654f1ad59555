package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Simplifai/internal/logging"
)

// ErrQueueClosed is returned by Enqueue once the workers have stopped.
var ErrQueueClosed = errors.New("queue closed")

// Task is one dispatchable unit of work.
type Task func(ctx context.Context)

// Queue is a bounded task queue drained by a fixed set of workers.
type Queue struct {
	tasks  chan Task
	done   chan struct{}
	closed sync.Once
	log    *zap.Logger
}

// NewQueue constructs a queue holding at most size pending tasks.
func NewQueue(size int, log *zap.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		tasks: make(chan Task, size),
		done:  make(chan struct{}),
		log:   logging.OrNop(log),
	}
}

// Start runs n workers until ctx is cancelled. It returns immediately.
func (q *Queue) Start(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < n; w++ {
		g.Go(func() error {
			for {
				// Stop before taking another task once cancelled.
				if gctx.Err() != nil {
					return nil
				}
				select {
				case <-gctx.Done():
					return nil
				case task := <-q.tasks:
					q.run(gctx, task)
				}
			}
		})
	}
	go func() {
		_ = g.Wait()
		if dropped := len(q.tasks); dropped > 0 {
			q.log.Warn("queue stopped with undelivered tasks", zap.Int("dropped", dropped))
		} else {
			q.log.Info("queue workers stopped")
		}
		q.closed.Do(func() { close(q.done) })
	}()
	q.log.Info("queue workers started", zap.Int("workers", n), zap.Int("capacity", cap(q.tasks)))
}

func (q *Queue) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("task panicked", zap.Any("panic", r))
		}
	}()
	task(ctx)
}

// Enqueue schedules a task. If the queue is full, it blocks until space
// frees up, ctx is done or the workers stop.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue schedules a task without blocking and reports whether it fit.
func (q *Queue) TryEnqueue(task Task) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.tasks <- task:
		return true
	default:
		return false
	}
}

// Wait blocks until every worker has returned. Only valid after Start.
func (q *Queue) Wait() {
	<-q.done
}

// Pending reports how many tasks are waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.tasks)
}
