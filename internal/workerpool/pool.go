// Package workerpool runs submitted tasks on a fixed set of goroutines fed by a
// bounded queue.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/arloliu/subwatch/types"
)

type job struct {
	task func()
	done chan struct{}
}

// Pool is a fixed-size worker pool.
//
// Submit never blocks: a full queue is reported as ErrQueueFull so callers can pick
// their own fallback. Panics in tasks are recovered and logged; the worker survives.
type Pool struct {
	name   string
	logger types.Logger
	queue  chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a pool with size workers and a queue holding queueSize pending tasks.
//
// Parameters:
//   - name: Pool name used in log fields
//   - size: Number of worker goroutines (minimum 1)
//   - queueSize: Pending task capacity (minimum 0, unbuffered)
//   - logger: Logger for recovered panics
//
// Returns:
//   - *Pool: Running pool; call Close to stop it
func New(name string, size, queueSize int, logger types.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		name:   name,
		logger: logger,
		queue:  make(chan job, queueSize),
	}

	for i := 0; i < size; i++ {
		p.wg.Go(p.worker)
	}

	return p
}

// Submit enqueues task.
//
// Returns:
//   - <-chan struct{}: Closed once the task has finished (including by panic)
//   - error: ErrPoolClosed after Close, ErrQueueFull when no slot is free
func (p *Pool) Submit(task func()) (<-chan struct{}, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, types.ErrPoolClosed
	}

	j := job{task: task, done: make(chan struct{})}
	select {
	case p.queue <- j:
		return j.done, nil
	default:
		return nil, types.ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued tasks to drain.
//
// Returns:
//   - error: ctx.Err() if ctx ends before all workers exit
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workerpool %s: drain: %w", p.name, ctx.Err())
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

func (p *Pool) worker() {
	for j := range p.queue {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "pool", p.name, "panic", r)
		}
	}()

	j.task()
}
