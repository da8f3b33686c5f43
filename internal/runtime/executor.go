// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrExecutorClosed is returned when submitting to a closed executor.
var ErrExecutorClosed = errors.New("executor closed")

type (
	// Executor runs background tasks for deployments.
	Executor interface {
		Submit(task func(ctx context.Context)) error
	}

	// WorkerPool is an Executor with a fixed number of workers.
	WorkerPool struct {
		tasks  chan func(ctx context.Context)
		ctx    context.Context
		cancel context.CancelFunc
		logger *log.Logger

		mu     sync.RWMutex
		closed bool
		wg     sync.WaitGroup
	}
)

// NewWorkerPool starts a pool with the given number of workers (at least one).
func NewWorkerPool(workers int, logger *log.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		tasks:  make(chan func(ctx context.Context), workers*4),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	for range workers {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *WorkerPool) run(task func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("executor task panicked", "panic", r)
		}
	}()
	task(p.ctx)
}

// Submit queues a task. It blocks while the queue is full.
func (p *WorkerPool) Submit(task func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrExecutorClosed
	}
	p.tasks <- task
	return nil
}

// Close stops accepting tasks, cancels the task context and waits for
// queued tasks to finish.
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	return nil
}
