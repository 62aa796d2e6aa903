package pool

import (
	"context"
	"sync"

	"audioDiarizer/worker/kafka"
)

// WorkerPool bounds how many task executions run in this process at once.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit blocks until a worker slot is free, then runs the handler on its own
// goroutine. Acceptance is blocking so that backlog stays in the queue feeding
// Submit rather than piling up as per-message goroutines.
func (p *WorkerPool) Submit(ctx context.Context, msg *kafka.TaskMessage, handler func(context.Context, *kafka.TaskMessage) error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		handler(ctx, msg)
	}()
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
