package engine

import (
	"context"
	"fmt"
	"sync"
)

// Handler processes one dequeued Item. A non-nil error is fatal to the batch.
type Handler func(context.Context, Item) error

// ItemError couples a failed item with its underlying error.
type ItemError struct {
	Item string
	Err  error
}

func (e *ItemError) Error() string { return fmt.Sprintf("%s: %v", e.Item, e.Err) }
func (e *ItemError) Unwrap() error { return e.Err }

// WorkerPool runs a fixed set of workers draining an ItemChannel. Each item
// is delivered to exactly one worker. The first handler error is recorded
// and the pool context cancelled, so idle workers stop pulling new work
// while in-flight transfers drain; there is no per-item retry.
type WorkerPool struct {
	items   ItemChannel
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	mu     sync.Mutex
	failed *ItemError
}

// NewWorkerPool creates a pool reading from items. No workers run until
// Start is called.
func NewWorkerPool(ctx context.Context, items ItemChannel, handler Handler) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		items:   items,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches exactly count workers.
func (p *WorkerPool) Start(count int) {
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.items:
			if !ok {
				// Queue closed and drained, no more work is coming.
				return
			}
			if err := p.handler(p.ctx, item); err != nil {
				p.fail(item, err)
				return
			}
		}
	}
}

func (p *WorkerPool) fail(item Item, err error) {
	p.mu.Lock()
	if p.failed == nil {
		p.failed = &ItemError{Item: item.Source, Err: err}
	}
	p.mu.Unlock()
	p.cancel()
}

// Done is closed once the pool has observed a fatal error or its parent
// context was cancelled. The producer uses it to stop feeding the queue.
func (p *WorkerPool) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Wait blocks until every started worker has exited and returns the first
// fatal error, if any. Completion counts read after Wait are final.
func (p *WorkerPool) Wait() *ItemError {
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}
