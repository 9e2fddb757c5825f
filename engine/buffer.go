package engine

import "sync"

// DefaultBufferSize is the size of copy buffers handed to workers. 1MB keeps
// syscall overhead low on both disk and network streams.
const DefaultBufferSize = 1 * 1024 * 1024

// BufferPool hands out reusable copy buffers so concurrent transfers don't
// churn the garbage collector.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size.
// If size is <= 0, DefaultBufferSize is used.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get retrieves a buffer; the caller should return it with Put when done.
func (bp *BufferPool) Get() *[]byte {
	return bp.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool. The caller must not touch it afterwards.
func (bp *BufferPool) Put(b *[]byte) {
	if b != nil {
		bp.pool.Put(b)
	}
}
