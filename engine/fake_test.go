package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hollowaylabs/dcp/provider"
)

type fakeFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return f.size }
func (f fakeFileInfo) IsDir() bool        { return f.isDir }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }

// fakeRemote is an in-memory data:// store. Keys are stored without the
// scheme prefix, mirroring the real provider's key handling.
type fakeRemote struct {
	mu      sync.Mutex
	objects map[string][]byte
	dirs    map[string]bool

	// peakWriters observes the highest number of concurrent open writers.
	writers     atomic.Int32
	peakWriters atomic.Int32

	// writeDelay slows writes down so concurrency is observable.
	writeDelay time.Duration

	// failPut makes writes to this key fail on close.
	failPut string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		objects: make(map[string][]byte),
		dirs:    make(map[string]bool),
	}
}

func (f *fakeRemote) key(pth string) string {
	_, rest, _ := provider.SplitURI(pth)
	return rest
}

func (f *fakeRemote) Stat(ctx context.Context, pth string) (provider.FileInfo, error) {
	key := f.key(pth)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dirs[key] {
		return fakeFileInfo{name: key, isDir: true}, nil
	}
	if data, ok := f.objects[key]; ok {
		return fakeFileInfo{name: key, size: int64(len(data))}, nil
	}
	return nil, provider.ErrNotFound
}

func (f *fakeRemote) List(ctx context.Context, pth string) ([]provider.FileInfo, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRemote) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	key := f.key(pth)
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, provider.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeRemote) OpenWrite(ctx context.Context, pth string, metadata provider.FileInfo) (io.WriteCloser, error) {
	key := f.key(pth)

	n := f.writers.Add(1)
	for {
		peak := f.peakWriters.Load()
		if n <= peak || f.peakWriters.CompareAndSwap(peak, n) {
			break
		}
	}

	return &fakeRemoteWriter{remote: f, key: key}, nil
}

func (f *fakeRemote) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

type fakeRemoteWriter struct {
	remote *fakeRemote
	key    string
	buf    bytes.Buffer
}

func (w *fakeRemoteWriter) Write(p []byte) (int, error) {
	if w.remote.writeDelay > 0 {
		time.Sleep(w.remote.writeDelay)
	}
	return w.buf.Write(p)
}

func (w *fakeRemoteWriter) Close() error {
	defer w.remote.writers.Add(-1)

	if w.remote.failPut != "" && w.key == w.remote.failPut {
		return fmt.Errorf("put rejected")
	}

	w.remote.mu.Lock()
	w.remote.objects[w.key] = append([]byte(nil), w.buf.Bytes()...)
	w.remote.mu.Unlock()
	return nil
}
