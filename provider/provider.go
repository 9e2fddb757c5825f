package provider

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Stat when the path names nothing on the backend.
// Callers that branch on destination kind (file / dir / absent) test for it
// with errors.Is.
var ErrNotFound = errors.New("path not found")

// FileInfo represents the standard metadata for a file or a directory
// across different storage backends.
type FileInfo interface {
	Name() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
}

// Provider represents a storage backend abstraction.
// A typical Provider might be the local filesystem or a remote object store.
type Provider interface {
	// Stat returns the FileInfo for the given path, or ErrNotFound.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// List returns the contents of the given directory.
	List(ctx context.Context, path string) ([]FileInfo, error)

	// OpenRead opens a file for streaming reads.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite opens a file for streaming writes, applying metadata if supported.
	// Close flushes the write; errors from the underlying store surface there.
	OpenWrite(ctx context.Context, path string, metadata FileInfo) (io.WriteCloser, error)
}
