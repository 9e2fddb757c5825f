package engine

import (
	"context"
	"path/filepath"

	"github.com/hollowaylabs/dcp/provider"
)

// WriteMode describes how a resolved target is written.
type WriteMode int

const (
	// Overwrite replaces an existing remote file, regardless of the
	// source's own name.
	Overwrite WriteMode = iota
	// InsertChild places the item inside an existing directory, named after
	// the source's base filename.
	InsertChild
	// CreateNew creates a new object whose full path is the literal
	// destination string.
	CreateNew
)

func (m WriteMode) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case InsertChild:
		return "insert-child"
	default:
		return "create-new"
	}
}

// ResolveUpload decides the remote write target and mode for one source file
// against the shared destination. The destination is queried per item, not
// cached, since a directory destination accepts many children. A stat
// failure of any kind selects create-new; the real error, if any, resurfaces
// from the subsequent put.
func ResolveUpload(ctx context.Context, remote provider.Provider, dest, source string) (string, WriteMode) {
	info, err := remote.Stat(ctx, dest)
	switch {
	case err == nil && !info.IsDir():
		return dest, Overwrite
	case err == nil:
		return provider.Join(dest, filepath.Base(source)), InsertChild
	default:
		return dest, CreateNew
	}
}

// ResolveDownload decides the local file path for one remote source. An
// existing local directory receives a child named after the source's base
// name; anything else is taken literally.
func ResolveDownload(ctx context.Context, local provider.Provider, dest, source string) string {
	info, err := local.Stat(ctx, dest)
	if err == nil && info.IsDir() {
		return filepath.Join(dest, provider.Base(source))
	}
	return dest
}
