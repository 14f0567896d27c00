// Package remote provides access to the remote file store feed files are
// dropped on. The pipeline consumes the Source interface; SFTP is the
// production implementation and Local backs development and tests.
package remote

import (
	"context"
	"time"
)

// FileInfo describes one file listed on the store.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Source lists, downloads and relocates files on a store addressed with
// slash-separated paths. All operations may fail transiently; retry policy
// belongs to the caller.
type Source interface {
	// List returns the regular files in dir.
	List(ctx context.Context, dir string) ([]FileInfo, error)

	// Download returns the content of the file at remotePath.
	Download(ctx context.Context, remotePath string) ([]byte, error)

	// Rename atomically relocates a file. It must not clobber an existing
	// destination.
	Rename(ctx context.Context, oldPath, newPath string) error

	// EnsureDir creates dir recursively if absent. It is idempotent: an
	// already existing directory is not an error.
	EnsureDir(ctx context.Context, dir string) error

	// Close releases the underlying connection, if any.
	Close() error
}
