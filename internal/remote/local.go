package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local is a Source backed by a local directory tree. It exists for
// development runs against a mounted drop folder and for tests.
type Local struct {
	root string
}

// NewLocal returns a local source rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// abs maps a slash-separated store path onto the local root.
func (l *Local) abs(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(p))
}

// List returns the regular files in dir.
func (l *Local) List(_ context.Context, dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(l.abs(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %q: %w", dir, err)
	}

	var files []FileInfo
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %q: %w", e.Name(), err)
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return files, nil
}

// Download returns the content of the file at remotePath.
func (l *Local) Download(_ context.Context, remotePath string) ([]byte, error) {
	data, err := os.ReadFile(l.abs(remotePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", remotePath, err)
	}
	return data, nil
}

// Rename relocates a file, refusing to clobber an existing destination to
// match the SFTP rename semantics.
func (l *Local) Rename(_ context.Context, oldPath, newPath string) error {
	dst := l.abs(newPath)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("destination %q already exists", newPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat destination %q: %w", newPath, err)
	}

	if err := os.Rename(l.abs(oldPath), dst); err != nil {
		return fmt.Errorf("failed to rename %q to %q: %w", oldPath, newPath, err)
	}
	return nil
}

// EnsureDir creates dir recursively if absent.
func (l *Local) EnsureDir(_ context.Context, dir string) error {
	if err := os.MkdirAll(l.abs(dir), 0750); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", dir, err)
	}
	return nil
}

// Close is a no-op for a local source.
func (l *Local) Close() error {
	return nil
}

var _ Source = (*Local)(nil)
