package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/partnerfeeds/feedsync/internal/constants"
	"github.com/partnerfeeds/feedsync/internal/fileutils"
)

// archive relocates a processed feed file into the dated archive folders,
// local staging copy first, then the remote source.
//
// The ordering is deliberate: a crash between the two moves leaves the remote
// file in place, so the file is reprocessed on the next run rather than lost.
// That makes file handling at-least-once, never lossy.
func (p *Pipeline) archive(ctx context.Context, localPath, remotePath, name string, now time.Time) error {
	dated := now.Format(constants.ArchiveDateLayout)

	localDir := filepath.Join(p.cfg.ArchiveDir, dated)
	if err := os.MkdirAll(localDir, 0750); err != nil {
		return errors.Join(ErrArchive, fmt.Errorf("failed to create local archive directory: %v", err))
	}
	if err := p.archiveLocal(localPath, filepath.Join(localDir, name)); err != nil {
		return errors.Join(ErrArchive, err)
	}

	remoteDir := path.Join(p.cfg.RemoteArchiveDir, dated)
	if err := p.withRetry(ctx, func() error { return p.source.EnsureDir(ctx, remoteDir) }); err != nil {
		return errors.Join(ErrArchive, fmt.Errorf("failed to create remote archive directory: %v", err))
	}
	if err := p.withRetry(ctx, func() error { return p.source.Rename(ctx, remotePath, path.Join(remoteDir, name)) }); err != nil {
		return errors.Join(ErrArchive, fmt.Errorf("failed to move remote file: %v", err))
	}

	return nil
}

// archiveLocal moves the staged copy into the dated archive folder.
//
// A destination holding identical content is the aftermath of a run that
// crashed between the local and remote move: the local leg is already done,
// only the staged copy is dropped so the remote move can resume. A
// destination with different content is a genuine clash and fails the move.
func (p *Pipeline) archiveLocal(src, dst string) error {
	archived, err := os.ReadFile(dst)
	if errors.Is(err, os.ErrNotExist) {
		return fileutils.MoveNoReplace(src, dst)
	}
	if err != nil {
		return fmt.Errorf("failed to read archived copy %q: %v", dst, err)
	}

	staged, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read staged copy %q: %v", src, err)
	}
	if !bytes.Equal(archived, staged) {
		return fmt.Errorf("archive destination %q already exists with different content", dst)
	}

	slog.Info("Local archive copy already present, resuming remote move", "file", dst)
	return os.Remove(src)
}
