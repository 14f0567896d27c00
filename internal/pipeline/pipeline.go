// Package pipeline is the implementation of the batch orchestrator.
//
// It drives the per-file state machine
// Discovered → Downloaded → Parsed → Resolved → Applied → Archived | FileFailed,
// isolating failures at the record and file level: one bad record never aborts
// its batch, and one failed file never aborts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/partnerfeeds/feedsync/internal/applier"
	"github.com/partnerfeeds/feedsync/internal/catalog"
	"github.com/partnerfeeds/feedsync/internal/config"
	"github.com/partnerfeeds/feedsync/internal/constants"
	"github.com/partnerfeeds/feedsync/internal/feed"
	"github.com/partnerfeeds/feedsync/internal/fileutils"
	"github.com/partnerfeeds/feedsync/internal/remote"
)

// Error taxonomy for file-level failures. Record-level problems never become
// errors; they are classified into outcomes instead.
var (
	// ErrTransport marks a remote store failure that survived its retry.
	ErrTransport = errors.New("remote store unreachable")
	// ErrParse marks a malformed feed document.
	ErrParse = errors.New("feed file could not be parsed")
	// ErrResolution marks a location that could not be resolved downstream.
	ErrResolution = errors.New("location could not be resolved")
	// ErrArchive marks a failed archive move. The source file stays intact.
	ErrArchive = errors.New("feed file could not be archived")
)

// Catalog is everything the pipeline needs from the catalog service.
type Catalog interface {
	catalog.Lister
	applier.Updater
}

// StaticConfig holds the directory layout of one pipeline.
type StaticConfig struct {
	// StagingDir is where downloaded feed files are staged locally.
	StagingDir string
	// ArchiveDir is the local archive root.
	ArchiveDir string
	// ReportsDir is where batch reports are written. Empty disables report files.
	ReportsDir string
	// RemoteArchiveDir is the archive root on the remote store.
	RemoteArchiveDir string
}

type timeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time {
	return time.Now()
}

// Pipeline processes the feed files of one configured feed.
type Pipeline struct {
	source remote.Source
	cat    Catalog
	fd     config.Feed
	cfg    StaticConfig

	time  timeProvider
	newID func() string
}

type options struct {
	// Private members exported for tests.
	timeProvider timeProvider
	newID        func() string
}

var defaultOptions = options{
	timeProvider: realTimeProvider{},
	newID:        uuid.NewString,
}

// Options represents an optional function to override Pipeline default values.
type Options func(*options)

// New creates a pipeline for the given feed descriptor.
func New(source remote.Source, cat Catalog, fd config.Feed, cfg StaticConfig, args ...Options) (*Pipeline, error) {
	if !fd.Kind.Valid() {
		return nil, fmt.Errorf("unknown feed kind %q", fd.Kind)
	}
	if cfg.StagingDir == "" || cfg.ArchiveDir == "" {
		return nil, errors.New("staging and archive directories must be set")
	}
	if cfg.RemoteArchiveDir == "" {
		cfg.RemoteArchiveDir = constants.RemoteArchiveDir
	}

	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	return &Pipeline{
		source: source,
		cat:    cat,
		fd:     fd,
		cfg:    cfg,
		time:   opts.timeProvider,
		newID:  opts.newID,
	}, nil
}

// Run processes every matching file currently in the feed's remote directory
// and returns one BatchReport per file.
//
// Files are processed sequentially unless the feed descriptor allows a worker
// pool; records within a file are always sequential. Run returns an error
// only for failures that prevent the run itself (listing, shared index);
// per-file failures are reported in the returned BatchReports.
func (p *Pipeline) Run(ctx context.Context) ([]BatchReport, error) {
	var files []remote.FileInfo
	err := p.withRetry(ctx, func() (err error) {
		files, err = p.source.List(ctx, p.fd.RemoteDir)
		return err
	})
	if err != nil {
		return nil, errors.Join(ErrTransport, fmt.Errorf("failed to list %q: %v", p.fd.RemoteDir, err))
	}

	files = p.matchFiles(files)
	if len(files) == 0 {
		slog.Info("No matching files in remote directory", "feed", p.fd.Name, "dir", p.fd.RemoteDir)
		return nil, nil
	}

	// Re-running against an already-archived file is a no-op by construction:
	// archived files are no longer listed at their source path.

	var sharedIndex *catalog.Index
	if p.fd.ShareIndex && p.needsIndex() {
		sharedIndex, err = catalog.BuildIndex(ctx, p.cat)
		if err != nil {
			return nil, errors.Join(ErrTransport, err)
		}
	}

	workers := p.fd.MaxWorkers
	if workers > constants.MaxFileWorkers {
		workers = constants.MaxFileWorkers
	}
	if workers <= 1 {
		var reports []BatchReport
		for _, f := range files {
			// A run may be aborted between files, never within one.
			if ctx.Err() != nil {
				return reports, ctx.Err()
			}
			reports = append(reports, p.processFile(ctx, f, sharedIndex))
		}
		return reports, nil
	}

	// Bounded pool across independent files.
	reports := make([]BatchReport, len(files))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, f remote.FileInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			reports[i] = p.processFile(ctx, f, sharedIndex)
		}(i, f)
	}
	wg.Wait()

	var done []BatchReport
	for _, r := range reports {
		if r.ID != "" {
			done = append(done, r)
		}
	}
	return done, ctx.Err()
}

// matchFiles filters the listing down to this feed's files.
func (p *Pipeline) matchFiles(files []remote.FileInfo) []remote.FileInfo {
	var matched []remote.FileInfo
	for _, f := range files {
		if !strings.HasPrefix(f.Name, p.fd.FilePrefix) {
			continue
		}
		if !strings.HasSuffix(f.Name, constants.FeedExt) {
			continue
		}
		matched = append(matched, f)
	}
	return matched
}

// needsIndex reports whether this feed kind resolves SKUs against the catalog.
// Order status feeds resolve orders directly and never build a product index.
func (p *Pipeline) needsIndex() bool {
	return p.fd.Kind != feed.KindOrderStatus
}

// processFile runs one feed file through the state machine. It never returns
// an error: every failure is folded into the report, and a failed file leaves
// its source untouched for inspection and retry.
func (p *Pipeline) processFile(ctx context.Context, f remote.FileInfo, sharedIndex *catalog.Index) BatchReport {
	report := BatchReport{
		ID:          p.newID(),
		Feed:        p.fd.Name,
		File:        f.Name,
		State:       StateDiscovered,
		ProcessedAt: p.time.Now(),
	}
	remotePath := path.Join(p.fd.RemoteDir, f.Name)

	// Discovered → Downloaded.
	var data []byte
	err := p.withRetry(ctx, func() (err error) {
		data, err = p.source.Download(ctx, remotePath)
		return err
	})
	if err != nil {
		return p.fail(report, errors.Join(ErrTransport, err))
	}

	localPath := filepath.Join(p.cfg.StagingDir, f.Name)
	if err := os.MkdirAll(p.cfg.StagingDir, 0750); err != nil {
		return p.fail(report, fmt.Errorf("failed to create staging directory: %v", err))
	}
	if err := fileutils.AtomicWrite(localPath, data); err != nil {
		return p.fail(report, fmt.Errorf("failed to stage file: %v", err))
	}
	report.State = StateDownloaded

	// Downloaded → Parsed. A file whose batch cannot be parsed is never
	// archived; it stays in place for manual inspection and retry.
	batch, err := feed.Parse(p.fd.Kind, data)
	if err != nil {
		return p.fail(report, errors.Join(ErrParse, err))
	}
	report.State = StateParsed
	report.ListID = batch.ListID

	// Parsed → Resolved.
	index := sharedIndex
	if index == nil && p.needsIndex() {
		index, err = catalog.BuildIndex(ctx, p.cat)
		if err != nil {
			return p.fail(report, errors.Join(ErrTransport, err))
		}
	}

	locationIDs, err := p.resolveLocations(batch.ListID, index, &report)
	if err != nil {
		return p.fail(report, err)
	}
	report.State = StateResolved

	// Resolved → Applied. Records are strictly sequential within a file
	// since repeated writes to the same entity must serialize.
	a := applier.New(p.cat, index, applier.WithDerivedAvailability(p.fd.DeriveAvailability))
	for _, rec := range batch.Records {
		report.Outcomes = append(report.Outcomes, a.Apply(ctx, rec, locationIDs))
	}
	report.State = StateApplied

	// The report is emitted before archiving so every skipped or failed
	// record is on the record even if the archive move fails.
	report.emit(p.cfg.ReportsDir)

	// Applied → Archived, regardless of individual record outcomes.
	if err := p.archive(ctx, localPath, remotePath, f.Name, report.ProcessedAt); err != nil {
		report.State = StateFileFailed
		report.Error = err.Error()
		slog.Error("File processing failed", "feed", p.fd.Name, "file", f.Name, "error", err)
	} else {
		report.State = StateArchived
		slog.Info("File archived", "feed", p.fd.Name, "file", f.Name)
	}

	// Refresh the written report with the final state. Same ID, so this
	// overwrites the pre-archive copy.
	if p.cfg.ReportsDir != "" {
		if err := writeReport(p.cfg.ReportsDir, report); err != nil {
			slog.Warn("Failed to update batch report", "feed", p.fd.Name, "file", f.Name, "error", err)
		}
	}

	return report
}

// resolveLocations resolves the batch's destination locations. A location
// that cannot be resolved is file-level fatal: the batch has no destination.
func (p *Pipeline) resolveLocations(listID string, index *catalog.Index, report *BatchReport) ([]int64, error) {
	if p.fd.Kind != feed.KindInventory {
		return nil, nil
	}

	name := feed.NormalizeListID(listID)
	report.Location = name

	names := append([]string{name}, p.fd.MirrorLocations...)
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		id, ok := index.ResolveLocation(n)
		if !ok {
			return nil, errors.Join(ErrResolution, fmt.Errorf("location %q not found", n))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// fail finalizes a report for a file-level failure and emits it.
func (p *Pipeline) fail(report BatchReport, err error) BatchReport {
	report.State = StateFileFailed
	report.Error = err.Error()
	report.emit(p.cfg.ReportsDir)
	return report
}

// withRetry runs op, retrying exactly once on failure. Nothing in the
// pipeline is retried more than once automatically; repeated failures
// surface in the BatchReport for operator action.
func (p *Pipeline) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || ctx.Err() != nil {
		return err
	}
	slog.Debug("Retrying remote operation", "feed", p.fd.Name, "error", err)
	return op()
}
