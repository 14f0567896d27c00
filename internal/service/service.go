// Package service runs feedsync in the background, polling every configured
// feed's remote directory on an interval and reconfiguring itself when the
// feeds file changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/partnerfeeds/feedsync/internal/config"
	"github.com/partnerfeeds/feedsync/internal/pipeline"
)

// Processor runs one pipeline pass for a feed and returns its reports.
type Processor func(ctx context.Context, fd config.Feed) ([]pipeline.BatchReport, error)

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	Feeds() []config.Feed
}

// Service represents the feed reconciliation service.
type Service struct {
	cm      dConfigManager
	process Processor
	period  time.Duration

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context stops the workers. Remote operations in flight are
	// aborted too; an interrupted archive resumes on the next run.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	mu       sync.Mutex
	workers  map[string]context.CancelFunc
	workerWG sync.WaitGroup
}

// New creates a new service with the provided feeds config manager and
// per-feed processor.
func New(cm dConfigManager, process Processor, period time.Duration) (*Service, error) {
	if period <= 0 {
		return nil, fmt.Errorf("poll period must be positive, got %v", period)
	}

	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load feeds configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	gCtx, gCancel := context.WithCancel(ctx)

	return &Service{
		cm:             cm,
		process:        process,
		period:         period,
		ctx:            ctx,
		cancel:         cancel,
		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,
		workers:        make(map[string]context.CancelFunc),
	}, nil
}

// Run starts the service.
//
// It watches the feeds file and keeps one polling worker per configured feed,
// starting and stopping workers as feeds are added and removed.
func (s *Service) Run() error {
	slog.Info("Feed reconciliation service started")

	select {
	case <-s.gracefulCtx.Done():
		return errors.New("service is already shutting down")
	default:
	}

	reloadEventCh, cfgWatchErrCh, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching feeds configuration: %v", err)
	}

	// Initial sync
	s.syncWorkers()

	// Debounce timer for handling bursts of events
	debounceDuration := 500 * time.Millisecond
	debounceTimer := time.NewTimer(debounceDuration)
	defer debounceTimer.Stop()

	for {
		select {
		case <-s.gracefulCtx.Done():
			slog.Info("Feed reconciliation service shutting down")
			s.workerWG.Wait()
			return nil

		case _, ok := <-reloadEventCh:
			if !ok {
				return fmt.Errorf("reloadEventCh closed unexpectedly")
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(debounceDuration)

		case <-debounceTimer.C:
			// Timer expired, perform the resync
			slog.Info("Resyncing feed workers after configuration change")
			s.syncWorkers()

		case err, ok := <-cfgWatchErrCh:
			if !ok {
				return fmt.Errorf("cfgWatchErrCh closed unexpectedly")
			}
			if err != nil {
				slog.Error("Feeds configuration watcher error", "err", err)
			}
		}
	}
}

// syncWorkers diffs the configured feeds and starts/stops polling workers.
func (s *Service) syncWorkers() {
	feeds := s.cm.Feeds()
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]config.Feed, len(feeds))
	for _, f := range feeds {
		want[f.Name] = f
	}

	// stop removed
	for name, cancel := range s.workers {
		if _, ok := want[name]; !ok {
			cancel()
			delete(s.workers, name)
		}
	}
	// start added
	for name, f := range want {
		if _, ok := s.workers[name]; !ok {
			ctx, cancel := context.WithCancel(s.gracefulCtx)
			s.workers[name] = cancel
			s.workerWG.Add(1)
			go s.feedWorker(ctx, f)
		}
	}
}

// feedWorker polls & processes one feed's files until ctx is canceled.
func (s *Service) feedWorker(ctx context.Context, fd config.Feed) {
	defer s.workerWG.Done()

	slog.Info("Feed worker started", "feed", fd.Name, "dir", fd.RemoteDir)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Feed worker stopped", "feed", fd.Name)
			return
		case <-ticker.C:
			reports, err := s.process(ctx, fd)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					slog.Info("Graceful shutdown in progress, stopping feed worker", "feed", fd.Name)
					return
				}
				slog.Error("Failed to process feed", "feed", fd.Name, "err", err)
				continue
			}
			for _, r := range reports {
				if r.State == pipeline.StateFileFailed {
					slog.Warn("Feed file failed", "feed", fd.Name, "file", r.File, "error", r.Error)
				}
			}
		}
	}
}

// Quit stops the service. When force is set, work in flight is interrupted;
// otherwise the service drains before returning.
func (s *Service) Quit(force bool) {
	if force {
		s.cancel()
	} else {
		s.gracefulCancel()
		s.workerWG.Wait()
	}
	slog.Info("Feed reconciliation service stopped")
}
