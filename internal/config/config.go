// Package config provides a configuration manager that loads and watches the
// JSON feeds file. The feeds file enumerates the feed descriptors the service
// runs; editing it reconfigures the running service without a restart.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/partnerfeeds/feedsync/internal/feed"
)

// Feed describes one feed the pipeline should process.
type Feed struct {
	// Name identifies the feed in logs and reports.
	Name string `json:"name"`
	// Kind selects the parser and applier variant.
	Kind feed.Kind `json:"kind"`
	// RemoteDir is the drop directory on the remote store.
	RemoteDir string `json:"remoteDir"`
	// FilePrefix filters which files in RemoteDir belong to this feed.
	FilePrefix string `json:"filePrefix"`
	// MirrorLocations are additional location names every inventory record
	// is applied to besides the feed's own location.
	MirrorLocations []string `json:"mirrorLocations,omitempty"`
	// DeriveAvailability also writes the availability attribute derived from
	// each inventory record's allocation (On Order / Limited Stock / Available).
	DeriveAvailability bool `json:"deriveAvailability,omitempty"`
	// ShareIndex reuses one catalog index for all files of a run instead of
	// rebuilding it per file. Only safe when the catalog does not change
	// mid-run.
	ShareIndex bool `json:"shareIndex,omitempty"`
	// MaxWorkers processes up to this many files of the feed concurrently.
	// Zero or one means strictly sequential.
	MaxWorkers int `json:"maxWorkers,omitempty"`
}

// Conf represents the feeds file structure.
type Conf struct {
	Feeds []Feed `json:"feeds"`
}

// Manager is a struct that manages the feeds configuration.
type Manager struct {
	config     Conf
	lock       sync.RWMutex
	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a new configuration manager with the specified path.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}

	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: path,
		log:        opts.Logger,
	}
}

// Load reads the configuration from the specified file and updates the internal state.
func (cm *Manager) Load() error {
	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening feeds file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding feeds JSON: %w", err)
	}

	seen := make(map[string]struct{}, len(newConfig.Feeds))
	for _, f := range newConfig.Feeds {
		if f.Name == "" {
			return fmt.Errorf("feed with remote dir %q has no name", f.RemoteDir)
		}
		if _, ok := seen[f.Name]; ok {
			return fmt.Errorf("duplicate feed name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Kind.Valid() {
			return fmt.Errorf("feed %q has unknown kind %q", f.Name, f.Kind)
		}
		if f.RemoteDir == "" {
			return fmt.Errorf("feed %q has no remote dir", f.Name)
		}
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.lock.Unlock()

	cm.log.Info("Feeds configuration loaded", "feeds", len(newConfig.Feeds))
	return nil
}

// Watch starts watching the feeds file for changes.
//
// It returns two channels: one for configuration changes which result in a
// successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching feeds configuration directory", "dir", configDir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Feeds configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if event.Name != cm.configPath {
					continue
				}

				cm.log.Debug("Feeds file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading feeds file", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Feeds returns the configured feeds.
func (cm *Manager) Feeds() []Feed {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.Feeds
}
