// Package constants defines the constants shared across the feedsync application.
package constants

import (
	"log/slog"
	"time"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "feedsync"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// DefaultCredentialsFileName is the default base name of the credentials file.
	DefaultCredentialsFileName = "credentials.toml"

	// DefaultFeedsFileName is the default base name of the feeds configuration file.
	DefaultFeedsFileName = "feeds.json"

	// DefaultStagingDir is the default directory feed files are downloaded into.
	DefaultStagingDir = "staging"

	// DefaultArchiveDir is the default local archive root for processed feed files.
	DefaultArchiveDir = "archive"

	// DefaultReportsDir is the default directory batch reports are written to.
	DefaultReportsDir = "reports"

	// RemoteArchiveDir is the archive root on the remote file store.
	RemoteArchiveDir = "/archive"

	// DefaultPollInterval is the default interval between feed directory polls.
	DefaultPollInterval = 5 * time.Minute

	// DefaultCatalogTimeout is the default timeout for a single catalog request.
	DefaultCatalogTimeout = 30 * time.Second

	// DefaultCatalogPageSize is the page size used when listing catalog products.
	DefaultCatalogPageSize = 250

	// MaxFileWorkers caps how many feed files may be processed concurrently.
	MaxFileWorkers = 25

	// FeedExt is the extension feed files must carry to be picked up.
	FeedExt = ".xml"

	// ArchiveDateLayout is the dated folder layout under the archive roots.
	ArchiveDateLayout = "2006-01-02"
)

// Version is the version of the application.
var Version = "Dev"
