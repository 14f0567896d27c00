// Package daemon provides the feedsync service commands.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/partnerfeeds/feedsync/internal/catalog"
	"github.com/partnerfeeds/feedsync/internal/cli"
	"github.com/partnerfeeds/feedsync/internal/config"
	"github.com/partnerfeeds/feedsync/internal/constants"
	"github.com/partnerfeeds/feedsync/internal/credentials"
	"github.com/partnerfeeds/feedsync/internal/pipeline"
	"github.com/partnerfeeds/feedsync/internal/remote"
	"github.com/partnerfeeds/feedsync/internal/service"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *service.Service

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int

	Credentials string
	Feeds       string

	StagingDir       string
	ArchiveDir       string
	ReportsDir       string
	RemoteArchiveDir string

	PollInterval time.Duration
	CatalogRate  float64
	CatalogBurst int
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "Feed reconciliation service",
		Long: "feedsync reconciles partner inventory and order feeds dropped on an SFTP server " +
			"with the commerce catalog, then archives the processed files.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetVerbosity(a.config.Verbosity)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.runDaemon()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	installRunCmd(&a)
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := appConfig{
		Credentials:      constants.DefaultCredentialsFileName,
		Feeds:            constants.DefaultFeedsFileName,
		StagingDir:       constants.DefaultStagingDir,
		ArchiveDir:       constants.DefaultArchiveDir,
		ReportsDir:       constants.DefaultReportsDir,
		RemoteArchiveDir: constants.RemoteArchiveDir,
		PollInterval:     constants.DefaultPollInterval,
		CatalogRate:      2,
		CatalogBurst:     4,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")

	cmd.PersistentFlags().StringVar(&app.config.Credentials, "credentials", defaultConf.Credentials, "path to the TOML credentials file")
	cmd.PersistentFlags().StringVar(&app.config.Feeds, "feeds", defaultConf.Feeds, "path to the JSON feeds file")

	cmd.PersistentFlags().StringVar(&app.config.StagingDir, "staging-dir", defaultConf.StagingDir, "directory feed files are downloaded into")
	cmd.PersistentFlags().StringVar(&app.config.ArchiveDir, "archive-dir", defaultConf.ArchiveDir, "local archive root for processed feed files")
	cmd.PersistentFlags().StringVar(&app.config.ReportsDir, "reports-dir", defaultConf.ReportsDir, "directory batch reports are written to")
	cmd.PersistentFlags().StringVar(&app.config.RemoteArchiveDir, "remote-archive-dir", defaultConf.RemoteArchiveDir, "archive root on the remote store")

	cmd.Flags().DurationVar(&app.config.PollInterval, "poll-interval", defaultConf.PollInterval, "interval between feed directory polls")
	cmd.PersistentFlags().Float64Var(&app.config.CatalogRate, "catalog-rate", defaultConf.CatalogRate, "catalog requests per second")
	cmd.PersistentFlags().IntVar(&app.config.CatalogBurst, "catalog-burst", defaultConf.CatalogBurst, "catalog request burst size")

	err := cmd.MarkPersistentFlagFilename("credentials")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark credentials flag as filename: %v", err))
	}

	err = cmd.MarkPersistentFlagFilename("feeds")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark feeds flag as filename: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a *App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a *App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) runDaemon() (err error) {
	cm := config.New(a.config.Feeds)
	a.daemon, err = service.New(cm, a.processFeed, a.config.PollInterval)
	close(a.ready)
	if err != nil {
		return fmt.Errorf("failed to create service: %v", err)
	}

	return a.daemon.Run()
}

// processFeed runs one pipeline pass for a feed: it connects to the remote
// store, builds the catalog client and processes every matching file.
func (a *App) processFeed(ctx context.Context, fd config.Feed) ([]pipeline.BatchReport, error) {
	creds, err := credentials.Load(a.config.Credentials)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(creds.Catalog.BaseURL, creds.Catalog.Token,
		catalog.WithRateLimit(a.config.CatalogRate, a.config.CatalogBurst))
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog client: %v", err)
	}

	src, err := remote.ConnectSFTP(remote.SFTPConfig{
		Host:           creds.SFTP.Host,
		Port:           creds.SFTP.Port,
		User:           creds.SFTP.User,
		Password:       creds.SFTP.Password,
		KnownHostsFile: creds.SFTP.KnownHostsFile,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Warn("Failed to close SFTP connection", "error", cerr)
		}
	}()

	p, err := pipeline.New(src, cat, fd, pipeline.StaticConfig{
		StagingDir:       a.config.StagingDir,
		ArchiveDir:       a.config.ArchiveDir,
		ReportsDir:       a.config.ReportsDir,
		RemoteArchiveDir: a.config.RemoteArchiveDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline for feed %q: %v", fd.Name, err)
	}

	return p.Run(ctx)
}
