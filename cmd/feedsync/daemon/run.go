package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/partnerfeeds/feedsync/internal/config"
	"github.com/partnerfeeds/feedsync/internal/pipeline"
)

func installRunCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every configured feed once and exit",
		Long: `Process every configured feed once and exit.

Each feed's remote directory is listed, matching files are downloaded,
parsed, applied against the catalog and archived. The command exits
non-zero if any feed file failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.cmd.SilenceUsage = true
			return app.runOnce()
		},
	}
	app.cmd.AddCommand(cmd)
}

// runOnce runs one pipeline pass over every configured feed.
func (a *App) runOnce() error {
	close(a.ready) // No daemon to wait for.

	cm := config.New(a.config.Feeds)
	if err := cm.Load(); err != nil {
		return fmt.Errorf("failed to load feeds configuration: %v", err)
	}

	ctx := context.Background()
	var processed, failed int
	for _, fd := range cm.Feeds() {
		reports, err := a.processFeed(ctx, fd)
		if err != nil {
			slog.Error("Failed to process feed", "feed", fd.Name, "error", err)
			failed++
			continue
		}
		for _, r := range reports {
			processed++
			if r.State == pipeline.StateFileFailed {
				failed++
			}
		}
	}

	slog.Info("Run complete", "files", processed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d failure(s) across %d processed feed file(s)", failed, processed)
	}
	return nil
}
