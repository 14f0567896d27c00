package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/partnerfeeds/feedsync/internal/feed"
	"github.com/partnerfeeds/feedsync/internal/fileutils"
)

// State is the per-file pipeline state.
type State string

// Per-file states, in processing order.
const (
	StateDiscovered State = "discovered"
	StateDownloaded State = "downloaded"
	StateParsed     State = "parsed"
	StateResolved   State = "resolved"
	StateApplied    State = "applied"
	StateArchived   State = "archived"
	StateFileFailed State = "file-failed"
)

// BatchReport aggregates the per-record outcomes of one feed file.
// It is emitted before the file is archived so no record outcome can be lost
// to an archiving failure.
type BatchReport struct {
	ID          string         `json:"id"`
	Feed        string         `json:"feed"`
	File        string         `json:"file"`
	ListID      string         `json:"listId,omitempty"`
	Location    string         `json:"location,omitempty"`
	State       State          `json:"state"`
	Outcomes    []feed.Outcome `json:"outcomes,omitempty"`
	Error       string         `json:"error,omitempty"`
	ProcessedAt time.Time      `json:"processedAt"`
}

// Counts tallies the record outcomes by result.
func (r BatchReport) Counts() (applied, skipped, failed int) {
	for _, o := range r.Outcomes {
		switch o.Result {
		case feed.ResultApplied:
			applied++
		case feed.ResultSkipped:
			skipped++
		case feed.ResultFailed:
			failed++
		}
	}
	return applied, skipped, failed
}

// emit writes the report to the reports directory and logs every
// non-applied record outcome, so nothing disappears silently.
func (r BatchReport) emit(reportsDir string) {
	applied, skipped, failed := r.Counts()
	slog.Info("Batch processed", "feed", r.Feed, "file", r.File, "state", r.State,
		"applied", applied, "skipped", skipped, "failed", failed)
	for _, o := range r.Outcomes {
		if o.Result == feed.ResultApplied {
			continue
		}
		slog.Warn("Record not applied", "feed", r.Feed, "file", r.File,
			"result", o.Result, "reason", o.Reason,
			"productId", o.Record.ProductID, "orderNo", o.Record.OrderNo)
	}
	if r.Error != "" {
		slog.Error("File processing failed", "feed", r.Feed, "file", r.File, "error", r.Error)
	}

	if reportsDir == "" {
		return
	}
	if err := writeReport(reportsDir, r); err != nil {
		slog.Warn("Failed to write batch report", "feed", r.Feed, "file", r.File, "error", err)
	}
}

func writeReport(dir string, r BatchReport) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create reports directory: %v", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %v", err)
	}

	return fileutils.AtomicWrite(filepath.Join(dir, r.ID+".json"), data)
}
