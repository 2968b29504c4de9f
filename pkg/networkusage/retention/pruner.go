package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/relay/pkg/clock"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/networkusage/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain records.
	// 0 keeps records forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// ArchiveBeforeDelete exports records to ArchivePath before deletion.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory receiving archive files.
	ArchivePath string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
		ArchivePath:   "data/archives/",
	}
}

// Target is the part of a networkusage.Repository the pruner needs.
type Target interface {
	DeleteAllBefore(ctx context.Context, t time.Time) (int64, error)
	List(ctx context.Context, q *networkusage.Query) ([]*networkusage.Entity, error)
}

// Pruner enforces the retention period.
type Pruner struct {
	target    Target
	config    *Config
	clock     clock.Clock
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a pruner for target.
func NewPruner(target Target, config *Config, clk clock.Clock) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if clk == nil {
		clk = clock.Real()
	}
	p := &Pruner{
		target: target,
		config: config,
		clock:  clk,
		logger: slog.Default().With("component", "networkusage.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Cutoff returns the creation time before which records are pruned.
func (p *Pruner) Cutoff() time.Time {
	return p.clock.Now().AddDate(0, 0, -p.config.RetentionDays)
}

// Prune deletes records older than the retention period and returns how
// many were removed. With RetentionDays 0 it does nothing.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.RetentionDays <= 0 {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}
	cutoff := p.Cutoff()

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, cutoff); err != nil {
			return 0, networkusage.NewRetentionError(p.config.RetentionDays, err)
		}
	}

	deleted, err := p.target.DeleteAllBefore(ctx, cutoff)
	if err != nil {
		return 0, networkusage.NewRetentionError(p.config.RetentionDays, err)
	}

	if deleted > 0 {
		p.logger.Info("network usage pruned",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
			"cutoff_time", cutoff,
		)
	}
	return deleted, nil
}

func (p *Pruner) archive(ctx context.Context, cutoff time.Time) error {
	records, err := p.target.List(ctx, &networkusage.Query{Until: &cutoff, SortOrder: "asc"})
	if err != nil {
		return fmt.Errorf("failed to query records for archiving: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("network-usage-%s.json", p.clock.Now().Format("2006-01-02-150405"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, records, f); err != nil {
		return fmt.Errorf("failed to export records to archive: %w", err)
	}

	p.logger.Info("network usage archived", "archive_file", path, "record_count", len(records))
	return nil
}

// Start starts the pruning schedule.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the schedule and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
