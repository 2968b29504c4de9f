package retention

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/relay/pkg/clock"
	"mercator-hq/relay/pkg/networkusage"
	"mercator-hq/relay/pkg/networkusage/storage"
)

type storageTarget struct {
	*storage.MemoryStorage
}

func (s storageTarget) DeleteAllBefore(ctx context.Context, t time.Time) (int64, error) {
	return s.DeleteBefore(ctx, t)
}

func (s storageTarget) List(ctx context.Context, q *networkusage.Query) ([]*networkusage.Entity, error) {
	return s.Query(ctx, q)
}

func seed(t *testing.T, now time.Time, ages ...int) storageTarget {
	t.Helper()
	target := storageTarget{storage.NewMemoryStorage()}
	for _, days := range ages {
		e, err := networkusage.NewFCCheckInEntity(1, networkusage.WithCreationTime(now.AddDate(0, 0, -days)))
		if err != nil {
			t.Fatalf("NewFCCheckInEntity() failed: %v", err)
		}
		if err := target.Store(context.Background(), e); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}
	return target
}

func TestPruner_DeletesOlderThanRetention(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	target := seed(t, now, 1, 10, 31, 45)

	p := NewPruner(target, &Config{RetentionDays: 30}, clock.Fake(now))
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune() deleted %d, want 2", deleted)
	}
	if n, _ := target.Count(context.Background(), nil); n != 2 {
		t.Errorf("remaining = %d, want 2", n)
	}
}

func TestPruner_ZeroRetentionKeepsEverything(t *testing.T) {
	now := time.Now()
	target := seed(t, now, 400)

	p := NewPruner(target, &Config{RetentionDays: 0}, clock.Fake(now))
	if deleted, err := p.Prune(context.Background()); err != nil || deleted != 0 {
		t.Errorf("Prune() = %d, %v", deleted, err)
	}
}

func TestPruner_ArchivesBeforeDelete(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	target := seed(t, now, 5, 60, 90)
	dir := t.TempDir()

	p := NewPruner(target, &Config{
		RetentionDays:       30,
		ArchiveBeforeDelete: true,
		ArchivePath:         dir,
	}, clock.Fake(now))

	if _, err := p.Prune(context.Background()); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "network-usage-*.json"))
	if len(files) != 1 {
		t.Fatalf("archive files = %v", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	var archived []networkusage.Entity
	if err := json.Unmarshal(data, &archived); err != nil {
		t.Fatalf("archive is not JSON: %v", err)
	}
	if len(archived) != 2 {
		t.Errorf("archived %d records, want 2", len(archived))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	p := NewPruner(seed(t, time.Now()), &Config{RetentionDays: 7, PruneSchedule: "0 3 * * *"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !p.scheduler.IsRunning() {
		t.Error("scheduler not running after Start")
	}
	if next := p.NextPruning(); next == nil || next.Hour() != 3 {
		t.Errorf("NextPruning() = %v", next)
	}

	p.Stop()
	if p.scheduler.IsRunning() {
		t.Error("scheduler running after Stop")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	p := NewPruner(seed(t, time.Now()), &Config{RetentionDays: 7, PruneSchedule: "every day"}, nil)
	if err := p.Start(context.Background()); err == nil {
		t.Error("Start() accepted an invalid schedule")
	}
}
