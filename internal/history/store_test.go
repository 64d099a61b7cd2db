package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ripcast/internal/jobs"
	"ripcast/internal/testsupport"
)

func terminalSnapshot(id string, status jobs.Status, finished time.Time) jobs.Snapshot {
	snap := jobs.Snapshot{
		ID:         id,
		SourceURL:  "https://youtube.com/watch?v=" + id,
		Format:     "mp3",
		Status:     status,
		Progress:   100,
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: &finished,
	}
	if status == jobs.StatusCompleted {
		snap.Result = &jobs.Result{Filename: id + ".mp3", Token: "tok"}
	} else {
		snap.Error = "network unreachable"
	}
	return snap
}

func TestRecordFinishedAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := store.RecordFinished(ctx, terminalSnapshot("aaa", jobs.StatusCompleted, now.Add(-time.Hour))); err != nil {
		t.Fatalf("RecordFinished: %v", err)
	}
	if err := store.RecordFinished(ctx, terminalSnapshot("bbb", jobs.StatusFailed, now)); err != nil {
		t.Fatalf("RecordFinished: %v", err)
	}

	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].JobID != "bbb" {
		t.Fatalf("expected newest first, got %s", records[0].JobID)
	}
	if records[0].Error != "network unreachable" {
		t.Fatalf("missing error text: %#v", records[0])
	}
	if records[1].Artifact != "aaa.mp3" {
		t.Fatalf("missing artifact: %#v", records[1])
	}
}

func TestRecordFinishedRejectsLiveJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	snap := jobs.Snapshot{ID: "live", Status: jobs.StatusDownloading, CreatedAt: time.Now()}
	if err := store.RecordFinished(context.Background(), snap); err == nil {
		t.Fatal("expected rejection of non-terminal snapshot")
	}
}

func TestRecordFinishedIsIdempotentPerJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	finished := time.Now().UTC()
	snap := terminalSnapshot("dup", jobs.StatusCompleted, finished)
	if err := store.RecordFinished(ctx, snap); err != nil {
		t.Fatalf("RecordFinished: %v", err)
	}
	if err := store.RecordFinished(ctx, snap); err != nil {
		t.Fatalf("second RecordFinished: %v", err)
	}

	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected a single row, got %d", len(records))
	}
}

func TestListRespectsLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		snap := terminalSnapshot(fmt.Sprintf("job-%d", i), jobs.StatusCompleted, base.Add(time.Duration(i)*time.Minute))
		if err := store.RecordFinished(ctx, snap); err != nil {
			t.Fatalf("RecordFinished: %v", err)
		}
	}

	records, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].JobID != "job-4" {
		t.Fatalf("expected newest first, got %s", records[0].JobID)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	store.RecordFinished(ctx, terminalSnapshot("a", jobs.StatusCompleted, now))
	store.RecordFinished(ctx, terminalSnapshot("b", jobs.StatusCompleted, now))
	store.RecordFinished(ctx, terminalSnapshot("c", jobs.StatusFailed, now))

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["completed"] != 2 || stats["failed"] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestPruneOlderThan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Now().UTC()
	store.RecordFinished(ctx, terminalSnapshot("old", jobs.StatusCompleted, now.Add(-48*time.Hour)))
	store.RecordFinished(ctx, terminalSnapshot("new", jobs.StatusCompleted, now))

	removed, err := store.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned row, got %d", removed)
	}

	records, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].JobID != "new" {
		t.Fatalf("unexpected surviving records: %#v", records)
	}
}
