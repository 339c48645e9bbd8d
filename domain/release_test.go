package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func stagedTask(id, target string) Task {
	scheduled := date(2026, time.February, 27)
	return Task{
		ID:                   id,
		BoardID:              testBoard,
		Title:                "Staged " + id,
		ListID:               "plan-1",
		ReleaseMode:          DestinationStaged,
		StagedFromListID:     "plan-1",
		ScheduledReleaseDate: &scheduled,
		ReleaseTargetListID:  target,
	}
}

func releaseLogger() *log.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestReleaseDueTasksPromotesOnce(t *testing.T) {
	store := newFakeStore()
	store.lists = boardFixture()
	store.due = []Task{stagedTask("task-1", "backlog-1")}
	store.maxPos["backlog-1"] = 4
	now := date(2026, time.March, 2)

	stats, err := ReleaseDueTasks(context.Background(), store, now, releaseLogger())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if stats.Released != 1 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.promotions) != 1 {
		t.Fatalf("expected 1 promotion, got %d", len(store.promotions))
	}
	p := store.promotions[0]
	if p.listID != "backlog-1" || p.position != 5 || !p.releasedAt.Equal(now) {
		t.Fatalf("unexpected promotion: %+v", p)
	}

	// A second run finds nothing due and changes nothing.
	stats, err = ReleaseDueTasks(context.Background(), store, now, releaseLogger())
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if stats.Released != 0 || stats.Failed != 0 {
		t.Fatalf("second run must be a no-op, got %+v", stats)
	}
	if len(store.promotions) != 1 {
		t.Fatalf("expected promotions to stay at 1, got %d", len(store.promotions))
	}
}

func TestReleaseDueTasksCountsLostRaceAsSkip(t *testing.T) {
	store := newFakeStore()
	store.lists = boardFixture()
	store.due = []Task{stagedTask("task-1", "backlog-1")}
	store.promoteErr["task-1"] = ErrAlreadyReleased

	stats, err := ReleaseDueTasks(context.Background(), store, date(2026, time.March, 2), releaseLogger())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if stats.Skipped != 1 || stats.Released != 0 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReleaseDueTasksIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.lists = boardFixture()
	store.due = []Task{
		stagedTask("task-gone", "vanished-list"),
		stagedTask("task-broken", "backlog-1"),
		stagedTask("task-ok", "doing-1"),
	}
	store.promoteErr["task-broken"] = errors.New("update failed")

	stats, err := ReleaseDueTasks(context.Background(), store, date(2026, time.March, 2), releaseLogger())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if stats.Failed != 2 || stats.Released != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	// Failed tasks stay unreleased for a future run.
	if store.released["task-gone"] || store.released["task-broken"] {
		t.Fatal("failed tasks must remain unreleased")
	}
	if !store.released["task-ok"] {
		t.Fatal("healthy task should have been released")
	}
}

func TestReleaseDueTasksEmptyListStartsAtZero(t *testing.T) {
	store := newFakeStore()
	store.lists = boardFixture()
	store.due = []Task{stagedTask("task-1", "doing-1")}

	stats, err := ReleaseDueTasks(context.Background(), store, date(2026, time.March, 2), releaseLogger())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if stats.Released != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if store.promotions[0].position != 0 {
		t.Fatalf("expected position 0 in empty list, got %d", store.promotions[0].position)
	}
}
