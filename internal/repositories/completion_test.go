package repositories

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/shared"
)

// setupTestStore creates an in-memory store with migrations applied
func setupTestStore(t *testing.T) *CompletionStore {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	store := NewCompletionStore(db)
	t.Cleanup(func() { store.Close() })
	return store
}

func plan(id string, n int) []models.Segment {
	segs := make([]models.Segment, n)
	for i := range segs {
		segs[i] = models.Segment{
			Ordinal:    i,
			Title:      fmt.Sprintf("Part %d", i),
			Start:      time.Duration(i) * time.Minute,
			OutputPath: fmt.Sprintf("/out/%s-%d.ogg", id, i),
		}
		if i < n-1 {
			segs[i].End = models.Ptr(time.Duration(i+1) * time.Minute)
		}
	}
	return segs
}

func TestCompletionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown ids are pending", func(t *testing.T) {
		store := setupTestStore(t)

		state, err := store.State(ctx, "never-seen")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state != models.StatePending {
			t.Errorf("expected pending, got %s", state)
		}

		has, err := store.Has(ctx, "never-seen")
		if err != nil || has {
			t.Errorf("expected Has false, got %v (%v)", has, err)
		}

		done, err := store.IsSegmentDone(ctx, "never-seen", 0)
		if err != nil || done {
			t.Errorf("expected segment not done, got %v (%v)", done, err)
		}

		item, err := store.Item(ctx, "never-seen")
		if err != nil || item.State != models.StatePending {
			t.Errorf("expected pending item, got %+v (%v)", item, err)
		}
	})

	t.Run("MarkFetched only advances pending", func(t *testing.T) {
		store := setupTestStore(t)

		if err := store.MarkFetched(ctx, "a", "Title A"); err != nil {
			t.Fatalf("failed to mark fetched: %v", err)
		}
		if state, _ := store.State(ctx, "a"); state != models.StateFetched {
			t.Errorf("expected fetched, got %s", state)
		}

		if err := store.MarkPermanentlyFailed(ctx, "b", "private video"); err != nil {
			t.Fatalf("failed to mark failed: %v", err)
		}
		if err := store.MarkFetched(ctx, "b", "Title B"); err != nil {
			t.Fatalf("failed to mark fetched: %v", err)
		}
		if state, _ := store.State(ctx, "b"); state != models.StateFailed {
			t.Errorf("failed item must not roll back, got %s", state)
		}
	})

	t.Run("Segments complete the item", func(t *testing.T) {
		store := setupTestStore(t)

		if err := store.MarkFetched(ctx, "a", "Album"); err != nil {
			t.Fatalf("failed to mark fetched: %v", err)
		}
		planned, err := store.PlanSegments(ctx, "a", plan("a", 3))
		if err != nil {
			t.Fatalf("failed to plan: %v", err)
		}
		if len(planned) != 3 || planned[0].ItemID != "a" {
			t.Fatalf("unexpected plan: %+v", planned)
		}

		for _, ord := range []int{2, 0} {
			if err := store.MarkSegmentDone(ctx, "a", ord); err != nil {
				t.Fatalf("failed to mark segment %d: %v", ord, err)
			}
		}

		if has, _ := store.Has(ctx, "a"); has {
			t.Error("item must not be done with a segment outstanding")
		}
		if done, _ := store.IsSegmentDone(ctx, "a", 1); done {
			t.Error("segment 1 should not be done")
		}
		if done, _ := store.IsSegmentDone(ctx, "a", 2); !done {
			t.Error("segment 2 should be done")
		}

		if err := store.MarkSegmentDone(ctx, "a", 1); err != nil {
			t.Fatalf("failed to mark segment 1: %v", err)
		}
		if state, _ := store.State(ctx, "a"); state != models.StateDone {
			t.Errorf("expected done, got %s", state)
		}

		if err := store.MarkSegmentDone(ctx, "a", 1); err != nil {
			t.Errorf("marking a done segment again should be a no-op: %v", err)
		}
	})

	t.Run("MarkSegmentDone unknown ordinal", func(t *testing.T) {
		store := setupTestStore(t)

		if _, err := store.PlanSegments(ctx, "a", plan("a", 1)); err != nil {
			t.Fatalf("failed to plan: %v", err)
		}
		err := store.MarkSegmentDone(ctx, "a", 5)
		if !errors.Is(err, shared.ErrUnknownSegment) {
			t.Errorf("expected ErrUnknownSegment, got %v", err)
		}
	})

	t.Run("First plan wins", func(t *testing.T) {
		store := setupTestStore(t)

		first := plan("a", 2)
		if _, err := store.PlanSegments(ctx, "a", first); err != nil {
			t.Fatalf("failed to plan: %v", err)
		}

		second := plan("other", 4)
		got, err := store.PlanSegments(ctx, "a", second)
		if err != nil {
			t.Fatalf("failed to replan: %v", err)
		}
		if len(got) != 2 || got[1].OutputPath != first[1].OutputPath {
			t.Errorf("expected stored plan, got %+v", got)
		}
		if got[1].End != nil {
			t.Errorf("expected last segment open ended, got %v", *got[1].End)
		}
		if got[0].End == nil || *got[0].End != time.Minute {
			t.Errorf("expected first segment to end at 1m, got %v", got[0].End)
		}

		stored, ok, err := store.Plan(ctx, "a")
		if err != nil || !ok || len(stored) != 2 {
			t.Errorf("expected stored plan, got %v %v %v", stored, ok, err)
		}

		if _, ok, _ := store.Plan(ctx, "unplanned"); ok {
			t.Error("expected no plan for unknown item")
		}
	})

	t.Run("Empty plan completes item", func(t *testing.T) {
		store := setupTestStore(t)

		if err := store.MarkFetched(ctx, "a", ""); err != nil {
			t.Fatalf("failed to mark fetched: %v", err)
		}
		if _, err := store.PlanSegments(ctx, "a", nil); err != nil {
			t.Fatalf("failed to plan: %v", err)
		}
		if has, _ := store.Has(ctx, "a"); !has {
			t.Error("expected item with empty plan to be done")
		}
		_, ok, _ := store.Plan(ctx, "a")
		if !ok {
			t.Error("expected empty plan to be recorded")
		}
	})

	t.Run("PlanSegments validates input", func(t *testing.T) {
		store := setupTestStore(t)

		bad := plan("a", 1)
		bad[0].OutputPath = ""
		if _, err := store.PlanSegments(ctx, "a", bad); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		if _, err := store.PlanSegments(ctx, "", plan("x", 1)); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
		}
	})

	t.Run("Output paths are unique", func(t *testing.T) {
		store := setupTestStore(t)

		if _, err := store.PlanSegments(ctx, "a", plan("a", 1)); err != nil {
			t.Fatalf("failed to plan: %v", err)
		}
		taken, err := store.OutputPathTaken(ctx, "/out/a-0.ogg")
		if err != nil || !taken {
			t.Errorf("expected path taken, got %v (%v)", taken, err)
		}
		if taken, _ := store.OutputPathTaken(ctx, "/out/b-0.ogg"); taken {
			t.Error("expected path free")
		}

		clash := plan("a", 1)
		if _, err := store.PlanSegments(ctx, "b", clash); err == nil {
			t.Error("expected error planning a duplicate output path")
		}
		if _, ok, _ := store.Plan(ctx, "b"); ok {
			t.Error("failed plan must not be recorded")
		}
	})

	t.Run("MarkPermanentlyFailed never overrides done", func(t *testing.T) {
		store := setupTestStore(t)

		if _, err := store.PlanSegments(ctx, "a", nil); err != nil {
			t.Fatalf("failed to plan: %v", err)
		}
		if err := store.MarkPermanentlyFailed(ctx, "a", "gone"); err != nil {
			t.Fatalf("failed to mark failed: %v", err)
		}
		if state, _ := store.State(ctx, "a"); state != models.StateDone {
			t.Errorf("expected done to stick, got %s", state)
		}
	})

	t.Run("RecordAttempt keeps state", func(t *testing.T) {
		store := setupTestStore(t)

		for range 3 {
			if err := store.RecordAttempt(ctx, "a", "connection reset"); err != nil {
				t.Fatalf("failed to record attempt: %v", err)
			}
		}
		item, err := store.Item(ctx, "a")
		if err != nil {
			t.Fatalf("failed to get item: %v", err)
		}
		if item.State != models.StatePending || item.Attempts != 3 || item.Reason != "connection reset" {
			t.Errorf("unexpected item %+v", item)
		}
	})

	t.Run("Summary and List", func(t *testing.T) {
		store := setupTestStore(t)

		_ = store.RecordAttempt(ctx, "p", "timeout")
		_ = store.MarkFetched(ctx, "f", "Fetched")
		_, _ = store.PlanSegments(ctx, "f", plan("f", 2))
		_ = store.MarkSegmentDone(ctx, "f", 0)
		_ = store.MarkPermanentlyFailed(ctx, "x", "private")
		_, _ = store.PlanSegments(ctx, "d", nil)

		summary, err := store.Summary(ctx)
		if err != nil {
			t.Fatalf("failed to summarize: %v", err)
		}
		want := models.Summary{Pending: 1, Fetched: 1, Done: 1, Failed: 1, Segments: 2, SegmentsDone: 1}
		if summary != want {
			t.Errorf("summary = %+v, want %+v", summary, want)
		}
		if summary.Total() != 4 {
			t.Errorf("expected 4 items, got %d", summary.Total())
		}

		all, err := store.List(ctx)
		if err != nil || len(all) != 4 {
			t.Fatalf("expected 4 items, got %d (%v)", len(all), err)
		}

		fetched, err := store.List(ctx, models.StateFetched)
		if err != nil || len(fetched) != 1 {
			t.Fatalf("expected 1 fetched item, got %d (%v)", len(fetched), err)
		}
		item := fetched[0]
		if item.SegmentCount == nil || *item.SegmentCount != 2 || item.SegmentsDone != 1 || item.Title != "Fetched" {
			t.Errorf("unexpected fetched item %+v", item)
		}

		terminal, _ := store.List(ctx, models.StateDone, models.StateFailed)
		if len(terminal) != 2 {
			t.Errorf("expected 2 terminal items, got %d", len(terminal))
		}
	})

	t.Run("Concurrent writers on one item", func(t *testing.T) {
		store := setupTestStore(t)

		const n = 16
		if _, err := store.PlanSegments(ctx, "a", plan("a", n)); err != nil {
			t.Fatalf("failed to plan: %v", err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func(ord int) {
				defer wg.Done()
				errs <- store.MarkSegmentDone(ctx, "a", ord)
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("concurrent mark failed: %v", err)
			}
		}
		if state, _ := store.State(ctx, "a"); state != models.StateDone {
			t.Errorf("expected done after all segments, got %s", state)
		}
	})
}

func TestOpenCompletionStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "ytclip.db")

	store, err := OpenCompletionStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.MarkFetched(ctx, "a", "A"); err != nil {
		t.Fatalf("failed to mark fetched: %v", err)
	}
	if _, err := store.PlanSegments(ctx, "a", plan("a", 1)); err != nil {
		t.Fatalf("failed to plan: %v", err)
	}
	if err := store.MarkSegmentDone(ctx, "a", 0); err != nil {
		t.Fatalf("failed to mark segment: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	reopened, err := OpenCompletionStore(ctx, path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if has, _ := reopened.Has(ctx, "a"); !has {
		t.Error("expected completion to survive reopening")
	}

	version, err := reopened.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if version != 0 {
		t.Errorf("expected schema version 0, got %d", version)
	}
}

func TestIsBusy(t *testing.T) {
	if isBusy(errors.New("database is locked")) {
		t.Error("plain errors are not classified as busy")
	}
	if isBusy(nil) {
		t.Error("nil is not busy")
	}

	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return errors.New("boom")
	})
	if err == nil || calls != 1 {
		t.Errorf("non-busy errors must not be retried, calls=%d err=%v", calls, err)
	}
}
