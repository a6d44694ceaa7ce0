package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/store"
	"github.com/MrWong99/cadence/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if CADENCE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CADENCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CADENCE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean submissions
// table and closes it when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS submissions CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	s, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := &store.Submission{
		TaskID:    "task-1",
		AudioPath: "/data/audio/a.wav",
		Script:    "The cat sat on the mat.",
		Language:  "en-US",
	}
	if err := s.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID == "" || sub.Status != store.StatusQueued {
		t.Fatalf("Create left id=%q status=%q", sub.ID, sub.Status)
	}

	claimed, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed.ID != sub.ID || claimed.Status != store.StatusProcessing {
		t.Fatalf("claimed id=%q status=%q, want %q processing", claimed.ID, claimed.Status, sub.ID)
	}
	if _, err := s.ClaimNext(ctx); !errors.Is(err, store.ErrNoneQueued) {
		t.Fatalf("second ClaimNext error = %v, want ErrNoneQueued", err)
	}

	res := &score.Result{
		Dimensions: score.Dimensions{Accuracy: 90, Overall: 85},
		Words:      []score.Word{{Text: "The", Score: 95, Status: score.StatusGood, End: 0.3}},
	}
	if err := s.Complete(ctx, sub.ID, res); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := s.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.Result == nil || got.Result.Dimensions.Overall != 85 {
		t.Errorf("result = %+v, want Overall 85", got.Result)
	}
	if len(got.Result.Words) != 1 || got.Result.Words[0].Text != "The" {
		t.Errorf("result words = %+v, want the stored word list", got.Result.Words)
	}
}

func TestGetUnknownID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestFailAndRecoverStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stuck := &store.Submission{AudioPath: "/a.wav", Script: "x"}
	queued := &store.Submission{AudioPath: "/b.wav", Script: "y"}
	for _, sub := range []*store.Submission{stuck, queued} {
		if err := s.Create(ctx, sub); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := s.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	n, err := s.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if n != 1 {
		t.Errorf("RecoverStale = %d, want 1", n)
	}
	got, _ := s.Get(ctx, stuck.ID)
	if got.Status != store.StatusFailed || got.Error == "" {
		t.Errorf("stuck submission status=%q error=%q, want failed with message", got.Status, got.Error)
	}

	// The untouched queued submission is still claimable.
	claimed, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext after recovery: %v", err)
	}
	if claimed.ID != queued.ID {
		t.Errorf("claimed %q, want %q", claimed.ID, queued.ID)
	}

	if err := s.Fail(ctx, claimed.ID, "decode failed", nil); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ = s.Get(ctx, claimed.ID)
	if got.Status != store.StatusFailed || got.Error != "decode failed" {
		t.Errorf("status=%q error=%q, want failed/decode failed", got.Status, got.Error)
	}
	if got.Result != nil {
		t.Errorf("Fail with nil document stored a result: %+v", got.Result)
	}

	// Failing with a document keeps it for audit.
	doc := &score.Result{Error: "decode failed"}
	doc.Meta.Attempts = []score.Attempt{{Engine: "heuristic", Error: "decode failed"}}
	if err := s.Fail(ctx, claimed.ID, "decode failed", doc); err != nil {
		t.Fatalf("Fail with document: %v", err)
	}
	got, _ = s.Get(ctx, claimed.ID)
	if got.Result == nil || len(got.Result.Meta.Attempts) != 1 {
		t.Errorf("failure document = %+v, want the attempt trail", got.Result)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, script := range []string{"one", "two", "three"} {
		sub := &store.Submission{AudioPath: "/a.wav", Script: script}
		if err := s.Create(ctx, sub); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, sub.ID)
	}

	got, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want newest first", got[0].Script, got[1].Script)
	}
}
