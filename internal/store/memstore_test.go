package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cadence/internal/score"
)

func TestCreateAssignsIDAndQueues(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	sub := &Submission{AudioPath: "/tmp/a.wav", Script: "the cat sat"}

	if err := s.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sub.ID == "" {
		t.Fatal("Create() left ID empty")
	}
	if sub.Status != StatusQueued {
		t.Errorf("Status = %q, want %q", sub.Status, StatusQueued)
	}
	if sub.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	got, err := s.Get(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Script != "the cat sat" {
		t.Errorf("Script = %q, want %q", got.Script, "the cat sat")
	}
}

func TestGetUnknownID(t *testing.T) {
	t.Parallel()

	_, err := NewMemStore().Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestClaimNextIsFIFO(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	first := &Submission{Script: "first"}
	second := &Submission{Script: "second"}
	for _, sub := range []*Submission{first, second} {
		if err := s.Create(context.Background(), sub); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	claimed, err := s.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if claimed.ID != first.ID {
		t.Errorf("claimed %q, want oldest submission %q", claimed.Script, "first")
	}
	if claimed.Status != StatusProcessing {
		t.Errorf("Status = %q, want %q", claimed.Status, StatusProcessing)
	}

	if _, err := s.ClaimNext(context.Background()); err != nil {
		t.Fatalf("second ClaimNext() error = %v", err)
	}
	if _, err := s.ClaimNext(context.Background()); !errors.Is(err, ErrNoneQueued) {
		t.Errorf("empty ClaimNext() error = %v, want ErrNoneQueued", err)
	}
}

func TestClaimNextNeverDoubleClaims(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	const n = 20
	for i := 0; i < n; i++ {
		if err := s.Create(context.Background(), &Submission{Script: "x"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				sub, err := s.ClaimNext(context.Background())
				if errors.Is(err, ErrNoneQueued) {
					return
				}
				if err != nil {
					t.Errorf("ClaimNext() error = %v", err)
					return
				}
				mu.Lock()
				seen[sub.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("claimed %d distinct submissions, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("submission %s claimed %d times", id, count)
		}
	}
}

func TestCompleteStoresResult(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	sub := &Submission{Script: "x"}
	if err := s.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.ClaimNext(context.Background()); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	res := &score.Result{Dimensions: score.Dimensions{Overall: 81}}
	if err := s.Complete(context.Background(), sub.ID, res); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err := s.Get(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.Result == nil || got.Result.Dimensions.Overall != 81 {
		t.Errorf("Result = %+v, want Overall 81", got.Result)
	}
}

func TestFailRecordsError(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	sub := &Submission{Script: "x"}
	if err := s.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.Fail(context.Background(), sub.ID, "all engines failed", nil); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	got, _ := s.Get(context.Background(), sub.ID)
	if got.Status != StatusFailed || got.Error != "all engines failed" {
		t.Errorf("got status %q error %q, want failed with message", got.Status, got.Error)
	}

	if err := s.Fail(context.Background(), "nope", "x", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Fail(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestFailKeepsFailureDocument(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	sub := &Submission{Script: "x"}
	if err := s.Create(context.Background(), sub); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	doc := &score.Result{Error: "all engines failed"}
	doc.Meta.Attempts = []score.Attempt{{Engine: "forced-alignment", Error: "timeout"}}
	if err := s.Fail(context.Background(), sub.ID, "all engines failed", doc); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	got, _ := s.Get(context.Background(), sub.ID)
	if got.Result == nil {
		t.Fatal("failure document dropped")
	}
	if len(got.Result.Meta.Attempts) != 1 || got.Result.Meta.Attempts[0].Error != "timeout" {
		t.Errorf("attempt trail = %+v, want the recorded timeout", got.Result.Meta.Attempts)
	}
}

func TestRecoverStaleFailsProcessingOnly(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	for i := 0; i < 3; i++ {
		if err := s.Create(context.Background(), &Submission{Script: "x"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	// Leave one queued, claim two.
	stuck1, _ := s.ClaimNext(context.Background())
	stuck2, _ := s.ClaimNext(context.Background())

	n, err := s.RecoverStale(context.Background())
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RecoverStale() = %d, want 2", n)
	}
	for _, id := range []string{stuck1.ID, stuck2.ID} {
		got, _ := s.Get(context.Background(), id)
		if got.Status != StatusFailed {
			t.Errorf("submission %s status = %q, want %q", id, got.Status, StatusFailed)
		}
	}

	// The still-queued submission must remain claimable.
	if _, err := s.ClaimNext(context.Background()); err != nil {
		t.Errorf("ClaimNext() after recovery error = %v", err)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for _, script := range []string{"one", "two", "three"} {
		if err := s.Create(context.Background(), &Submission{Script: script}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := s.ListRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Script != "three" || got[1].Script != "two" {
		t.Errorf("order = [%s %s], want [three two]", got[0].Script, got[1].Script)
	}
}
