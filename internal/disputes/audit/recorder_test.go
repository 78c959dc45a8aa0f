package audit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/platform/logger"
)

func newTestRecorder(t *testing.T, store Store) *Recorder {
	t.Helper()
	r, err := NewRecorder(context.Background(), store, logger.Discard())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return r
}

func TestRecorderPendingAndCompletionShareAttempt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newTestRecorder(t, store)

	attempt, err := r.Begin(ctx, Transition{RunID: "run-1", RecordKey: "CR-1", From: domain.StateResolved, To: domain.StateUpdated})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := attempt.Complete(ctx, OutcomeSuccess, "row updated"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Outcome != OutcomePending || entries[1].Outcome != OutcomeSuccess {
		t.Fatalf("unexpected outcomes %s, %s", entries[0].Outcome, entries[1].Outcome)
	}
	if entries[0].AttemptID != entries[1].AttemptID || entries[0].AttemptID != attempt.ID() {
		t.Fatalf("attempt ids differ")
	}
	if entries[1].PrevHash != entries[0].Hash {
		t.Fatalf("completion is not chained to pending entry")
	}
	if entries[0].PrevHash != GenesisHash {
		t.Fatalf("first entry should link to genesis")
	}
}

func TestAttemptCompleteTwice(t *testing.T) {
	ctx := context.Background()
	r := newTestRecorder(t, NewMemoryStore())

	attempt, err := r.Begin(ctx, Transition{RecordKey: "CR-1", From: domain.StateDiscovered, To: domain.StateInvestigated})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := attempt.Complete(ctx, OutcomeFailure, "boom"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := attempt.Complete(ctx, OutcomeSuccess, ""); !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("expected ErrAttemptCompleted, got %v", err)
	}
	if err := attempt.Complete(ctx, OutcomePending, ""); err == nil {
		t.Fatalf("expected pending outcome to be rejected")
	}
}

func TestRecorderDanglingAttempts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newTestRecorder(t, store)

	if err := r.Record(ctx, Transition{RecordKey: "CR-1", From: domain.StateDiscovered, To: domain.StateInvestigated}, OutcomeSuccess, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := r.Begin(ctx, Transition{RecordKey: "CR-2", From: domain.StateResolved, To: domain.StateUpdated}); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	dangling, err := store.Dangling(ctx)
	if err != nil {
		t.Fatalf("Dangling: %v", err)
	}
	if len(dangling) != 1 || dangling[0].RecordKey != "CR-2" {
		t.Fatalf("expected CR-2 dangling, got %+v", dangling)
	}
	if open := r.Open(); len(open) != 1 || open[0].RecordKey != "CR-2" {
		t.Fatalf("expected one open transition, got %+v", open)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newTestRecorder(t, store)

	for _, key := range []string{"CR-1", "CR-2", "CR-3"} {
		if err := r.Record(ctx, Transition{RecordKey: key, From: domain.StateDiscovered, To: domain.StateInvestigated}, OutcomeSuccess, ""); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := r.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 entries verified, got %d", n)
	}

	store.mu.Lock()
	store.entries[2].Detail = "edited"
	store.mu.Unlock()

	_, err = r.Verify(ctx)
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %v", err)
	}
	if chainErr.Sequence != 3 {
		t.Fatalf("expected break at sequence 3, got %d", chainErr.Sequence)
	}
}

func TestRecorderConcurrentAppendsKeepChain(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := newTestRecorder(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Record(ctx, Transition{RecordKey: "CR-X", From: domain.StateClassified, To: domain.StateResolved}, OutcomeSuccess, "")
		}()
	}
	wg.Wait()

	n, err := r.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 40 {
		t.Fatalf("expected 40 entries, got %d", n)
	}
}

func TestSQLiteStoreResumesChain(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	r := newTestRecorder(t, store)
	if err := r.Record(ctx, Transition{RunID: "run-1", RecordKey: "CR-1", From: domain.StateDiscovered, To: domain.StateInvestigated}, OutcomeSuccess, "validator ok"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	r2 := newTestRecorder(t, reopened)
	if err := r2.Record(ctx, Transition{RunID: "run-2", RecordKey: "CR-1", From: domain.StateInvestigated, To: domain.StateClassified}, OutcomeSuccess, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	n, err := r2.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 entries, got %d", n)
	}

	last, err := reopened.Last(ctx)
	if err != nil || last == nil {
		t.Fatalf("Last: %v %v", last, err)
	}
	if last.Sequence != 4 || last.RunID != "run-2" {
		t.Fatalf("unexpected tail %+v", last)
	}
}

func TestSQLiteStoreRejectsUpdates(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	r := newTestRecorder(t, store)
	if err := r.Record(ctx, Transition{RecordKey: "CR-1", From: domain.StateDiscovered, To: domain.StateInvestigated}, OutcomeSuccess, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if _, err := store.db.ExecContext(ctx, `UPDATE dispute_audit_log SET detail = 'x'`); err == nil {
		t.Fatalf("expected update to be rejected")
	}
	if _, err := store.db.ExecContext(ctx, `DELETE FROM dispute_audit_log`); err == nil {
		t.Fatalf("expected delete to be rejected")
	}
}

func TestSQLiteRecordersShareOneTrail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	schedulerStore, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer schedulerStore.Close()
	cliStore, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer cliStore.Close()

	scheduler := newTestRecorder(t, schedulerStore)
	cli := newTestRecorder(t, cliStore)

	transition := Transition{RecordKey: "CR-1", From: domain.StateDiscovered, To: domain.StateInvestigated}
	if err := cli.Record(ctx, transition, OutcomeSuccess, "cli run"); err != nil {
		t.Fatalf("cli Record: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := scheduler.Record(ctx, transition, OutcomeSuccess, "scheduled run"); err != nil {
			t.Fatalf("scheduler Record %d after a foreign append: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		for _, r := range []*Recorder{scheduler, cli} {
			wg.Add(1)
			go func(r *Recorder) {
				defer wg.Done()
				errs <- r.Record(ctx, transition, OutcomeSuccess, "concurrent")
			}(r)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Record: %v", err)
		}
	}

	n, err := cli.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 48 {
		t.Fatalf("expected 48 chained entries, got %d", n)
	}
}

func TestLinkFromTail(t *testing.T) {
	first := Link(nil, Entry{Detail: "a"})
	if first.Sequence != 1 || first.PrevHash != GenesisHash || first.Hash != first.ComputeHash() {
		t.Fatalf("unexpected first entry %+v", first)
	}
	second := Link(&first, Entry{Detail: "b"})
	if second.Sequence != 2 || second.PrevHash != first.Hash {
		t.Fatalf("unexpected second entry %+v", second)
	}
}
