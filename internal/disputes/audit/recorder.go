package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/platform/logger"

	"github.com/google/uuid"
)

const verifyPageSize = 500

// ErrAttemptCompleted is returned when an attempt is completed twice.
var ErrAttemptCompleted = errors.New("audit attempt already completed")

// Transition describes one state transition attempt.
type Transition struct {
	RunID     string
	RecordKey string
	From      domain.State
	To        domain.State
	Detail    string
}

// Recorder appends transition attempts to the hash chain. The chain tail is
// read by the store on every append, so several processes may share a trail.
type Recorder struct {
	mu    sync.Mutex
	store Store
	log   *logger.Logger
	now   func() time.Time
	open  map[uuid.UUID]Transition
}

// NewRecorder checks that the trail is readable and returns a recorder for it.
func NewRecorder(ctx context.Context, store Store, log *logger.Logger) (*Recorder, error) {
	if _, err := store.Last(ctx); err != nil {
		return nil, fmt.Errorf("load audit tail: %w", err)
	}

	return &Recorder{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		open:  make(map[uuid.UUID]Transition),
	}, nil
}

// Attempt is an open pending entry waiting for its outcome.
type Attempt struct {
	id       uuid.UUID
	t        Transition
	recorder *Recorder
	once     sync.Once
}

// ID returns the attempt identifier shared by the pending and completion entries.
func (a *Attempt) ID() uuid.UUID {
	return a.id
}

// Begin writes the pending entry. Nothing external may be mutated until it returns nil.
func (r *Recorder) Begin(ctx context.Context, t Transition) (*Attempt, error) {
	attemptID := uuid.New()
	if err := r.append(ctx, attemptID, t, OutcomePending, t.Detail); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.open[attemptID] = t
	r.mu.Unlock()

	return &Attempt{id: attemptID, t: t, recorder: r}, nil
}

// Complete writes the attempt's outcome. It may only be called once.
func (a *Attempt) Complete(ctx context.Context, outcome Outcome, detail string) error {
	if outcome == OutcomePending {
		return fmt.Errorf("complete audit attempt: outcome must be success or failure")
	}

	err := ErrAttemptCompleted
	a.once.Do(func() {
		err = a.recorder.append(ctx, a.id, a.t, outcome, detail)
		a.recorder.mu.Lock()
		delete(a.recorder.open, a.id)
		a.recorder.mu.Unlock()
	})
	return err
}

// Record writes a pending entry and its outcome back to back, for transitions
// that have no external side effect.
func (r *Recorder) Record(ctx context.Context, t Transition, outcome Outcome, detail string) error {
	attempt, err := r.Begin(ctx, t)
	if err != nil {
		return err
	}
	return attempt.Complete(ctx, outcome, detail)
}

// Open returns the transitions begun in this process and not yet completed.
func (r *Recorder) Open() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, 0, len(r.open))
	for _, t := range r.open {
		out = append(out, t)
	}
	return out
}

func (r *Recorder) append(ctx context.Context, attemptID uuid.UUID, t Transition, outcome Outcome, detail string) error {
	entry := Entry{
		ID:         uuid.New(),
		AttemptID:  attemptID,
		RunID:      t.RunID,
		RecordKey:  t.RecordKey,
		FromState:  t.From,
		ToState:    t.To,
		Outcome:    outcome,
		Detail:     detail,
		OccurredAt: r.now().Truncate(time.Microsecond),
	}

	if _, err := r.store.Append(ctx, func(tail *Entry) Entry { return Link(tail, entry) }); err != nil {
		r.log.Error("audit append failed", "record", t.RecordKey, "from", t.From, "to", t.To, "outcome", outcome, "error", err)
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Link chains e onto tail: it sets the sequence, previous hash and hash.
func Link(tail *Entry, e Entry) Entry {
	e.Sequence = 1
	e.PrevHash = GenesisHash
	if tail != nil {
		e.Sequence = tail.Sequence + 1
		e.PrevHash = tail.Hash
	}
	e.Hash = e.ComputeHash()
	return e
}

// ChainError reports the first entry whose link or hash does not verify.
type ChainError struct {
	Sequence int64
	Reason   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at sequence %d: %s", e.Sequence, e.Reason)
}

// Verify walks the whole trail and returns the number of entries checked.
func (r *Recorder) Verify(ctx context.Context) (int, error) {
	return VerifyStore(ctx, r.store)
}

// VerifyStore checks links and hashes of every entry in store.
func VerifyStore(ctx context.Context, store Store) (int, error) {
	prevHash := GenesisHash
	var after int64
	checked := 0

	for {
		page, err := store.List(ctx, after, verifyPageSize)
		if err != nil {
			return checked, fmt.Errorf("list audit entries: %w", err)
		}
		if len(page) == 0 {
			return checked, nil
		}
		for _, e := range page {
			if e.PrevHash != prevHash {
				return checked, &ChainError{Sequence: e.Sequence, Reason: "previous hash mismatch"}
			}
			if e.ComputeHash() != e.Hash {
				return checked, &ChainError{Sequence: e.Sequence, Reason: "content hash mismatch"}
			}
			prevHash = e.Hash
			after = e.Sequence
			checked++
		}
	}
}

// Ping checks the underlying store.
func (r *Recorder) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Dangling lists pending entries that never got an outcome, usually left by a crash.
func (r *Recorder) Dangling(ctx context.Context) ([]Entry, error) {
	return r.store.Dangling(ctx)
}
