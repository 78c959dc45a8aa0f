// Package audit keeps the durable, append-only, hash-chained trail of every
// dispute state transition attempt.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"

	"github.com/google/uuid"
)

// Outcome is the phase of a transition attempt.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// GenesisHash is the previous hash of the first entry.
var GenesisHash = strings.Repeat("0", 64)

// RunRecordKey is the record key used for run-level entries (aborts, run start/end).
const RunRecordKey = "*run*"

// Entry is one immutable audit row. A pending entry and its completion share an AttemptID.
type Entry struct {
	Sequence   int64        `json:"sequence"`
	ID         uuid.UUID    `json:"id"`
	AttemptID  uuid.UUID    `json:"attemptId"`
	RunID      string       `json:"runId"`
	RecordKey  string       `json:"recordKey"`
	FromState  domain.State `json:"fromState"`
	ToState    domain.State `json:"toState"`
	Outcome    Outcome      `json:"outcome"`
	Detail     string       `json:"detail"`
	OccurredAt time.Time    `json:"occurredAt"`
	PrevHash   string       `json:"prevHash"`
	Hash       string       `json:"hash"`
}

// ComputeHash hashes every field except Hash itself.
func (e Entry) ComputeHash() string {
	input := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.Sequence,
		e.PrevHash,
		e.ID,
		e.AttemptID,
		e.RunID,
		e.RecordKey,
		e.FromState,
		e.ToState,
		e.Outcome,
		e.Detail,
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
