// Package report holds the summary produced by every dispute run.
package report

import (
	"sync"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
)

// Mode says how a run was started.
type Mode string

const (
	ModeBatch  Mode = "batch"
	ModeSingle Mode = "single"
)

// RecordResult is the terminal outcome of one dispute record.
type RecordResult struct {
	ClientReference string                `json:"clientReference"`
	RowNumber       int                   `json:"rowNumber"`
	State           domain.State          `json:"state"`
	Classification  domain.Classification `json:"classification,omitempty"`
	NoActionReason  domain.NoActionReason `json:"noActionReason,omitempty"`
	ExportPath      string                `json:"exportPath,omitempty"`
	Attached        bool                  `json:"attached"`
	Error           string                `json:"error,omitempty"`
}

// SkippedRow is a matched row the scanner could not turn into a record.
type SkippedRow struct {
	RowNumber int    `json:"rowNumber"`
	Reason    string `json:"reason"`
}

// RunReport summarizes one run. Records are added concurrently; call Finish
// once every record has reached a terminal state.
type RunReport struct {
	mu sync.Mutex

	RunID      string    `json:"runId"`
	Mode       Mode      `json:"mode"`
	Reference  string    `json:"reference,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Duration   string    `json:"duration"`

	RowsScanned int          `json:"rowsScanned"`
	Matched     int          `json:"matched"`
	Duplicates  int          `json:"duplicates"`
	Skipped     []SkippedRow `json:"skipped,omitempty"`

	Records         []RecordResult                `json:"records"`
	States          map[domain.State]int          `json:"states"`
	Classifications map[domain.Classification]int `json:"classifications"`
	NoAction        map[domain.NoActionReason]int `json:"noAction"`
	Attachments     int                           `json:"attachments"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`
}

// New starts a report.
func New(runID string, mode Mode, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:           runID,
		Mode:            mode,
		StartedAt:       startedAt,
		Records:         []RecordResult{},
		States:          make(map[domain.State]int),
		Classifications: make(map[domain.Classification]int),
		NoAction:        make(map[domain.NoActionReason]int),
	}
}

// Add records a terminal result.
func (r *RunReport) Add(res RecordResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Records = append(r.Records, res)
	r.States[res.State]++
	if res.Classification != "" {
		r.Classifications[res.Classification]++
	}
	if res.NoActionReason != "" {
		r.NoAction[res.NoActionReason]++
	}
	if res.Attached {
		r.Attachments++
	}
}

// Abort marks the run as aborted. The first reason wins.
func (r *RunReport) Abort(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Aborted {
		return
	}
	r.Aborted = true
	r.AbortReason = reason
}

// Finish stamps the end time.
func (r *RunReport) Finish(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = at
	r.Duration = at.Sub(r.StartedAt).Round(time.Millisecond).String()
}

// Failed returns the number of records that ended in Failed.
func (r *RunReport) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.States[domain.StateFailed]
}

// HasFailures reports whether the run should exit non-zero.
func (r *RunReport) HasFailures() bool {
	return r.Failed() > 0 || r.isAborted()
}

func (r *RunReport) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Aborted
}

// Actions returns how many records had an update applied to the sheet.
func (r *RunReport) Actions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.Records {
		if rec.State == domain.StateAudited && rec.NoActionReason == "" {
			n++
		}
	}
	return n
}
