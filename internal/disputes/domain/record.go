// Package domain holds the dispute engine's types and its pure decision
// procedures: rebooking detection, error classification and resolution.
package domain

import (
	"strings"
	"time"
)

// Status vocabulary shared with the tracking sheet.
const (
	StatusEscalation = "escalation"
	StatusWillNotPay = "will not pay"

	CompletionNeedHelp      = "need help"
	CompletionReadyToSubmit = "ready to submit"

	SupplierCommentInEscalation = "in escalation process"
	SupplierCommentReviewed     = "reviewed by ST technical team"
)

// DisputeRecord is one candidate dispute discovered from a sheet row.
// It only lives for the duration of a run.
type DisputeRecord struct {
	RowID                 int64
	RowNumber             int
	ClientReferenceNumber string `validate:"required,max=128"`
	TriggerMessage        string `validate:"required"`
	CurrentStatus         string
	CurrentCompletion     string
	SupplierComments      string
	NotesText             string
	DiscoveredAt          time.Time
}

// SameValue compares two sheet values ignoring case and surrounding whitespace.
func SameValue(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
