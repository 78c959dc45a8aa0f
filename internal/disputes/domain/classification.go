package domain

import (
	"strings"
	"time"
)

// Classification is the single error category assigned to a dispute.
type Classification string

const (
	ClassSupplierConfirmationError Classification = "SUPPLIER_CONFIRMATION_ERROR"
	ClassConnectionError           Classification = "CONNECTION_ERROR"
	ClassTimeoutError              Classification = "TIMEOUT_ERROR"
	ClassProviderError             Classification = "PROVIDER_ERROR"
	ClassBookingFailed             Classification = "BOOKING_FAILED"
	ClassBookingInvalid            Classification = "BOOKING_INVALID"
	ClassValidationError           Classification = "VALIDATION_ERROR"
	ClassUnknown                   Classification = "UNKNOWN"
)

// AllClassifications lists every category in precedence order, UNKNOWN last.
func AllClassifications() []Classification {
	return []Classification{
		ClassConnectionError,
		ClassTimeoutError,
		ClassBookingInvalid,
		ClassProviderError,
		ClassSupplierConfirmationError,
		ClassBookingFailed,
		ClassValidationError,
		ClassUnknown,
	}
}

// ParseClassification accepts a category name in any case.
func ParseClassification(raw string) (Classification, bool) {
	want := Classification(strings.ToUpper(strings.TrimSpace(raw)))
	for _, c := range AllClassifications() {
		if c == want {
			return c, true
		}
	}
	return "", false
}

// FailureKind distinguishes transport faults.
type FailureKind string

const (
	FailureConnection FailureKind = "connection"
	FailureTimeout    FailureKind = "timeout"
)

// TransportFailure is one failed attempt against an external boundary.
type TransportFailure struct {
	Boundary  string
	Kind      FailureKind
	Attempt   int
	Recovered bool
	Message   string
}

// LogEntry is one raw evidence row from the log warehouse.
type LogEntry struct {
	Timestamp       time.Time
	ErrorCode       string
	Message         string
	Source          string
	ClientReference string
}

// Validity is the profile service's verdict on the current booking.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

// ValidatorOutcome is what the booking validator learned about a reference.
type ValidatorOutcome struct {
	Events []BookingEvent
}

// Found reports whether the service knows any booking for the reference.
func (v ValidatorOutcome) Found() bool {
	return len(v.Events) > 0
}

// Validity judges the current booking. No bookings means unknown.
func (v ValidatorOutcome) Validity() Validity {
	current, ok := CurrentBooking(v.Events)
	if !ok {
		return ValidityUnknown
	}
	if current.Valid {
		return ValidityValid
	}
	return ValidityInvalid
}

// Evidence is everything gathered for one dispute before classification.
type Evidence struct {
	ClientReferenceNumber string
	Validator             ValidatorOutcome
	Logs                  []LogEntry
	TransportFailures     []TransportFailure
}

// Markers configure how log rows are read. Codes compare case-insensitively
// against LogEntry.ErrorCode; phrases are case-insensitive substrings of LogEntry.Message.
type Markers struct {
	TransportCodes    map[string]FailureKind
	FaultCodes        []string
	FaultPhrases      []string
	PendingCodes      []string
	PendingPhrases    []string
	ConfirmationCodes []string
}

// Classifier applies the fixed precedence over a set of markers.
type Classifier struct {
	transport     map[string]FailureKind
	fault         map[string]struct{}
	faultPhrases  []string
	pending       map[string]struct{}
	pendingPhrase []string
	confirmed     map[string]struct{}
}

// NewClassifier normalizes markers once.
func NewClassifier(m Markers) *Classifier {
	c := &Classifier{
		transport:     make(map[string]FailureKind, len(m.TransportCodes)),
		fault:         codeSet(m.FaultCodes),
		faultPhrases:  phraseList(m.FaultPhrases),
		pending:       codeSet(m.PendingCodes),
		pendingPhrase: phraseList(m.PendingPhrases),
		confirmed:     codeSet(m.ConfirmationCodes),
	}
	for code, kind := range m.TransportCodes {
		c.transport[normalizeCode(code)] = kind
	}
	return c
}

// Classify returns exactly one category; the first matching rule wins.
//  1. transport fault at a boundary or in the supplier call
//  2. validator reports the booking invalid
//  3. supplier fault marker in logs
//  4. unconfirmed or pending supplier response
//  5. no booking confirmation in the logs, including no logs at all
//  6. logs reference another client reference
//  7. unknown
func (c *Classifier) Classify(ev Evidence) Classification {
	if kind, ok := c.firstTransportFailure(ev); ok {
		if kind == FailureTimeout {
			return ClassTimeoutError
		}
		return ClassConnectionError
	}

	if ev.Validator.Validity() == ValidityInvalid {
		return ClassBookingInvalid
	}

	if c.anyLog(ev.Logs, c.isFault) {
		return ClassProviderError
	}

	if c.anyLog(ev.Logs, c.isPending) {
		return ClassSupplierConfirmationError
	}

	if !c.anyLog(ev.Logs, c.isConfirmation) {
		return ClassBookingFailed
	}

	if referencesOther(ev.Logs, ev.ClientReferenceNumber) {
		return ClassValidationError
	}

	return ClassUnknown
}

// TransportFailuresFromLogs turns supplier-call transport codes into failures.
func (c *Classifier) TransportFailuresFromLogs(logs []LogEntry) []TransportFailure {
	var out []TransportFailure
	for _, entry := range logs {
		if kind, ok := c.transport[normalizeCode(entry.ErrorCode)]; ok {
			out = append(out, TransportFailure{
				Boundary: "supplier:" + entry.Source,
				Kind:     kind,
				Message:  entry.Message,
			})
		}
	}
	return out
}

func (c *Classifier) firstTransportFailure(ev Evidence) (FailureKind, bool) {
	if len(ev.TransportFailures) > 0 {
		return ev.TransportFailures[0].Kind, true
	}
	if fromLogs := c.TransportFailuresFromLogs(ev.Logs); len(fromLogs) > 0 {
		return fromLogs[0].Kind, true
	}
	return "", false
}

func (c *Classifier) anyLog(logs []LogEntry, pred func(LogEntry) bool) bool {
	for _, entry := range logs {
		if pred(entry) {
			return true
		}
	}
	return false
}

func (c *Classifier) isFault(entry LogEntry) bool {
	if _, ok := c.fault[normalizeCode(entry.ErrorCode)]; ok {
		return true
	}
	return containsAny(entry.Message, c.faultPhrases)
}

func (c *Classifier) isPending(entry LogEntry) bool {
	if _, ok := c.pending[normalizeCode(entry.ErrorCode)]; ok {
		return true
	}
	return containsAny(entry.Message, c.pendingPhrase)
}

func (c *Classifier) isConfirmation(entry LogEntry) bool {
	_, ok := c.confirmed[normalizeCode(entry.ErrorCode)]
	return ok
}

func referencesOther(logs []LogEntry, ref string) bool {
	for _, entry := range logs {
		if strings.TrimSpace(entry.ClientReference) == "" {
			continue
		}
		if !SameValue(entry.ClientReference, ref) {
			return true
		}
	}
	return false
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func codeSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if n := normalizeCode(code); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func phraseList(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := strings.ToLower(strings.TrimSpace(p)); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(text string, phrases []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
