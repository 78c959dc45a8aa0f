// Package scanner discovers candidate disputes in tracking-sheet rows.
package scanner

import (
	"errors"
	"strings"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/validator"
)

// Skip records a matched row that could not become a dispute.
type Skip struct {
	RowNumber int    `json:"rowNumber"`
	Reason    string `json:"reason"`
}

// Result is the outcome of one scan.
type Result struct {
	Records     []domain.DisputeRecord
	RowsScanned int
	Matched     int
	Skipped     []Skip
	Duplicates  int
}

// Scanner evaluates ordered trigger matchers against each row's notes.
type Scanner struct {
	matchers []Matcher
	val      *validator.Validator
	log      *logger.Logger
	now      func() time.Time
}

// New creates a scanner. At least one trigger phrase is required.
func New(phrases []string, val *validator.Validator, log *logger.Logger) (*Scanner, error) {
	if len(phrases) == 0 {
		return nil, errors.New("at least one trigger phrase is required")
	}
	matchers, err := NewMatchers(phrases)
	if err != nil {
		return nil, err
	}
	if val == nil {
		val = validator.New()
	}
	return &Scanner{
		matchers: matchers,
		val:      val,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Match returns the first configured phrase found in notes.
func (s *Scanner) Match(notes string) (string, bool) {
	normalized := Normalize(notes)
	if normalized == "" {
		return "", false
	}
	for _, m := range s.matchers {
		if m.Match(normalized) {
			return m.Phrase, true
		}
	}
	return "", false
}

// Scan turns rows into dispute records, one per client reference.
// Matched rows without a usable reference are skipped with a warning.
func (s *Scanner) Scan(rows []ports.SheetRow) Result {
	res := Result{RowsScanned: len(rows)}
	seen := make(map[string]bool)
	discoveredAt := s.now()

	for _, row := range rows {
		phrase, ok := s.Match(row.Notes)
		if !ok {
			continue
		}
		res.Matched++

		record := domain.DisputeRecord{
			RowID:                 row.RowID,
			RowNumber:             row.RowNumber,
			ClientReferenceNumber: strings.TrimSpace(row.ClientReference),
			TriggerMessage:        phrase,
			CurrentStatus:         strings.TrimSpace(row.Status),
			CurrentCompletion:     strings.TrimSpace(row.Completion),
			SupplierComments:      row.SupplierComments,
			NotesText:             row.Notes,
			DiscoveredAt:          discoveredAt,
		}

		if record.ClientReferenceNumber == "" {
			s.log.Warn("skipping dispute row without client reference", "row", row.RowNumber)
			res.Skipped = append(res.Skipped, Skip{RowNumber: row.RowNumber, Reason: "missing client reference"})
			continue
		}
		if err := s.val.Struct(record); err != nil {
			reason := validator.Describe(err)
			s.log.Warn("skipping invalid dispute row", "row", row.RowNumber, "reason", reason)
			res.Skipped = append(res.Skipped, Skip{RowNumber: row.RowNumber, Reason: reason})
			continue
		}

		key := strings.ToUpper(record.ClientReferenceNumber)
		if seen[key] {
			res.Duplicates++
			s.log.Debug("duplicate dispute row ignored", "row", row.RowNumber, "client_reference", record.ClientReferenceNumber)
			continue
		}
		seen[key] = true
		res.Records = append(res.Records, record)
	}

	return res
}

// Find returns the dispute record for ref, if a matching row exists.
func (s *Scanner) Find(rows []ports.SheetRow, ref string) (domain.DisputeRecord, bool) {
	for _, record := range s.Scan(rows).Records {
		if domain.SameValue(record.ClientReferenceNumber, ref) {
			return record, true
		}
	}
	return domain.DisputeRecord{}, false
}
