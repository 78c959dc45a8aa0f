package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/scanner"
	"supplier_dispute_backend/platform/logger"
)

func TestDefaultRulesBuildEveryComponent(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if len(r.Triggers) != 5 {
		t.Fatalf("expected 5 default triggers, got %d", len(r.Triggers))
	}
	if _, err := r.DomainMarkers(); err != nil {
		t.Fatalf("DomainMarkers: %v", err)
	}
	table, err := r.ResolutionTable()
	if err != nil {
		t.Fatalf("ResolutionTable: %v", err)
	}
	if _, err := domain.NewComposer(table); err != nil {
		t.Fatalf("NewComposer: %v", err)
	}
	if table[domain.ClassProviderError].Status != domain.StatusWillNotPay {
		t.Fatalf("unexpected default status %q", table[domain.ClassProviderError].Status)
	}
}

// Resolved rows keep their notes column; a note that re-triggered the scanner
// would rediscover the row on every run.
func TestDefaultNotesDoNotRetrigger(t *testing.T) {
	r, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	s, err := scanner.New(r.Triggers, nil, logger.Discard())
	if err != nil {
		t.Fatalf("scanner.New: %v", err)
	}
	table, err := r.ResolutionTable()
	if err != nil {
		t.Fatalf("ResolutionTable: %v", err)
	}
	composer, err := domain.NewComposer(table)
	if err != nil {
		t.Fatalf("NewComposer: %v", err)
	}

	rebooking := &domain.RebookingContext{
		OriginalBookingID:     "B-1",
		CancellationTimestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		RebookingBookingID:    "B-2",
		RebookingTimestamp:    time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC),
	}

	for _, class := range domain.AllClassifications() {
		for _, ctx := range []*domain.RebookingContext{nil, rebooking} {
			for _, hasLogs := range []bool{true, false} {
				res, err := composer.Compose(domain.ComposeInput{
					Classification:    class,
					Rebooking:         ctx,
					CurrentStatus:     domain.StatusEscalation,
					CurrentCompletion: domain.CompletionNeedHelp,
					HasLogs:           hasLogs,
				})
				if err != nil {
					t.Fatalf("Compose(%s): %v", class, err)
				}
				if res.IsNoAction() {
					continue
				}
				if phrase, hit := s.Match(res.Action.NewNoteText); hit {
					t.Fatalf("%s note %q re-triggers on %q", class, res.Action.NewNoteText, phrase)
				}
			}
		}
	}
}

func TestLoadOverridesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := []byte(`
triggers: ["custom trigger"]
resolution:
  overrides:
    timeout_error:
      note: "Timed out."
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.Triggers) != 1 || r.Triggers[0] != "custom trigger" {
		t.Fatalf("expected triggers to be replaced, got %v", r.Triggers)
	}
	if len(r.Markers.FaultCodes) == 0 {
		t.Fatalf("expected default markers to be kept")
	}
	table, err := r.ResolutionTable()
	if err != nil {
		t.Fatalf("ResolutionTable: %v", err)
	}
	if table[domain.ClassTimeoutError].NoteTemplate != "Timed out." {
		t.Fatalf("expected override note, got %q", table[domain.ClassTimeoutError].NoteTemplate)
	}
	if table[domain.ClassTimeoutError].Status != domain.StatusWillNotPay {
		t.Fatalf("expected override to inherit status")
	}
	if table[domain.ClassBookingInvalid].NoteTemplate == "" {
		t.Fatalf("expected default overrides to survive")
	}
}

func TestResolutionTableRejectsUnknownOverride(t *testing.T) {
	r, err := Parse([]byte(`
resolution:
  default: {status: x, completion: y, note: z}
  overrides:
    UNKNOWN: {note: "nope"}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := r.ResolutionTable(); err == nil {
		t.Fatalf("expected UNKNOWN override to be rejected")
	}
}

func TestDomainMarkersRejectsBadKind(t *testing.T) {
	r := &Rules{Markers: MarkersDoc{TransportCodes: map[string]string{"X": "flaky"}}}
	if _, err := r.DomainMarkers(); err == nil {
		t.Fatalf("expected unknown failure kind to be rejected")
	}
}
