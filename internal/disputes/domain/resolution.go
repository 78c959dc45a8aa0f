package domain

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// NoActionReason explains why a dispute produced no sheet mutation.
type NoActionReason string

const (
	ReasonAlreadyResolved NoActionReason = "alreadyResolved"
	ReasonNotEligible     NoActionReason = "notEligible"
	ReasonManualReview    NoActionReason = "manualReview"
)

// ResolutionAction is the update written back to the sheet.
type ResolutionAction struct {
	NewStatus          string
	NewCompletion      string
	NewSupplierComment string
	NewNoteText        string
	AttachmentPath     string
}

// Resolution is either an Action or a NoAction reason.
type Resolution struct {
	Action   *ResolutionAction
	NoAction NoActionReason
}

// IsNoAction reports whether nothing should be written.
func (r Resolution) IsNoAction() bool {
	return r.Action == nil
}

// ResolutionRule is the configured outcome for one classification.
type ResolutionRule struct {
	Status                string
	Completion            string
	SupplierComment       string
	NoteTemplate          string
	RebookingNoteTemplate string
	NoLogsNoteTemplate    string
}

// ResolutionTable maps classifications to rules. UNKNOWN never has a rule.
type ResolutionTable map[Classification]ResolutionRule

// NoteData is available to note templates.
type NoteData struct {
	Classification     Classification
	OriginalBookingID  string
	CancelledAt        string
	RebookingBookingID string
	RebookedAt         string
}

const noteTimeLayout = "2006-01-02 15:04:05 UTC"

type compiledRule struct {
	rule      ResolutionRule
	standard  *template.Template
	rebooking *template.Template
	noLogs    *template.Template
}

// Composer turns a classification into a resolution, guarded by the sheet state.
type Composer struct {
	rules map[Classification]compiledRule
}

// ComposeInput carries the composer's inputs. HasLogs selects the no-logs note
// when a rule defines one.
type ComposeInput struct {
	Classification    Classification
	Rebooking         *RebookingContext
	CurrentStatus     string
	CurrentCompletion string
	HasLogs           bool
}

// NewComposer compiles every template and dry-runs it so Compose cannot fail on
// a bad field reference at run time.
func NewComposer(table ResolutionTable) (*Composer, error) {
	c := &Composer{rules: make(map[Classification]compiledRule, len(table))}

	for _, class := range AllClassifications() {
		if class == ClassUnknown {
			continue
		}
		rule, ok := table[class]
		if !ok {
			return nil, fmt.Errorf("resolution table: missing rule for %s", class)
		}
		if strings.TrimSpace(rule.Status) == "" || strings.TrimSpace(rule.Completion) == "" {
			return nil, fmt.Errorf("resolution table: %s needs status and completion", class)
		}

		compiled := compiledRule{rule: rule}
		var err error
		if compiled.standard, err = compileNote(class, "note", rule.NoteTemplate); err != nil {
			return nil, err
		}
		if rule.RebookingNoteTemplate != "" {
			if compiled.rebooking, err = compileNote(class, "rebooking_note", rule.RebookingNoteTemplate); err != nil {
				return nil, err
			}
		}
		if rule.NoLogsNoteTemplate != "" {
			if compiled.noLogs, err = compileNote(class, "no_logs_note", rule.NoLogsNoteTemplate); err != nil {
				return nil, err
			}
		}
		c.rules[class] = compiled
	}

	if _, ok := table[ClassUnknown]; ok {
		return nil, fmt.Errorf("resolution table: %s is reserved for manual review", ClassUnknown)
	}

	return c, nil
}

func compileNote(class Classification, name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("resolution table: %s %s is empty", class, name)
	}
	tmpl, err := template.New(string(class) + "." + name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("resolution table: %s %s: %w", class, name, err)
	}
	sample := NoteData{Classification: class, OriginalBookingID: "B1", CancelledAt: "t1", RebookingBookingID: "B2", RebookedAt: "t2"}
	if err := tmpl.Execute(&bytes.Buffer{}, sample); err != nil {
		return nil, fmt.Errorf("resolution table: %s %s: %w", class, name, err)
	}
	return tmpl, nil
}

// CheckGuard returns the NoAction reason when the sheet state forbids a mutation.
// Only escalation/need help is actionable; escalation with a completion already
// moved to ready to submit counts as resolved.
func CheckGuard(currentStatus, currentCompletion string) (NoActionReason, bool) {
	if !SameValue(currentStatus, StatusEscalation) {
		return ReasonNotEligible, false
	}
	if SameValue(currentCompletion, CompletionNeedHelp) {
		return "", true
	}
	if SameValue(currentCompletion, CompletionReadyToSubmit) {
		return ReasonAlreadyResolved, false
	}
	return ReasonNotEligible, false
}

// Compose is pure: the same input always yields the same resolution.
func (c *Composer) Compose(in ComposeInput) (Resolution, error) {
	if reason, ok := CheckGuard(in.CurrentStatus, in.CurrentCompletion); !ok {
		return Resolution{NoAction: reason}, nil
	}

	compiled, ok := c.rules[in.Classification]
	if !ok {
		return Resolution{NoAction: ReasonManualReview}, nil
	}

	data := NoteData{Classification: in.Classification}
	tmpl := compiled.standard
	switch {
	case in.Rebooking != nil && compiled.rebooking != nil:
		tmpl = compiled.rebooking
		data.OriginalBookingID = in.Rebooking.OriginalBookingID
		data.CancelledAt = formatNoteTime(in.Rebooking.CancellationTimestamp)
		data.RebookingBookingID = in.Rebooking.RebookingBookingID
		data.RebookedAt = formatNoteTime(in.Rebooking.RebookingTimestamp)
	case !in.HasLogs && compiled.noLogs != nil:
		tmpl = compiled.noLogs
	}

	var note bytes.Buffer
	if err := tmpl.Execute(&note, data); err != nil {
		return Resolution{}, fmt.Errorf("render note for %s: %w", in.Classification, err)
	}

	return Resolution{Action: &ResolutionAction{
		NewStatus:          compiled.rule.Status,
		NewCompletion:      compiled.rule.Completion,
		NewSupplierComment: compiled.rule.SupplierComment,
		NewNoteText:        strings.TrimSpace(note.String()),
	}}, nil
}

func formatNoteTime(t time.Time) string {
	if t.IsZero() {
		return "unknown time"
	}
	return t.UTC().Format(noteTimeLayout)
}
