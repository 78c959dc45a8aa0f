// Package rules loads the trigger phrases, classifier markers and resolution
// table. Defaults are embedded; a YAML file can replace any section.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"supplier_dispute_backend/internal/disputes/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Rules is the decoded rules document.
type Rules struct {
	Triggers   []string      `yaml:"triggers"`
	Markers    MarkersDoc    `yaml:"markers"`
	Resolution ResolutionDoc `yaml:"resolution"`
}

// MarkersDoc mirrors domain.Markers.
type MarkersDoc struct {
	TransportCodes    map[string]string `yaml:"transport_codes"`
	FaultCodes        []string          `yaml:"fault_codes"`
	FaultPhrases      []string          `yaml:"fault_phrases"`
	PendingCodes      []string          `yaml:"pending_codes"`
	PendingPhrases    []string          `yaml:"pending_phrases"`
	ConfirmationCodes []string          `yaml:"confirmation_codes"`
}

// RuleDoc is one resolution rule; empty fields inherit from the default rule.
type RuleDoc struct {
	Status          string `yaml:"status"`
	Completion      string `yaml:"completion"`
	SupplierComment string `yaml:"supplier_comment"`
	Note            string `yaml:"note"`
	RebookingNote   string `yaml:"rebooking_note"`
	NoLogsNote      string `yaml:"no_logs_note"`
}

// ResolutionDoc holds the default rule and per-classification overrides.
type ResolutionDoc struct {
	Default   RuleDoc            `yaml:"default"`
	Overrides map[string]RuleDoc `yaml:"overrides"`
}

// Default returns the embedded rules.
func Default() (*Rules, error) {
	return Parse(defaultRulesYAML)
}

// Parse decodes a rules document.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &r, nil
}

// Load returns the embedded defaults, with any section present in path replacing the default one.
func Load(path string) (*Rules, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if len(override.Triggers) > 0 {
		base.Triggers = override.Triggers
	}
	if !override.Markers.empty() {
		base.Markers = override.Markers
	}
	if override.Resolution.Default != (RuleDoc{}) {
		base.Resolution.Default = override.Resolution.Default
	}
	for name, rule := range override.Resolution.Overrides {
		if base.Resolution.Overrides == nil {
			base.Resolution.Overrides = make(map[string]RuleDoc)
		}
		base.Resolution.Overrides[name] = rule
	}
	return base, nil
}

func (m MarkersDoc) empty() bool {
	return len(m.TransportCodes) == 0 && len(m.FaultCodes) == 0 && len(m.FaultPhrases) == 0 &&
		len(m.PendingCodes) == 0 && len(m.PendingPhrases) == 0 && len(m.ConfirmationCodes) == 0
}

// DomainMarkers converts the markers section.
func (r *Rules) DomainMarkers() (domain.Markers, error) {
	transport := make(map[string]domain.FailureKind, len(r.Markers.TransportCodes))
	for code, kind := range r.Markers.TransportCodes {
		switch domain.FailureKind(strings.ToLower(strings.TrimSpace(kind))) {
		case domain.FailureConnection:
			transport[code] = domain.FailureConnection
		case domain.FailureTimeout:
			transport[code] = domain.FailureTimeout
		default:
			return domain.Markers{}, fmt.Errorf("transport code %s: unknown failure kind %q", code, kind)
		}
	}
	return domain.Markers{
		TransportCodes:    transport,
		FaultCodes:        r.Markers.FaultCodes,
		FaultPhrases:      r.Markers.FaultPhrases,
		PendingCodes:      r.Markers.PendingCodes,
		PendingPhrases:    r.Markers.PendingPhrases,
		ConfirmationCodes: r.Markers.ConfirmationCodes,
	}, nil
}

// ResolutionTable expands the default rule and overrides to every actionable classification.
func (r *Rules) ResolutionTable() (domain.ResolutionTable, error) {
	for name := range r.Resolution.Overrides {
		class, ok := domain.ParseClassification(name)
		if !ok {
			return nil, fmt.Errorf("resolution override for unknown classification %q", name)
		}
		if class == domain.ClassUnknown {
			return nil, fmt.Errorf("resolution override for %s is not allowed", class)
		}
	}

	table := domain.ResolutionTable{}
	for _, class := range domain.AllClassifications() {
		if class == domain.ClassUnknown {
			continue
		}
		rule := r.Resolution.Default
		if o, ok := r.lookupOverride(class); ok {
			rule = merge(rule, o)
		}
		table[class] = domain.ResolutionRule{
			Status:                rule.Status,
			Completion:            rule.Completion,
			SupplierComment:       rule.SupplierComment,
			NoteTemplate:          rule.Note,
			RebookingNoteTemplate: rule.RebookingNote,
			NoLogsNoteTemplate:    rule.NoLogsNote,
		}
	}
	return table, nil
}

func (r *Rules) lookupOverride(class domain.Classification) (RuleDoc, bool) {
	for name, rule := range r.Resolution.Overrides {
		if parsed, ok := domain.ParseClassification(name); ok && parsed == class {
			return rule, true
		}
	}
	return RuleDoc{}, false
}

func merge(base, o RuleDoc) RuleDoc {
	if o.Status != "" {
		base.Status = o.Status
	}
	if o.Completion != "" {
		base.Completion = o.Completion
	}
	if o.SupplierComment != "" {
		base.SupplierComment = o.SupplierComment
	}
	if o.Note != "" {
		base.Note = o.Note
	}
	if o.RebookingNote != "" {
		base.RebookingNote = o.RebookingNote
	}
	if o.NoLogsNote != "" {
		base.NoLogsNote = o.NoLogsNote
	}
	return base
}
