package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/report"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type countRow struct {
	Label string
	Count int
}

type runReportEmailData struct {
	baseEmailData
	RunID           string
	Mode            string
	Reference       string
	StartedAt       string
	Duration        string
	RowsScanned     int
	Matched         int
	Duplicates      int
	Actions         int
	Attachments     int
	Aborted         bool
	AbortReason     string
	States          []countRow
	Classifications []countRow
	NoAction        []countRow
	Failures        []report.RecordResult
	Skipped         []report.SkippedRow
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderRunReport renders the HTML body of a run report mail.
func RenderRunReport(rep *report.RunReport) (string, error) {
	data := runReportEmailData{
		baseEmailData: baseEmailData{
			Title:   RunReportSubject(rep),
			Heading: "Supplier dispute run",
		},
		RunID:           rep.RunID,
		Mode:            string(rep.Mode),
		Reference:       rep.Reference,
		StartedAt:       rep.StartedAt.UTC().Format(time.RFC3339),
		Duration:        rep.Duration,
		RowsScanned:     rep.RowsScanned,
		Matched:         rep.Matched,
		Duplicates:      rep.Duplicates,
		Actions:         rep.Actions(),
		Attachments:     rep.Attachments,
		Aborted:         rep.Aborted,
		AbortReason:     rep.AbortReason,
		States:          counts(rep.States),
		Classifications: counts(rep.Classifications),
		NoAction:        counts(rep.NoAction),
		Skipped:         rep.Skipped,
	}
	if rep.Mode == report.ModeSingle {
		data.Subheading = rep.Reference
	}
	for _, rec := range rep.Records {
		if rec.State == domain.StateFailed {
			data.Failures = append(data.Failures, rec)
		}
	}
	return renderEmailTemplate("run_report.html", data)
}

func counts[K ~string](m map[K]int) []countRow {
	rows := make([]countRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, countRow{Label: string(k), Count: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	return rows
}
