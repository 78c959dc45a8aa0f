// Package email delivers dispute run reports.
package email

import (
	"context"

	"supplier_dispute_backend/internal/disputes/report"
	"supplier_dispute_backend/platform/config"
)

type Attachment struct {
	Content  []byte // raw file bytes
	FileName string // e.g. "run-report-<id>.json"
	MIMEType string // e.g. "application/json"
}

type Sender interface {
	SendRunReport(ctx context.Context, recipients []string, rep *report.RunReport, attachments ...Attachment) error
}

type NoopSender struct{}

func (NoopSender) SendRunReport(ctx context.Context, recipients []string, rep *report.RunReport, attachments ...Attachment) error {
	return nil
}

// NewSender returns an SMTP sender when SMTP is configured, otherwise a NoopSender.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.IsReportEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}
