// Package notification reacts to dispute run events. It mails the run report
// when SMTP is configured, so the orchestrator never knows about email.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"supplier_dispute_backend/internal/email"
	"supplier_dispute_backend/internal/events"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/logger"
)

// Module handles dispute run events.
type Module struct {
	sender     email.Sender
	recipients []string
	log        *logger.Logger
}

// New creates the notification module.
func New(sender email.Sender, cfg config.EmailConfig, log *logger.Logger) *Module {
	return &Module{
		sender:     sender,
		recipients: cfg.GetReportRecipients(),
		log:        log,
	}
}

// RegisterHandlers subscribes the module to the bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.RunCompleted{}.EventName(), m)
	bus.Subscribe(events.RunAborted{}.EventName(), m)
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.RunCompleted:
		return m.handleRunCompleted(ctx, e)
	case events.RunAborted:
		m.log.Error("dispute run aborted", "run_id", e.RunID, "reason", e.Reason)
		return nil
	default:
		m.log.Debug("notification: unhandled event", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleRunCompleted(ctx context.Context, e events.RunCompleted) error {
	if e.Report == nil || len(m.recipients) == 0 {
		return nil
	}

	data, err := json.MarshalIndent(e.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}

	attachment := email.Attachment{
		Content:  data,
		FileName: fmt.Sprintf("run-report-%s.json", e.Report.RunID),
		MIMEType: "application/json",
	}
	if err := m.sender.SendRunReport(ctx, m.recipients, e.Report, attachment); err != nil {
		m.log.Error("failed to send run report", "run_id", e.Report.RunID, "error", err)
		return err
	}
	m.log.Info("run report sent", "run_id", e.Report.RunID, "recipients", len(m.recipients))
	return nil
}
