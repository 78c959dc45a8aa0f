package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"supplier_dispute_backend/internal/disputes/report"
	"supplier_dispute_backend/internal/email"
	"supplier_dispute_backend/internal/events"
	"supplier_dispute_backend/platform/logger"
)

type testEmailConfig struct {
	recipients []string
}

func (c testEmailConfig) GetSMTPHost() string           { return "smtp.example.com" }
func (c testEmailConfig) GetSMTPPort() int              { return 587 }
func (c testEmailConfig) GetSMTPUsername() string       { return "" }
func (c testEmailConfig) GetSMTPPassword() string       { return "" }
func (c testEmailConfig) GetEmailFromName() string      { return "Dispute Automation" }
func (c testEmailConfig) GetEmailFromAddress() string   { return "disputes@example.com" }
func (c testEmailConfig) GetReportRecipients() []string { return c.recipients }
func (c testEmailConfig) IsReportEmailEnabled() bool    { return len(c.recipients) > 0 }

type testSender struct {
	calls       int
	recipients  []string
	attachments []email.Attachment
	err         error
}

func (s *testSender) SendRunReport(_ context.Context, recipients []string, _ *report.RunReport, attachments ...email.Attachment) error {
	s.calls++
	s.recipients = recipients
	s.attachments = attachments
	return s.err
}

const testRecipient = "ops@example.com"

func TestRunCompletedSendsReport(t *testing.T) {
	sender := &testSender{}
	bus := events.NewInMemoryBus(logger.Discard())
	New(sender, testEmailConfig{recipients: []string{testRecipient}}, logger.Discard()).RegisterHandlers(bus)

	rep := report.New("run-7", report.ModeBatch, time.Now())
	if err := bus.PublishSync(context.Background(), events.RunCompleted{BaseEvent: events.NewBaseEvent(), Report: rep}); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if sender.calls != 1 || sender.recipients[0] != testRecipient {
		t.Fatalf("expected one send to %s, got %d %v", testRecipient, sender.calls, sender.recipients)
	}
	if len(sender.attachments) != 1 || sender.attachments[0].FileName != "run-report-run-7.json" {
		t.Fatalf("unexpected attachments %+v", sender.attachments)
	}
	var decoded map[string]any
	if err := json.Unmarshal(sender.attachments[0].Content, &decoded); err != nil {
		t.Fatalf("attachment is not JSON: %v", err)
	}
	if decoded["runId"] != "run-7" {
		t.Fatalf("unexpected run id %v", decoded["runId"])
	}
}

func TestRunCompletedWithoutRecipients(t *testing.T) {
	sender := &testSender{}
	m := New(sender, testEmailConfig{}, logger.Discard())

	err := m.Handle(context.Background(), events.RunCompleted{Report: report.New("r", report.ModeBatch, time.Now())})
	if err != nil || sender.calls != 0 {
		t.Fatalf("expected no send, got err=%v calls=%d", err, sender.calls)
	}
}

func TestRunCompletedSendFailure(t *testing.T) {
	sender := &testSender{err: errors.New("smtp down")}
	m := New(sender, testEmailConfig{recipients: []string{testRecipient}}, logger.Discard())

	err := m.Handle(context.Background(), events.RunCompleted{Report: report.New("r", report.ModeBatch, time.Now())})
	if err == nil {
		t.Fatal("expected send failure to be returned")
	}
}

func TestNewSenderSelectsNoop(t *testing.T) {
	if _, ok := email.NewSender(testEmailConfig{}).(email.NoopSender); !ok {
		t.Fatal("expected NoopSender without recipients")
	}
	if _, ok := email.NewSender(testEmailConfig{recipients: []string{testRecipient}}).(*email.SMTPSender); !ok {
		t.Fatal("expected SMTPSender when configured")
	}
}
