package disputes

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"supplier_dispute_backend/internal/disputes/audit"
	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/internal/disputes/report"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/retry"
)

var errAuditUnavailable = errors.New("audit store unavailable")

func auditFailure(err error) error {
	return fmt.Errorf("%w: %v", errAuditUnavailable, err)
}

// isFatal reports whether err must stop the run: rejected credentials or a
// trail that can no longer be written.
func isFatal(err error) bool {
	return apperr.IsFatal(err) || errors.Is(err, errAuditUnavailable)
}

// recordRun tracks one record through the state machine.
type recordRun struct {
	o      *Orchestrator
	run    *run
	record domain.DisputeRecord
	state  domain.State
	log    *logger.Logger
	result report.RecordResult
}

func (rr *recordRun) transition(to domain.State, detail string) audit.Transition {
	return audit.Transition{
		RunID:     rr.run.id,
		RecordKey: rr.record.ClientReferenceNumber,
		From:      rr.state,
		To:        to,
		Detail:    detail,
	}
}

// advance moves to the next state after its audit entry is complete.
func (rr *recordRun) advance(to domain.State, outcome audit.Outcome) {
	if !domain.CanTransition(rr.state, to) {
		rr.log.Error("unexpected dispute transition", "from", rr.state, "to", to)
	}
	rr.log.Transition(rr.record.ClientReferenceNumber, string(rr.state), string(to), string(outcome))
	rr.state = to
}

// begin opens a two-phase audit entry. Nothing may be mutated without one.
func (rr *recordRun) begin(ctx context.Context, to domain.State, detail string) (*audit.Attempt, error) {
	attempt, err := rr.o.audit.Begin(ctx, rr.transition(to, detail))
	if err != nil {
		return nil, auditFailure(err)
	}
	return attempt, nil
}

func (rr *recordRun) complete(ctx context.Context, attempt *audit.Attempt, outcome audit.Outcome, detail string) error {
	if err := attempt.Complete(ctx, outcome, detail); err != nil {
		return auditFailure(err)
	}
	return nil
}

// fail moves the record to Failed and returns cause for the caller.
func (rr *recordRun) fail(ctx context.Context, cause error) (report.RecordResult, error) {
	detail := cause.Error()
	rr.log.Error("dispute record failed", "state", rr.state, "error", detail)

	if err := rr.o.audit.Record(ctx, rr.transition(domain.StateFailed, detail), audit.OutcomeFailure, detail); err != nil {
		rr.log.Error("failed to audit record failure", "error", err)
	}
	rr.advance(domain.StateFailed, audit.OutcomeFailure)

	rr.result.State = domain.StateFailed
	rr.result.Error = detail
	return rr.result, cause
}

// processRecord drives one record to Audited or Failed. A fatal error is
// returned so the caller can abort the run.
func (o *Orchestrator) processRecord(ctx context.Context, r *run, record domain.DisputeRecord) (report.RecordResult, error) {
	ref := record.ClientReferenceNumber
	rr := &recordRun{
		o:      o,
		run:    r,
		record: record,
		state:  domain.StateDiscovered,
		log:    r.log.WithReference(ref),
		result: report.RecordResult{ClientReference: ref, RowNumber: record.RowNumber},
	}
	rr.log.Info("processing dispute", "row", record.RowNumber, "trigger", record.TriggerMessage)

	// Discovered -> Investigated
	attempt, err := rr.begin(ctx, domain.StateInvestigated, "fetch booking events and logs")
	if err != nil {
		return rr.fail(ctx, err)
	}
	bookings, err := o.validator.FetchBookingEvents(ctx, ref)
	if err != nil {
		return rr.abandon(ctx, attempt, fmt.Errorf("booking validator: %w", err))
	}
	current, _ := domain.CurrentBooking(bookings.Events)
	logs, err := o.retriever.FetchLogs(ctx, ref, current.BookingID)
	if err != nil {
		return rr.abandon(ctx, attempt, fmt.Errorf("log retriever: %w", err))
	}
	rr.result.ExportPath = logs.ExportPath
	if err := rr.complete(ctx, attempt, audit.OutcomeSuccess,
		fmt.Sprintf("events=%d logs=%d truncated=%t transport_failures=%d", len(bookings.Events), len(logs.Entries), logs.Truncated, len(bookings.Failures)+len(logs.Failures))); err != nil {
		return rr.fail(ctx, err)
	}
	rr.advance(domain.StateInvestigated, audit.OutcomeSuccess)

	// Investigated -> Classified
	failures := append(append([]domain.TransportFailure{}, bookings.Failures...), logs.Failures...)
	class := o.classifier.Classify(domain.Evidence{
		ClientReferenceNumber: ref,
		Validator:             bookings.Outcome(),
		Logs:                  logs.Entries,
		TransportFailures:     failures,
	})
	var rebooking *domain.RebookingContext
	if contexts := domain.DetectRebookings(bookings.Events); len(contexts) > 0 {
		rebooking = &contexts[0]
	}
	rr.result.Classification = class
	detail := "classification=" + string(class)
	if rebooking != nil {
		detail += fmt.Sprintf(" rebooking=%s->%s", rebooking.OriginalBookingID, rebooking.RebookingBookingID)
	}
	if err := o.audit.Record(ctx, rr.transition(domain.StateClassified, detail), audit.OutcomeSuccess, detail); err != nil {
		return rr.fail(ctx, auditFailure(err))
	}
	rr.advance(domain.StateClassified, audit.OutcomeSuccess)

	// Classified -> Resolved
	resolution, err := o.composer.Compose(domain.ComposeInput{
		Classification:    class,
		Rebooking:         rebooking,
		CurrentStatus:     record.CurrentStatus,
		CurrentCompletion: record.CurrentCompletion,
		HasLogs:           len(logs.Entries) > 0,
	})
	if err != nil {
		return rr.fail(ctx, err)
	}
	detail = "no action: " + string(resolution.NoAction)
	if !resolution.IsNoAction() {
		detail = fmt.Sprintf("status=%q completion=%q", resolution.Action.NewStatus, resolution.Action.NewCompletion)
	}
	if err := o.audit.Record(ctx, rr.transition(domain.StateResolved, detail), audit.OutcomeSuccess, detail); err != nil {
		return rr.fail(ctx, auditFailure(err))
	}
	rr.advance(domain.StateResolved, audit.OutcomeSuccess)

	if resolution.IsNoAction() {
		rr.result.NoActionReason = resolution.NoAction
		rr.log.Info("dispute needs no update", "classification", class, "reason", resolution.NoAction)
		return rr.finish(ctx, "skipped update: "+string(resolution.NoAction))
	}

	// Resolved -> Updated
	action := *resolution.Action
	action.AttachmentPath = logs.ExportPath
	if err := rr.applyUpdate(ctx, action); err != nil {
		return rr.fail(ctx, err)
	}

	if action.AttachmentPath != "" {
		rr.attach(ctx, action.AttachmentPath)
	}

	return rr.finish(ctx, "update applied")
}

// abandon closes an open attempt as failed, then fails the record.
func (rr *recordRun) abandon(ctx context.Context, attempt *audit.Attempt, cause error) (report.RecordResult, error) {
	if err := rr.complete(ctx, attempt, audit.OutcomeFailure, cause.Error()); err != nil {
		rr.log.Error("failed to complete audit attempt", "error", err)
	}
	return rr.fail(ctx, cause)
}

func (rr *recordRun) applyUpdate(ctx context.Context, action domain.ResolutionAction) error {
	update := ports.SheetUpdate{
		Status:          action.NewStatus,
		Completion:      action.NewCompletion,
		SupplierComment: action.NewSupplierComment,
		Notes:           action.NewNoteText,
	}

	attempt, err := rr.begin(ctx, domain.StateUpdated, fmt.Sprintf("row %d: status=%q completion=%q", rr.record.RowNumber, update.Status, update.Completion))
	if err != nil {
		return err
	}

	err = retry.Do(ctx, rr.o.policy, func(n int, err error) {
		rr.log.ExternalCallFailed("sheet", n, err)
	}, func(ctx context.Context) error {
		return rr.o.sheet.UpdateRow(ctx, rr.record.RowID, update)
	})
	if err != nil {
		cause := fmt.Errorf("sheet update: %w", err)
		if cerr := rr.complete(ctx, attempt, audit.OutcomeFailure, cause.Error()); cerr != nil {
			rr.log.Error("failed to complete audit attempt", "error", cerr)
		}
		return cause
	}

	if err := rr.complete(ctx, attempt, audit.OutcomeSuccess, "row updated"); err != nil {
		return err
	}
	rr.advance(domain.StateUpdated, audit.OutcomeSuccess)
	return nil
}

// attach uploads the export to the updated row. A failed upload is audited but
// leaves the record on its way to Audited, since the row update already happened.
func (rr *recordRun) attach(ctx context.Context, path string) {
	name := filepath.Base(path)
	attempt, err := rr.o.audit.Begin(ctx, rr.transition(domain.StateUpdated, "attach "+name))
	if err != nil {
		rr.log.Error("failed to audit attachment", "file", name, "error", err)
		return
	}

	err = retry.Do(ctx, rr.o.policy, func(n int, err error) {
		rr.log.ExternalCallFailed("sheet", n, err)
	}, func(ctx context.Context) error {
		return rr.o.sheet.AttachFile(ctx, rr.record.RowID, path)
	})

	outcome, detail := audit.OutcomeSuccess, "attached "+name
	if err != nil {
		outcome, detail = audit.OutcomeFailure, fmt.Sprintf("attach %s: %v", name, err)
		rr.log.Warn("failed to attach log export", "file", name, "error", err)
	} else {
		rr.result.Attached = true
	}
	if cerr := attempt.Complete(ctx, outcome, detail); cerr != nil {
		rr.log.Error("failed to complete audit attempt", "error", cerr)
	}
}

func (rr *recordRun) finish(ctx context.Context, detail string) (report.RecordResult, error) {
	if err := rr.o.audit.Record(ctx, rr.transition(domain.StateAudited, detail), audit.OutcomeSuccess, detail); err != nil {
		return rr.fail(ctx, auditFailure(err))
	}
	rr.advance(domain.StateAudited, audit.OutcomeSuccess)
	rr.result.State = domain.StateAudited
	return rr.result, nil
}
