// Package disputes drives each discovered dispute through investigation,
// classification, resolution and the sheet update, auditing every step.
package disputes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"supplier_dispute_backend/internal/disputes/audit"
	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/investigate"
	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/internal/disputes/report"
	"supplier_dispute_backend/internal/disputes/rules"
	"supplier_dispute_backend/internal/disputes/scanner"
	"supplier_dispute_backend/internal/events"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/retry"
	"supplier_dispute_backend/platform/validator"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunReport is the summary returned by every run.
type RunReport = report.RunReport

const abortedBeforeDispatch = "run aborted before dispatch"

// Deps are the collaborators of an Orchestrator. Exports and Bus are optional.
type Deps struct {
	Sheet     ports.Sheet
	Bookings  ports.BookingSource
	Logs      ports.LogSource
	Exports   ports.ArtifactWriter
	Audit     *audit.Recorder
	Rules     *rules.Rules
	Validator *validator.Validator
	Bus       events.Bus
	Log       *logger.Logger
}

// Options tune a run.
type Options struct {
	Concurrency int
	RowCap      int
	Retry       retry.Policy
}

// Orchestrator owns the per-record state machine.
type Orchestrator struct {
	sheet      ports.Sheet
	bookings   ports.BookingSource
	logs       ports.LogSource
	scanner    *scanner.Scanner
	validator  *investigate.BookingValidator
	retriever  *investigate.LogRetriever
	classifier *domain.Classifier
	composer   *domain.Composer
	audit      *audit.Recorder
	bus        events.Bus
	log        *logger.Logger
	policy     retry.Policy
	limit      int
	now        func() time.Time
}

// New builds an orchestrator from deps and the rules document.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Sheet == nil || deps.Bookings == nil || deps.Logs == nil || deps.Audit == nil || deps.Rules == nil {
		return nil, errors.New("orchestrator: sheet, bookings, logs, audit and rules are required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}

	scan, err := scanner.New(deps.Rules.Triggers, deps.Validator, log)
	if err != nil {
		return nil, fmt.Errorf("build scanner: %w", err)
	}
	markers, err := deps.Rules.DomainMarkers()
	if err != nil {
		return nil, err
	}
	table, err := deps.Rules.ResolutionTable()
	if err != nil {
		return nil, err
	}
	composer, err := domain.NewComposer(table)
	if err != nil {
		return nil, err
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = retry.DefaultPolicy
	}

	return &Orchestrator{
		sheet:      deps.Sheet,
		bookings:   deps.Bookings,
		logs:       deps.Logs,
		scanner:    scan,
		validator:  investigate.NewBookingValidator(deps.Bookings, opts.Retry, log),
		retriever:  investigate.NewLogRetriever(deps.Logs, deps.Exports, opts.RowCap, opts.Retry, log),
		classifier: domain.NewClassifier(markers),
		composer:   composer,
		audit:      deps.Audit,
		bus:        deps.Bus,
		log:        log,
		policy:     opts.Retry,
		limit:      opts.Concurrency,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// run is the state shared by the records of one invocation.
type run struct {
	id      string
	report  *RunReport
	log     *logger.Logger
	aborted atomic.Bool
}

func (o *Orchestrator) newRun(mode report.Mode, ref string) *run {
	id := uuid.NewString()
	r := &run{
		id:     id,
		report: report.New(id, mode, o.now()),
		log:    o.log.WithRun(id),
	}
	r.report.Reference = ref
	return r
}

// ProcessAll discovers every eligible dispute in the sheet and drives each one
// to a terminal state. The returned error is non-nil only when the run could
// not start or was aborted by a fatal error; per-record failures are in the report.
func (o *Orchestrator) ProcessAll(ctx context.Context) (*RunReport, error) {
	r := o.newRun(report.ModeBatch, "")
	r.log.Info("dispute run started", "mode", report.ModeBatch)

	rows, err := o.listRows(ctx, r)
	if err != nil {
		return o.finish(ctx, r, err)
	}

	scan := o.scanner.Scan(rows)
	o.recordScan(r, scan)
	r.log.Info("dispute rows scanned", "rows", scan.RowsScanned, "matched", scan.Matched, "records", len(scan.Records), "skipped", len(scan.Skipped))

	return o.finish(ctx, r, o.dispatch(ctx, r, scan.Records))
}

// ProcessOne drives the dispute for a single client reference through the same
// state machine. The reference must be on a row whose notes carry a trigger.
func (o *Orchestrator) ProcessOne(ctx context.Context, ref string) (*RunReport, error) {
	ref = strings.TrimSpace(ref)
	r := o.newRun(report.ModeSingle, ref)
	r.log.Info("dispute run started", "mode", report.ModeSingle, "client_reference", ref)

	rows, err := o.listRows(ctx, r)
	if err != nil {
		return o.finish(ctx, r, err)
	}

	record, ok := o.scanner.Find(rows, ref)
	if !ok {
		return o.finish(ctx, r, apperr.NotFound("no dispute row for client reference "+ref))
	}
	r.report.RowsScanned = len(rows)
	r.report.Matched = 1

	return o.finish(ctx, r, o.dispatch(ctx, r, []domain.DisputeRecord{record}))
}

func (o *Orchestrator) listRows(ctx context.Context, r *run) ([]ports.SheetRow, error) {
	var rows []ports.SheetRow
	err := retry.Do(ctx, o.policy, func(attempt int, err error) {
		r.log.ExternalCallFailed("sheet", attempt, err)
	}, func(ctx context.Context) error {
		got, err := o.sheet.ListRows(ctx)
		if err != nil {
			return err
		}
		rows = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read tracking sheet: %w", err)
	}
	return rows, nil
}

func (o *Orchestrator) recordScan(r *run, scan scanner.Result) {
	r.report.RowsScanned = scan.RowsScanned
	r.report.Matched = scan.Matched
	r.report.Duplicates = scan.Duplicates
	for _, skip := range scan.Skipped {
		r.report.Skipped = append(r.report.Skipped, report.SkippedRow{RowNumber: skip.RowNumber, Reason: skip.Reason})
	}
}

// dispatch runs records on a bounded pool. Once the run is aborted or ctx is
// cancelled no new record starts; records already started finish on a context
// that ignores the cancellation.
func (o *Orchestrator) dispatch(ctx context.Context, r *run, records []domain.DisputeRecord) error {
	workCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(o.limit)

	for i, record := range records {
		if err := ctx.Err(); err != nil && !r.aborted.Load() {
			o.abort(workCtx, r, fmt.Errorf("run cancelled: %w", err))
		}
		if r.aborted.Load() {
			o.failUndispatched(workCtx, r, records[i:])
			break
		}

		g.Go(func() error {
			if r.aborted.Load() {
				o.failUndispatched(workCtx, r, []domain.DisputeRecord{record})
				return nil
			}
			res, err := o.processRecord(workCtx, r, record)
			r.report.Add(res)
			if isFatal(err) {
				o.abort(workCtx, r, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if r.aborted.Load() {
		return errors.New(r.report.AbortReason)
	}
	return nil
}

func (o *Orchestrator) abort(ctx context.Context, r *run, cause error) {
	if !r.aborted.CompareAndSwap(false, true) {
		return
	}
	reason := cause.Error()
	r.report.Abort(reason)
	r.log.Error("dispute run aborted", "reason", reason)

	if err := o.audit.Record(ctx, audit.Transition{
		RunID:     r.id,
		RecordKey: audit.RunRecordKey,
		To:        domain.StateFailed,
		Detail:    "run aborted: " + reason,
	}, audit.OutcomeFailure, reason); err != nil {
		r.log.Error("failed to audit run abort", "error", err)
	}

	if o.bus != nil {
		o.bus.Publish(ctx, events.RunAborted{BaseEvent: events.NewBaseEvent(), RunID: r.id, Reason: reason})
	}
}

func (o *Orchestrator) failUndispatched(ctx context.Context, r *run, records []domain.DisputeRecord) {
	for _, record := range records {
		ref := record.ClientReferenceNumber
		if err := o.audit.Record(ctx, audit.Transition{
			RunID:     r.id,
			RecordKey: ref,
			From:      domain.StateDiscovered,
			To:        domain.StateFailed,
			Detail:    abortedBeforeDispatch,
		}, audit.OutcomeFailure, abortedBeforeDispatch); err != nil {
			r.log.Error("failed to audit undispatched record", "client_reference", ref, "error", err)
		}
		r.report.Add(report.RecordResult{
			ClientReference: ref,
			RowNumber:       record.RowNumber,
			State:           domain.StateFailed,
			Error:           abortedBeforeDispatch,
		})
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run, runErr error) (*RunReport, error) {
	if runErr != nil && !r.aborted.Load() {
		o.abort(context.WithoutCancel(ctx), r, runErr)
	}
	r.report.Finish(o.now())

	r.log.Info("dispute run finished",
		"records", len(r.report.Records),
		"failed", r.report.Failed(),
		"actions", r.report.Actions(),
		"aborted", r.report.Aborted,
		"duration", r.report.Duration,
	)

	if o.bus != nil {
		o.bus.Publish(context.WithoutCancel(ctx), events.RunCompleted{BaseEvent: events.NewBaseEvent(), Report: r.report})
	}
	return r.report, runErr
}
