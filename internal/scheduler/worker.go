package scheduler

import (
	"context"
	"errors"
	"fmt"

	"supplier_dispute_backend/internal/disputes/report"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// RunProcessor executes dispute runs. Implemented by disputes.Orchestrator.
type RunProcessor interface {
	ProcessAll(ctx context.Context) (*report.RunReport, error)
	ProcessOne(ctx context.Context, ref string) (*report.RunReport, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor RunProcessor
	lock      *RunLock
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, processor RunProcessor, lock *RunLock, log *logger.Logger) (*Worker, error) {
	opt, err := schedulerRedisOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(processor, lock, log)
	w.server = server
	return w, nil
}

func newWorker(processor RunProcessor, lock *RunLock, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:       mux,
		processor: processor,
		lock:      lock,
		log:       log,
	}

	mux.HandleFunc(TaskRunBatch, w.handleRunBatch)
	mux.HandleFunc(TaskProcessReference, w.handleProcessReference)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// A batch that finds the lock taken is dropped; the next cron tick picks the sheet up again.
func (w *Worker) handleRunBatch(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseRunBatchPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	err = w.locked(ctx, func() error {
		rep, err := w.processor.ProcessAll(ctx)
		w.logReport(rep, "trigger", payload.Trigger)
		return err
	})
	if errors.Is(err, ErrRunInProgress) {
		w.log.Info("skipping batch run, another run holds the lock", "trigger", payload.Trigger)
		return nil
	}
	if err != nil {
		return fmt.Errorf("batch run: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// A reference run that finds the lock taken returns an error so asynq retries it later.
func (w *Worker) handleProcessReference(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProcessReferencePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	err = w.locked(ctx, func() error {
		rep, err := w.processor.ProcessOne(ctx, payload.ClientReference)
		w.logReport(rep, "client_reference", payload.ClientReference)
		return err
	})
	if errors.Is(err, ErrRunInProgress) {
		return err
	}
	if err != nil {
		return fmt.Errorf("reference run %s: %v: %w", payload.ClientReference, err, asynq.SkipRetry)
	}
	return nil
}

func (w *Worker) locked(ctx context.Context, fn func() error) error {
	return withLock(ctx, w.lock, w.log, fn)
}

func (w *Worker) logReport(rep *report.RunReport, args ...any) {
	if rep == nil {
		return
	}
	args = append(args, "run_id", rep.RunID, "records", len(rep.Records), "actions", rep.Actions(), "failed", rep.Failed())
	if rep.HasFailures() {
		w.log.Warn("scheduled dispute run finished with failures", append(args, "abort_reason", rep.AbortReason)...)
		return
	}
	w.log.Info("scheduled dispute run finished", args...)
}
