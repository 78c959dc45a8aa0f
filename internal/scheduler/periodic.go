package scheduler

import (
	"context"
	"fmt"
	"time"

	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues a batch run on DISPUTE_RUN_CRON.
type Periodic struct {
	scheduler *asynq.Scheduler
	cron      string
	queue     string
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	cron := cfg.GetDisputeRunCron()
	if cron == "" {
		return nil, fmt.Errorf("dispute run cron not configured")
	}

	opt, err := schedulerRedisOpt(cfg)
	if err != nil {
		return nil, err
	}

	return &Periodic{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC}),
		cron:      cron,
		queue:     queueName(cfg),
		log:       log,
	}, nil
}

// Run registers the batch task and blocks until ctx is cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	task, err := NewRunBatchTask(RunBatchPayload{Trigger: "cron"})
	if err != nil {
		return err
	}

	entryID, err := p.scheduler.Register(p.cron, task, asynq.Queue(p.queue), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("register batch run on %q: %w", p.cron, err)
	}
	p.log.Info("registered periodic dispute run", "cron", p.cron, "entry_id", entryID)

	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start periodic scheduler: %w", err)
	}

	<-ctx.Done()
	p.scheduler.Shutdown()
	return nil
}
