package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supplier_dispute_backend/internal/disputes"
	"supplier_dispute_backend/internal/email"
	"supplier_dispute_backend/internal/events"
	"supplier_dispute_backend/internal/notification"
	"supplier_dispute_backend/internal/scheduler"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting dispute scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewInMemoryBus(log)
	notification.New(email.NewSender(cfg), cfg, log).RegisterHandlers(eventBus)

	var module *disputes.Module
	if err := withRetry(ctx, log, "dispute module", 5, 2*time.Second, func() error {
		m, err := disputes.NewModule(ctx, cfg, eventBus, validator.New(), log)
		if err != nil {
			return err
		}
		module = m
		return nil
	}); err != nil {
		log.Error("failed to initialize dispute module", "error", err)
		panic("failed to initialize dispute module: " + err.Error())
	}
	defer func() { _ = module.Close() }()

	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	lock := scheduler.NewRunLock(redisClient, "", cfg.GetRunLockTTL())

	if cfg.GetDisputeRunCron() != "" {
		periodic, err := scheduler.NewPeriodic(cfg, log)
		if err != nil {
			log.Error("failed to initialize periodic runs", "error", err)
			panic("failed to initialize periodic runs: " + err.Error())
		}
		go func() {
			if err := periodic.Run(ctx); err != nil {
				log.Error("periodic runs stopped", "error", err)
			}
		}()
	} else {
		log.Info("DISPUTE_RUN_CRON not set, only queued runs will be processed")
	}

	worker, err := scheduler.NewWorker(cfg, module.Orchestrator(), lock, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
