package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supplier_dispute_backend/internal/disputes/report"
	"supplier_dispute_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("a dispute run is already in progress")

const defaultRunLockKey = "disputes:run-lock"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock keeps two runs from mutating the sheet at the same time.
// The TTL bounds how long a crashed holder can block later runs.
type RunLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRunLock(client redis.Cmdable, key string, ttl time.Duration) *RunLock {
	if key == "" {
		key = defaultRunLockKey
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RunLock{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock and returns the token needed to release it.
func (l *RunLock) Acquire(ctx context.Context) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return "", ErrRunInProgress
	}
	return token, nil
}

// Release drops the lock if token still owns it.
func (l *RunLock) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("release run lock: token no longer owns %s", l.key)
	}
	return nil
}

// withLock runs fn while holding lock. A nil lock runs fn unguarded.
func withLock(ctx context.Context, lock *RunLock, log *logger.Logger, fn func() error) error {
	if lock == nil {
		return fn()
	}

	token, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx), token); err != nil {
			log.Warn("failed to release run lock", "error", err)
		}
	}()

	return fn()
}

// LockedProcessor takes the run lock around every run, so a run started
// outside the worker cannot overlap a scheduled one.
type LockedProcessor struct {
	processor RunProcessor
	lock      *RunLock
	log       *logger.Logger
}

func NewLockedProcessor(processor RunProcessor, lock *RunLock, log *logger.Logger) *LockedProcessor {
	return &LockedProcessor{processor: processor, lock: lock, log: log}
}

func (p *LockedProcessor) ProcessAll(ctx context.Context) (*report.RunReport, error) {
	var rep *report.RunReport
	err := withLock(ctx, p.lock, p.log, func() error {
		var err error
		rep, err = p.processor.ProcessAll(ctx)
		return err
	})
	return rep, err
}

func (p *LockedProcessor) ProcessOne(ctx context.Context, ref string) (*report.RunReport, error) {
	var rep *report.RunReport
	err := withLock(ctx, p.lock, p.log, func() error {
		var err error
		rep, err = p.processor.ProcessOne(ctx, ref)
		return err
	})
	return rep, err
}
