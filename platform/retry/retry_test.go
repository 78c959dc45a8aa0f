package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"supplier_dispute_backend/platform/apperr"
)

const fmtExpectedCalls = "expected %d calls, got %d"

func TestDoStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, nil, func(context.Context) error {
		calls++
		if calls < 2 {
			return apperr.Connectivity("dial", errors.New("connection refused"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf(fmtExpectedCalls, 2, calls)
	}
}

func TestDoExhaustsBudgetAndKeepsKind(t *testing.T) {
	calls := 0
	var observed []int
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(attempt int, _ error) {
		observed = append(observed, attempt)
	}, func(context.Context) error {
		calls++
		return apperr.Timeout("read", context.DeadlineExceeded)
	})
	if !apperr.Is(err, apperr.KindTimeout) {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if calls != 3 {
		t.Fatalf(fmtExpectedCalls, 3, calls)
	}
	if len(observed) != 3 || observed[2] != 3 {
		t.Fatalf("expected three observed failures, got %v", observed)
	}
}

func TestDoDoesNotRetryFatalOrPermanentErrors(t *testing.T) {
	cases := []error{
		apperr.Unauthorized("bad token"),
		apperr.Validation("bad row"),
		errors.New("plain"),
	}
	for _, want := range cases {
		calls := 0
		err := Do(context.Background(), Policy{MaxAttempts: 5}, nil, func(context.Context) error {
			calls++
			return want
		})
		if !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
		if calls != 1 {
			t.Fatalf(fmtExpectedCalls, 1, calls)
		}
	}
}

func TestDelayIsQuadraticAndCapped(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
	cases := map[int]time.Duration{
		0: 0,
		1: 100 * time.Millisecond,
		2: 400 * time.Millisecond,
		3: 500 * time.Millisecond,
	}
	for attempt, want := range cases {
		if got := p.Delay(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}
