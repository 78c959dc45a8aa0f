// Package investigate wraps the profile service and the log warehouse with
// bounded retries, and records every transport fault it sees along the way so
// the classifier can use them as evidence.
package investigate

import (
	"sync"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/retry"
)

const (
	BoundaryProfile   = "profile"
	BoundaryWarehouse = "warehouse"
)

// failureLog collects transport failures for one boundary call.
type failureLog struct {
	mu       sync.Mutex
	boundary string
	log      *logger.Logger
	failures []domain.TransportFailure
}

func newFailureLog(boundary string, log *logger.Logger) *failureLog {
	return &failureLog{boundary: boundary, log: log}
}

func (f *failureLog) observe() retry.FailureFunc {
	return func(attempt int, err error) {
		f.log.ExternalCallFailed(f.boundary, attempt, err)

		kind, ok := FailureKindOf(err)
		if !ok {
			return
		}
		f.mu.Lock()
		f.failures = append(f.failures, domain.TransportFailure{
			Boundary: f.boundary,
			Kind:     kind,
			Attempt:  attempt,
			Message:  err.Error(),
		})
		f.mu.Unlock()
	}
}

// result returns the collected failures, marking them recovered when the call
// eventually succeeded.
func (f *failureLog) result(recovered bool) []domain.TransportFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TransportFailure, len(f.failures))
	for i, tf := range f.failures {
		tf.Recovered = recovered
		out[i] = tf
	}
	return out
}

// FailureKindOf maps a transient error to a transport failure kind.
func FailureKindOf(err error) (domain.FailureKind, bool) {
	switch apperr.GetKind(err) {
	case apperr.KindTimeout:
		return domain.FailureTimeout, true
	case apperr.KindConnectivity:
		return domain.FailureConnection, true
	default:
		return "", false
	}
}
