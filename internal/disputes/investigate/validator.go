package investigate

import (
	"context"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/internal/disputes/ports"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/logger"
	"supplier_dispute_backend/platform/retry"
)

// BookingResult is what the profile service told us about a reference.
type BookingResult struct {
	Events   []domain.BookingEvent
	Failures []domain.TransportFailure
}

// Outcome converts the result into classifier input.
func (r BookingResult) Outcome() domain.ValidatorOutcome {
	return domain.ValidatorOutcome{Events: r.Events}
}

// BookingValidator fetches booking events from the profile service.
type BookingValidator struct {
	source ports.BookingSource
	policy retry.Policy
	log    *logger.Logger
}

func NewBookingValidator(source ports.BookingSource, policy retry.Policy, log *logger.Logger) *BookingValidator {
	return &BookingValidator{source: source, policy: policy, log: log}
}

// FetchBookingEvents returns the reference's events in chronological order.
// A reference the service does not know yields an empty result, not an error.
// On failure the returned result still carries every observed transport fault.
func (v *BookingValidator) FetchBookingEvents(ctx context.Context, ref string) (BookingResult, error) {
	failures := newFailureLog(BoundaryProfile, v.log)

	var events []domain.BookingEvent
	err := retry.Do(ctx, v.policy, failures.observe(), func(ctx context.Context) error {
		found, err := v.source.SearchBookings(ctx, ref)
		if err != nil {
			return err
		}
		events = found
		return nil
	})

	if apperr.Is(err, apperr.KindNotFound) {
		v.log.Debug("no bookings for reference", "client_reference", ref)
		return BookingResult{Failures: failures.result(true)}, nil
	}
	if err != nil {
		return BookingResult{Failures: failures.result(false)}, err
	}

	return BookingResult{
		Events:   domain.SortEvents(events),
		Failures: failures.result(true),
	}, nil
}
