package domain

import (
	"slices"
	"strings"
	"time"
)

// EventType is the kind of booking fact reported by the profile service.
type EventType string

const (
	EventOriginal     EventType = "original"
	EventCancellation EventType = "cancellation"
	EventRebooking    EventType = "rebooking"
)

// ParseEventType accepts the service's spelling variants.
func ParseEventType(raw string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "original", "booking", "booked", "created":
		return EventOriginal, true
	case "cancellation", "cancelled", "canceled", "cancel":
		return EventCancellation, true
	case "rebooking", "rebooked", "rebook":
		return EventRebooking, true
	default:
		return "", false
	}
}

// BookingEvent is a timestamped fact about one booking for a client reference.
type BookingEvent struct {
	BookingID             string
	ClientReferenceNumber string
	EventType             EventType
	Valid                 bool
	Timestamp             time.Time
}

// RebookingContext pairs a cancelled booking with the booking that replaced it.
type RebookingContext struct {
	OriginalBookingID     string
	CancellationTimestamp time.Time
	RebookingBookingID    string
	RebookingTimestamp    time.Time
}

// SortEvents returns a copy ordered by timestamp, keeping input order on ties.
func SortEvents(events []BookingEvent) []BookingEvent {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b BookingEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return sorted
}

// DetectRebookings pairs every cancellation with the earliest unused rebooking
// strictly after it. The original side of the pair is the latest original
// booking before the cancellation, or the cancelled booking itself when the
// service reported no original event.
func DetectRebookings(events []BookingEvent) []RebookingContext {
	sorted := SortEvents(events)
	used := make(map[int]bool)

	var contexts []RebookingContext
	for i, ev := range sorted {
		if ev.EventType != EventCancellation {
			continue
		}

		match := -1
		for j, candidate := range sorted {
			if candidate.EventType != EventRebooking || used[j] {
				continue
			}
			if candidate.Timestamp.After(ev.Timestamp) {
				match = j
				break
			}
		}
		if match < 0 {
			continue
		}
		used[match] = true

		originalID := ev.BookingID
		for k := i - 1; k >= 0; k-- {
			if sorted[k].EventType == EventOriginal {
				originalID = sorted[k].BookingID
				break
			}
		}

		contexts = append(contexts, RebookingContext{
			OriginalBookingID:     originalID,
			CancellationTimestamp: ev.Timestamp,
			RebookingBookingID:    sorted[match].BookingID,
			RebookingTimestamp:    sorted[match].Timestamp,
		})
	}

	return contexts
}

// CurrentBooking returns the latest non-cancellation event, falling back to the latest event.
func CurrentBooking(events []BookingEvent) (BookingEvent, bool) {
	if len(events) == 0 {
		return BookingEvent{}, false
	}
	sorted := SortEvents(events)
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].EventType != EventCancellation {
			return sorted[i], true
		}
	}
	return sorted[len(sorted)-1], true
}
