package domain

import (
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func TestDetectRebookingsPairsOriginalWithRebooking(t *testing.T) {
	events := []BookingEvent{
		{BookingID: "B-1", EventType: EventOriginal, Timestamp: at(0)},
		{BookingID: "B-1", EventType: EventCancellation, Timestamp: at(10)},
		{BookingID: "B-2", EventType: EventRebooking, Timestamp: at(20)},
	}

	got := DetectRebookings(events)
	if len(got) != 1 {
		t.Fatalf("expected 1 context, got %d", len(got))
	}
	want := RebookingContext{
		OriginalBookingID:     "B-1",
		CancellationTimestamp: at(10),
		RebookingBookingID:    "B-2",
		RebookingTimestamp:    at(20),
	}
	if got[0] != want {
		t.Fatalf("expected %+v, got %+v", want, got[0])
	}
}

func TestDetectRebookingsEarliestRebookingWins(t *testing.T) {
	events := []BookingEvent{
		{BookingID: "B-3", EventType: EventRebooking, Timestamp: at(30)},
		{BookingID: "B-1", EventType: EventCancellation, Timestamp: at(10)},
		{BookingID: "B-2", EventType: EventRebooking, Timestamp: at(20)},
	}

	got := DetectRebookings(events)
	if len(got) != 1 {
		t.Fatalf("expected 1 context, got %d", len(got))
	}
	if got[0].RebookingBookingID != "B-2" {
		t.Fatalf("expected earliest rebooking B-2, got %q", got[0].RebookingBookingID)
	}
	if got[0].OriginalBookingID != "B-1" {
		t.Fatalf("expected cancelled booking B-1 as original, got %q", got[0].OriginalBookingID)
	}
}

func TestDetectRebookingsOriginalOnlyHasNoContext(t *testing.T) {
	got := DetectRebookings([]BookingEvent{{BookingID: "B-1", EventType: EventOriginal, Timestamp: at(0)}})
	if len(got) != 0 {
		t.Fatalf("expected no context, got %+v", got)
	}
}

func TestDetectRebookingsDoesNotReuseRebooking(t *testing.T) {
	events := []BookingEvent{
		{BookingID: "B-1", EventType: EventOriginal, Timestamp: at(0)},
		{BookingID: "B-1", EventType: EventCancellation, Timestamp: at(10)},
		{BookingID: "B-2", EventType: EventRebooking, Timestamp: at(20)},
		{BookingID: "B-2", EventType: EventCancellation, Timestamp: at(25)},
		{BookingID: "B-3", EventType: EventRebooking, Timestamp: at(40)},
	}

	got := DetectRebookings(events)
	if len(got) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(got))
	}
	if got[0].RebookingBookingID != "B-2" || got[1].RebookingBookingID != "B-3" {
		t.Fatalf("expected B-2 then B-3, got %q then %q", got[0].RebookingBookingID, got[1].RebookingBookingID)
	}
	if got[1].OriginalBookingID != "B-1" {
		t.Fatalf("expected preceding original B-1, got %q", got[1].OriginalBookingID)
	}
}

func TestDetectRebookingsRequiresStrictlyLaterRebooking(t *testing.T) {
	events := []BookingEvent{
		{BookingID: "B-2", EventType: EventRebooking, Timestamp: at(10)},
		{BookingID: "B-1", EventType: EventCancellation, Timestamp: at(10)},
	}
	if got := DetectRebookings(events); len(got) != 0 {
		t.Fatalf("expected no context for simultaneous rebooking, got %+v", got)
	}
}

func TestSortEventsIsStableOnTies(t *testing.T) {
	events := []BookingEvent{
		{BookingID: "late", Timestamp: at(5)},
		{BookingID: "first", Timestamp: at(1)},
		{BookingID: "second", Timestamp: at(1)},
	}
	sorted := SortEvents(events)
	order := []string{sorted[0].BookingID, sorted[1].BookingID, sorted[2].BookingID}
	if order[0] != "first" || order[1] != "second" || order[2] != "late" {
		t.Fatalf("unexpected order %v", order)
	}
	if events[0].BookingID != "late" {
		t.Fatalf("expected input to be left untouched")
	}
}

func TestParseEventType(t *testing.T) {
	cases := map[string]EventType{
		"ORIGINAL":  EventOriginal,
		"cancelled": EventCancellation,
		" Rebooking": EventRebooking,
	}
	for raw, want := range cases {
		got, ok := ParseEventType(raw)
		if !ok || got != want {
			t.Errorf("ParseEventType(%q) = %q, %v; expected %q", raw, got, ok, want)
		}
	}
	if _, ok := ParseEventType("refund"); ok {
		t.Errorf("expected unknown event type to be rejected")
	}
}
