package domain

import "testing"

const fmtExpectedClass = "expected %s, got %s"

func testMarkers() Markers {
	return Markers{
		TransportCodes:    map[string]FailureKind{"CONNECTION_ERROR": FailureConnection, "TIMEOUT_ERROR": FailureTimeout},
		FaultCodes:        []string{"PROVIDER_ERROR", "SUPPLIER_ERROR"},
		FaultPhrases:      []string{"provider error", "supplier error"},
		PendingCodes:      []string{"PENDING", "UNCONFIRMED", "SUPPLIER_CONFIRMATION_ERROR"},
		PendingPhrases:    []string{"not confirmed"},
		ConfirmationCodes: []string{"CONFIRMED", "BOOKED"},
	}
}

func validOutcome() ValidatorOutcome {
	return ValidatorOutcome{Events: []BookingEvent{{BookingID: "B-1", EventType: EventOriginal, Valid: true, Timestamp: at(0)}}}
}

func invalidOutcome() ValidatorOutcome {
	return ValidatorOutcome{Events: []BookingEvent{{BookingID: "B-1", EventType: EventOriginal, Valid: false, Timestamp: at(0)}}}
}

func TestClassifyPrecedence(t *testing.T) {
	classifier := NewClassifier(testMarkers())
	confirmed := LogEntry{ErrorCode: "CONFIRMED", ClientReference: "CR-1"}

	cases := []struct {
		name string
		ev   Evidence
		want Classification
	}{
		{
			name: "transport failure beats provider marker",
			ev: Evidence{
				Validator:         validOutcome(),
				Logs:              []LogEntry{{ErrorCode: "PROVIDER_ERROR"}},
				TransportFailures: []TransportFailure{{Boundary: "profile", Kind: FailureConnection}},
			},
			want: ClassConnectionError,
		},
		{
			name: "timeout kind",
			ev:   Evidence{TransportFailures: []TransportFailure{{Boundary: "warehouse", Kind: FailureTimeout}}},
			want: ClassTimeoutError,
		},
		{
			name: "supplier call timeout code in logs",
			ev:   Evidence{Validator: validOutcome(), Logs: []LogEntry{{ErrorCode: "timeout_error"}}},
			want: ClassTimeoutError,
		},
		{
			name: "invalid booking beats provider marker",
			ev:   Evidence{Validator: invalidOutcome(), Logs: []LogEntry{{ErrorCode: "PROVIDER_ERROR"}}},
			want: ClassBookingInvalid,
		},
		{
			name: "provider fault code",
			ev:   Evidence{Validator: validOutcome(), Logs: []LogEntry{confirmed, {ErrorCode: "supplier_error"}}},
			want: ClassProviderError,
		},
		{
			name: "provider fault phrase",
			ev:   Evidence{Validator: validOutcome(), Logs: []LogEntry{{Message: "Upstream Provider Error on book"}}},
			want: ClassProviderError,
		},
		{
			name: "pending response",
			ev:   Evidence{Validator: validOutcome(), Logs: []LogEntry{{ErrorCode: "PENDING"}}},
			want: ClassSupplierConfirmationError,
		},
		{
			name: "logs without confirmation",
			ev:   Evidence{Validator: validOutcome(), Logs: []LogEntry{{ErrorCode: "REQUESTED"}}},
			want: ClassBookingFailed,
		},
		{
			name: "no bookings and no logs",
			ev:   Evidence{},
			want: ClassBookingFailed,
		},
		{
			name: "mismatched client reference",
			ev: Evidence{
				ClientReferenceNumber: "CR-1",
				Validator:             validOutcome(),
				Logs:                  []LogEntry{confirmed, {ErrorCode: "CONFIRMED", ClientReference: "CR-2"}},
			},
			want: ClassValidationError,
		},
		{
			name: "confirmed and consistent",
			ev:   Evidence{ClientReferenceNumber: "cr-1", Validator: validOutcome(), Logs: []LogEntry{confirmed}},
			want: ClassUnknown,
		},
		{
			name: "valid booking without logs",
			ev:   Evidence{ClientReferenceNumber: "CR-1", Validator: validOutcome()},
			want: ClassBookingFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifier.Classify(tc.ev); got != tc.want {
				t.Fatalf(fmtExpectedClass, tc.want, got)
			}
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	classifier := NewClassifier(testMarkers())
	known := make(map[Classification]bool)
	for _, c := range AllClassifications() {
		known[c] = true
	}

	transports := [][]TransportFailure{
		nil,
		{{Kind: FailureConnection}},
		{{Kind: FailureTimeout}},
	}
	validators := []ValidatorOutcome{{}, validOutcome(), invalidOutcome()}
	logSets := [][]LogEntry{
		nil,
		{{ErrorCode: "CONFIRMED", ClientReference: "CR-1"}},
		{{ErrorCode: "PROVIDER_ERROR"}},
		{{ErrorCode: "PENDING"}},
		{{ErrorCode: "CONFIRMED", ClientReference: "CR-9"}},
		{{ErrorCode: "CONNECTION_ERROR"}},
		{{ErrorCode: ""}},
	}

	for _, tf := range transports {
		for _, v := range validators {
			for _, logs := range logSets {
				got := classifier.Classify(Evidence{ClientReferenceNumber: "CR-1", Validator: v, Logs: logs, TransportFailures: tf})
				if !known[got] {
					t.Fatalf("unexpected classification %q", got)
				}
			}
		}
	}
}

func TestValidityUsesCurrentBooking(t *testing.T) {
	outcome := ValidatorOutcome{Events: []BookingEvent{
		{BookingID: "B-1", EventType: EventOriginal, Valid: false, Timestamp: at(0)},
		{BookingID: "B-1", EventType: EventCancellation, Valid: false, Timestamp: at(5)},
		{BookingID: "B-2", EventType: EventRebooking, Valid: true, Timestamp: at(10)},
	}}
	if got := outcome.Validity(); got != ValidityValid {
		t.Fatalf("expected valid rebooking to decide validity, got %d", got)
	}
	if (ValidatorOutcome{}).Validity() != ValidityUnknown {
		t.Fatalf("expected unknown validity without bookings")
	}
}

func TestParseClassification(t *testing.T) {
	if c, ok := ParseClassification(" provider_error "); !ok || c != ClassProviderError {
		t.Fatalf("expected PROVIDER_ERROR, got %q %v", c, ok)
	}
	if _, ok := ParseClassification("NOPE"); ok {
		t.Fatalf("expected unknown name to be rejected")
	}
}
