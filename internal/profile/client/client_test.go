package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/httpkit"
	"supplier_dispute_backend/platform/logger"
)

const searchBody = `{"data":{"bookings":[
	{"booking_id":"B1","client_reference_id":"CR-1","event_type":"original","status":"CANCELLED","occurred_at":"2025-03-01T10:00:00Z"},
	{"booking_id":"B1","client_reference_id":"CR-1","event_type":"cancellation","status":"CANCELLED","occurred_at":"2025-03-01T11:00:00Z"},
	{"booking_id":"B2","client_reference_id":"CR-1","event_type":"rebooked","is_valid":true,"status":"CONFIRMED","occurred_at":"2025-03-01T11:01:00Z"},
	{"booking_id":"B3","event_type":"mystery","occurred_at":"2025-03-01T12:00:00Z"}
]}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "secret", httpkit.NewClientWith("profile", srv.Client(), nil, logger.Discard()), logger.Discard())
}

func TestSearchBookings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bookings/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("client_reference_id"); got != "CR-1" {
			t.Errorf("unexpected reference %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchBody))
	})

	events, err := c.SearchBookings(context.Background(), "CR-1")
	if err != nil {
		t.Fatalf("SearchBookings: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	tests := []struct {
		idx       int
		eventType domain.EventType
		valid     bool
	}{
		{0, domain.EventOriginal, false},
		{1, domain.EventCancellation, true},
		{2, domain.EventRebooking, true},
	}
	for _, tt := range tests {
		got := events[tt.idx]
		if got.EventType != tt.eventType || got.Valid != tt.valid {
			t.Errorf("event %d: got %s valid=%t, want %s valid=%t", tt.idx, got.EventType, got.Valid, tt.eventType, tt.valid)
		}
	}
}

func TestSearchBookingsNotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	events, err := c.SearchBookings(context.Background(), "CR-404")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestSearchBookingsErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   apperr.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, apperr.KindUnauthorized},
		{"unavailable", http.StatusServiceUnavailable, apperr.KindConnectivity},
		{"gateway timeout", http.StatusGatewayTimeout, apperr.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.SearchBookings(context.Background(), "CR-1")
			if got := apperr.GetKind(err); got != tt.kind {
				t.Fatalf("expected %s, got %s (%v)", tt.kind, got, err)
			}
		})
	}
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
