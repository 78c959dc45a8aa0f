// Package client provides the HTTP client for the customer profile service,
// the system of record for booking events and their validity.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"supplier_dispute_backend/internal/disputes/domain"
	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/httpkit"
	"supplier_dispute_backend/platform/logger"
)

// Client talks to the profile service.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpkit.Client
	log     *logger.Logger
}

// New creates a profile service client.
func New(baseURL, apiKey string, httpClient *httpkit.Client, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		log:     log,
	}
}

// SearchBookings returns every booking event for a client reference.
// A 404 means the service knows no booking and yields an empty slice.
func (c *Client) SearchBookings(ctx context.Context, ref string) ([]domain.BookingEvent, error) {
	params := url.Values{}
	params.Set("client_reference_id", ref)
	reqURL := fmt.Sprintf("%s/bookings/search?%s", c.baseURL, params.Encode())

	req, err := c.newRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var body searchResponse
	if err := c.http.DoJSON(req, &body); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			c.log.Debug("profile service has no bookings", "client_reference", ref)
			return []domain.BookingEvent{}, nil
		}
		return nil, err
	}

	events := make([]domain.BookingEvent, 0, len(body.Data.Bookings))
	for _, b := range body.Data.Bookings {
		event, ok := b.toDomain(ref)
		if !ok {
			c.log.Warn("ignoring booking with unknown event type", "booking_id", b.BookingID, "event_type", b.EventType)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Ping checks the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, c.baseURL+"/health")
	if err != nil {
		return err
	}
	return c.http.DoJSON(req, nil)
}

func (c *Client) newRequest(ctx context.Context, reqURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

type searchResponse struct {
	Data struct {
		Bookings []apiBooking `json:"bookings"`
	} `json:"data"`
}

// apiBooking is the raw booking record returned by the search endpoint.
type apiBooking struct {
	BookingID         string    `json:"booking_id"`
	ClientReferenceID string    `json:"client_reference_id"`
	EventType         string    `json:"event_type"`
	IsValid           *bool     `json:"is_valid"`
	Status            string    `json:"status"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func (b apiBooking) toDomain(ref string) (domain.BookingEvent, bool) {
	eventType, ok := domain.ParseEventType(b.EventType)
	if !ok {
		return domain.BookingEvent{}, false
	}

	clientRef := b.ClientReferenceID
	if clientRef == "" {
		clientRef = ref
	}

	return domain.BookingEvent{
		BookingID:             b.BookingID,
		ClientReferenceNumber: clientRef,
		EventType:             eventType,
		Valid:                 b.valid(eventType),
		Timestamp:             b.OccurredAt.UTC(),
	}, true
}

// valid prefers the explicit flag. Without it, a failed or errored booking is
// invalid, and so is a cancelled one unless the event itself is the cancellation.
func (b apiBooking) valid(eventType domain.EventType) bool {
	if b.IsValid != nil {
		return *b.IsValid
	}
	switch strings.ToUpper(strings.TrimSpace(b.Status)) {
	case "FAILED", "ERROR":
		return false
	case "CANCELLED", "CANCELED":
		return eventType == domain.EventCancellation
	default:
		return true
	}
}
