// Package httpkit provides outbound HTTP infrastructure shared by external clients.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"supplier_dispute_backend/platform/apperr"
	"supplier_dispute_backend/platform/config"
	"supplier_dispute_backend/platform/logger"

	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// Client is a rate-limited HTTP client that reports failures as apperr kinds.
type Client struct {
	boundary   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a client for the named boundary using shared outbound settings.
func NewClient(boundary string, cfg config.HTTPClientConfig, log *logger.Logger) *Client {
	timeout := cfg.GetExternalTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewClientWith(boundary, &http.Client{Timeout: timeout}, rateLimiter(cfg.GetExternalRateLimit()), log)
}

// NewClientWith creates a client from explicit parts. A nil limiter disables throttling.
func NewClientWith(boundary string, httpClient *http.Client, limiter *rate.Limiter, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		boundary:   boundary,
		httpClient: httpClient,
		limiter:    limiter,
		log:        log,
	}
}

func rateLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Boundary returns the name used in errors and logs.
func (c *Client) Boundary() string {
	return c.boundary
}

// Do waits for the rate limiter and executes req.
// Transport failures come back as connectivity or timeout errors.
// Any non-2xx status is closed and returned as a typed error.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	op := c.boundary + " " + req.Method + " " + req.URL.Path

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, ClassifyTransportError(op, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("outbound request failed", "boundary", c.boundary, "error", err)
		return nil, ClassifyTransportError(op, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	return nil, StatusError(op, resp)
}

// DoJSON executes req and decodes a successful JSON body into out.
func (c *Client) DoJSON(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindValidation, "decode response", err).WithOp(c.boundary)
	}
	return nil
}

// ClassifyTransportError maps a failed round trip onto the connectivity taxonomy.
func ClassifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("request timed out", err).WithOp(op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Timeout("request timed out", err).WithOp(op)
	}
	return apperr.Connectivity("request failed", err).WithOp(op)
}

// StatusError maps an unsuccessful HTTP status onto an apperr kind.
func StatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("status %d", resp.StatusCode)
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		msg = msg + ": " + snippet
	}

	var kind apperr.Kind
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		kind = apperr.KindUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		kind = apperr.KindNotFound
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusGatewayTimeout:
		kind = apperr.KindTimeout
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		kind = apperr.KindConnectivity
	default:
		kind = apperr.KindValidation
	}

	return apperr.New(kind, msg).WithOp(op).WithDetails(map[string]int{"status": resp.StatusCode})
}
