// Package availability holds the Backend implementations the booking workflow
// talks to: the Availability Service REST client, a direct Postgres adapter,
// and a Redis read-through cache for provider profiles.
package availability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const defaultTimeout = 10 * time.Second

var tracer = otel.Tracer("medspa.internal.availability")

// ErrUnexpectedStatus wraps non-2xx responses that have no domain meaning.
var ErrUnexpectedStatus = errors.New("availability: unexpected status")

// Client is a JSON client for the Availability Service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// NewClient creates a client rooted at baseURL, e.g. https://availability.internal/v1.
func NewClient(baseURL string, logger *logging.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetProvider loads the provider profile and its service list.
func (c *Client) GetProvider(ctx context.Context, id string) (*booking.Provider, error) {
	ctx, span := tracer.Start(ctx, "availability.get_provider")
	defer span.End()
	span.SetAttributes(attribute.String("booking.provider_id", id))

	var out providerPayload
	status, err := c.do(ctx, http.MethodGet, "/providers/"+url.PathEscape(id), nil, "", &out)
	if status == http.StatusNotFound {
		return nil, booking.ErrProviderNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out.toProvider()
}

// GetAvailableSlots returns the raw start times; normalization is the caller's job.
func (c *Client) GetAvailableSlots(ctx context.Context, providerID string, date booking.Date) ([]string, error) {
	ctx, span := tracer.Start(ctx, "availability.get_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.provider_id", providerID),
		attribute.String("booking.date", date.String()),
	)

	q := url.Values{}
	q.Set("date", date.Timestamp().Format(time.RFC3339))
	path := "/providers/" + url.PathEscape(providerID) + "/availability?" + q.Encode()

	var out slotsPayload
	status, err := c.do(ctx, http.MethodGet, path, nil, "", &out)
	if status == http.StatusNotFound {
		return nil, booking.ErrProviderNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out.Slots == nil {
		return []string{}, nil
	}
	return out.Slots, nil
}

// BookAppointment posts the booking. A 409 means the slot was taken in the meantime.
func (c *Client) BookAppointment(ctx context.Context, req booking.BookingRequest) (*booking.BookingReceipt, error) {
	ctx, span := tracer.Start(ctx, "availability.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.provider_id", req.ProviderID),
		attribute.String("booking.service_id", req.ServiceID),
	)

	var out appointmentResponse
	status, err := c.do(ctx, http.MethodPost, "/appointments", appointmentFromRequest(req), req.IdempotencyKey, &out)
	if status == http.StatusConflict {
		return nil, booking.ErrSlotTaken
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("availability: invalid booking response: %w", err)
	}
	return &booking.BookingReceipt{Reference: out.ID, Status: out.Status}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, idempotencyKey string, out any) (int, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("availability: missing base url")
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("availability: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("availability: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("availability: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("availability: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(respBody)
		c.logger.Warn("availability service error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"message", msg,
		)
		return resp.StatusCode, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, msg)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("availability: unmarshal response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func errorMessage(body []byte) string {
	var env errorPayload
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
