// Package calcom implements the scheduling gateway against the Cal.com API.
// The catalog and slot queries use the v1 endpoints with apiKey query auth;
// booking creation, cancellation, and listing use the v2 endpoints with
// Bearer auth and a pinned cal-api-version header.
package calcom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

const (
	defaultV1BaseURL  = "https://api.cal.com/v1"
	defaultV2BaseURL  = "https://api.cal.com/v2"
	defaultAPIVersion = "2024-08-13"
	defaultTimeout    = 15 * time.Second

	// attendeeName is sent on every booking; the voice flow never collects
	// a name, phone plus verified email identify the attendee.
	attendeeName = "Guest"
)

// Config holds the account-level settings for the Cal.com client.
type Config struct {
	APIKey       string
	APIVersion   string
	V1BaseURL    string
	V2BaseURL    string
	Username     string
	AttendeeZone string // IANA zone sent with bookings, e.g. "Asia/Kolkata"
	DialCode     string // for attendee phone matching
}

// Client is a Cal.com API client implementing scheduling.Gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client; used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithDryRun makes CreateBooking and CancelBooking log and fake success
// without calling Cal.com.
func WithDryRun(dryRun bool) Option {
	return func(c *Client) {
		c.dryRun = dryRun
	}
}

// NewClient creates a Cal.com client.
func NewClient(cfg Config, logger *logging.Logger, opts ...Option) *Client {
	if cfg.V1BaseURL == "" {
		cfg.V1BaseURL = defaultV1BaseURL
	}
	if cfg.V2BaseURL == "" {
		cfg.V2BaseURL = defaultV2BaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type v1EventType struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Slug   string `json:"slug"`
	Length int    `json:"length"`
}

// ListServices fetches the event-type catalog.
func (c *Client) ListServices(ctx context.Context) ([]scheduling.Service, error) {
	endpoint := fmt.Sprintf("%s/event-types?apiKey=%s", c.cfg.V1BaseURL, url.QueryEscape(c.cfg.APIKey))

	var body struct {
		EventTypes []v1EventType `json:"event_types"`
	}
	if err := c.getJSON(ctx, "list services", endpoint, false, &body); err != nil {
		return nil, err
	}

	services := make([]scheduling.Service, 0, len(body.EventTypes))
	for _, et := range body.EventTypes {
		duration := et.Length
		if duration == 0 {
			duration = 30
		}
		services = append(services, scheduling.Service{
			ID:              et.ID,
			Title:           et.Title,
			Slug:            et.Slug,
			DurationMinutes: duration,
		})
	}
	c.logger.Info("fetched event types", "count", len(services))
	return services, nil
}

// ListSlots fetches open slots for a service inside a UTC window.
func (c *Client) ListSlots(ctx context.Context, serviceID int, from, to time.Time) ([]scheduling.Slot, error) {
	q := url.Values{}
	q.Set("apiKey", c.cfg.APIKey)
	q.Set("eventTypeId", fmt.Sprintf("%d", serviceID))
	q.Set("startTime", from.UTC().Format("2006-01-02T15:04:05.000Z"))
	q.Set("endTime", to.UTC().Format("2006-01-02T15:04:05.000Z"))
	endpoint := fmt.Sprintf("%s/slots?%s", c.cfg.V1BaseURL, q.Encode())

	// The v1 slots payload maps each date to its slot list.
	var body struct {
		Slots map[string][]struct {
			Time string `json:"time"`
		} `json:"slots"`
	}
	if err := c.getJSON(ctx, "list slots", endpoint, false, &body); err != nil {
		return nil, err
	}

	var slots []scheduling.Slot
	for _, daySlots := range body.Slots {
		for _, s := range daySlots {
			t, err := time.Parse(time.RFC3339, s.Time)
			if err != nil {
				c.logger.Warn("skipping unparseable slot", "raw", s.Time)
				continue
			}
			slots = append(slots, scheduling.Slot{Start: t.UTC()})
		}
	}
	return slots, nil
}

type v2Attendee struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	TimeZone    string `json:"timeZone"`
}

type v2BookingRequest struct {
	Start         string            `json:"start"`
	EventTypeSlug string            `json:"eventTypeSlug"`
	Username      string            `json:"username"`
	Attendee      v2Attendee        `json:"attendee"`
	Metadata      map[string]string `json:"metadata"`
}

// CreateBooking books a slot via the v2 bookings endpoint.
func (c *Client) CreateBooking(ctx context.Context, req scheduling.CreateBookingRequest) (*scheduling.BookingConfirmation, error) {
	payload := v2BookingRequest{
		Start:         req.Start.UTC().Format("2006-01-02T15:04:05.000Z"),
		EventTypeSlug: req.ServiceSlug,
		Username:      c.cfg.Username,
		Attendee: v2Attendee{
			Name:        attendeeName,
			Email:       req.AttendeeEmail,
			PhoneNumber: req.AttendeePhone,
			TimeZone:    c.cfg.AttendeeZone,
		},
		Metadata: map[string]string{"title": req.ServiceTitle},
	}

	if c.dryRun {
		c.logger.Info("dry run: would create booking",
			"slug", req.ServiceSlug, "start", payload.Start, "phone", req.AttendeePhone)
		return &scheduling.BookingConfirmation{UID: "dry-run"}, nil
	}

	var body struct {
		Data struct {
			UID string `json:"uid"`
		} `json:"data"`
		UID string `json:"uid"`
	}
	endpoint := c.cfg.V2BaseURL + "/bookings"
	if err := c.postJSON(ctx, "create booking", endpoint, payload, &body); err != nil {
		return nil, err
	}

	uid := body.Data.UID
	if uid == "" {
		uid = body.UID
	}
	c.logger.Info("booking created", "uid", uid, "slug", req.ServiceSlug, "start", payload.Start)
	return &scheduling.BookingConfirmation{UID: uid}, nil
}

// CancelBooking cancels a booking by UID.
func (c *Client) CancelBooking(ctx context.Context, uid, reason string) error {
	if c.dryRun {
		c.logger.Info("dry run: would cancel booking", "uid", uid, "reason", reason)
		return nil
	}
	endpoint := fmt.Sprintf("%s/bookings/%s/cancel", c.cfg.V2BaseURL, url.PathEscape(uid))
	payload := map[string]string{"cancellationReason": reason}
	if err := c.postJSON(ctx, "cancel booking", endpoint, payload, &struct{}{}); err != nil {
		return err
	}
	c.logger.Info("booking cancelled", "uid", uid)
	return nil
}

type v2Booking struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	Start     string `json:"start"`
	Attendees []struct {
		PhoneNumber string `json:"phoneNumber"`
	} `json:"attendees"`
	BookingFieldsResponses struct {
		AttendeePhoneNumber string `json:"attendeePhoneNumber"`
	} `json:"bookingFieldsResponses"`
	Metadata struct {
		GuestPhone string `json:"guest_phone"`
	} `json:"metadata"`
}

// attendeePhone extracts the attendee phone in preference order: attendee
// record, booking field response, metadata fallback.
func (b *v2Booking) attendeePhone() string {
	for _, a := range b.Attendees {
		if a.PhoneNumber != "" {
			return a.PhoneNumber
		}
	}
	if b.BookingFieldsResponses.AttendeePhoneNumber != "" {
		return b.BookingFieldsResponses.AttendeePhoneNumber
	}
	return b.Metadata.GuestPhone
}

// ListUpcomingBookings returns upcoming bookings whose attendee phone
// normalizes to the given number.
func (c *Client) ListUpcomingBookings(ctx context.Context, phone string) ([]scheduling.Booking, error) {
	target := scheduling.NormalizePhone(phone, c.cfg.DialCode)
	endpoint := c.cfg.V2BaseURL + "/bookings?status=upcoming"

	var body struct {
		Data []v2Booking `json:"data"`
	}
	if err := c.getJSON(ctx, "list bookings", endpoint, true, &body); err != nil {
		return nil, err
	}

	var matched []scheduling.Booking
	for _, b := range body.Data {
		bp := b.attendeePhone()
		if bp == "" || scheduling.NormalizePhone(bp, c.cfg.DialCode) != target {
			continue
		}
		start, err := time.Parse(time.RFC3339, b.Start)
		if err != nil {
			c.logger.Warn("skipping booking with unparseable start", "uid", b.UID, "raw", b.Start)
			continue
		}
		title := b.Title
		if title == "" {
			title = "Appointment"
		}
		matched = append(matched, scheduling.Booking{
			UID:           b.UID,
			Title:         title,
			Start:         start.UTC(),
			AttendeePhone: bp,
		})
	}
	c.logger.Info("matched upcoming bookings", "phone", target, "count", len(matched))
	return matched, nil
}

// getJSON performs a GET and decodes the response. bearer selects v2 auth.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, bearer bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &scheduling.GatewayError{Op: op, Err: err}
	}
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("cal-api-version", c.cfg.APIVersion)
	return c.do(op, req, out)
}

// postJSON performs a v2 POST with Bearer auth and decodes the response.
func (c *Client) postJSON(ctx context.Context, op, endpoint string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &scheduling.GatewayError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return &scheduling.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("cal-api-version", c.cfg.APIVersion)
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &scheduling.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &scheduling.GatewayError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("cal.com request failed", "op", op, "status", resp.StatusCode, "body", string(raw))
		return &scheduling.GatewayError{Op: op, StatusCode: resp.StatusCode}
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &scheduling.GatewayError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
