package calcom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		APIKey:       "secret-key",
		V1BaseURL:    srv.URL,
		V2BaseURL:    srv.URL,
		Username:     "glow-salon",
		AttendeeZone: "Asia/Kolkata",
		DialCode:     "+91",
	}, logging.New("error"), WithHTTPClient(srv.Client()))
	return c, srv
}

func TestListServices(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/event-types" {
			t.Errorf("path = %q, want /event-types", r.URL.Path)
		}
		if got := r.URL.Query().Get("apiKey"); got != "secret-key" {
			t.Errorf("apiKey = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"event_types": []map[string]any{
				{"id": 101, "title": "Haircut", "slug": "haircut", "length": 45},
				{"id": 102, "title": "Hair Spa", "slug": "hair-spa"},
			},
		})
	}))

	services, err := c.ListServices(context.Background())
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("got %d services, want 2", len(services))
	}
	if services[0].ID != 101 || services[0].Title != "Haircut" || services[0].DurationMinutes != 45 {
		t.Errorf("unexpected first service: %+v", services[0])
	}
	if services[1].DurationMinutes != 30 {
		t.Errorf("missing length should default to 30, got %d", services[1].DurationMinutes)
	}
}

func TestListSlots(t *testing.T) {
	from := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("eventTypeId"); got != "101" {
			t.Errorf("eventTypeId = %q", got)
		}
		if got := q.Get("startTime"); got != "2024-12-20T00:00:00.000Z" {
			t.Errorf("startTime = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"slots": map[string]any{
				"2024-12-20": []map[string]string{
					{"time": "2024-12-20T04:30:00.000Z"},
					{"time": "2024-12-20T11:30:00.000Z"},
					{"time": "not-a-time"},
				},
			},
		})
	}))

	slots, err := c.ListSlots(context.Background(), 101, from, to)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2 (bad slot skipped)", len(slots))
	}
}

func TestCreateBooking(t *testing.T) {
	var captured v2BookingRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bookings" || r.Method != http.MethodPost {
			t.Errorf("%s %s, want POST /bookings", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("cal-api-version"); got != "2024-08-13" {
			t.Errorf("cal-api-version = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"uid": "bk_123"}})
	}))

	conf, err := c.CreateBooking(context.Background(), scheduling.CreateBookingRequest{
		ServiceSlug:   "haircut",
		ServiceTitle:  "Haircut",
		Start:         time.Date(2024, 12, 20, 11, 30, 0, 0, time.UTC),
		AttendeePhone: "+919876543210",
		AttendeeEmail: "guest@example.com",
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if conf.UID != "bk_123" {
		t.Errorf("UID = %q, want bk_123", conf.UID)
	}
	if captured.Start != "2024-12-20T11:30:00.000Z" {
		t.Errorf("start = %q", captured.Start)
	}
	if captured.Username != "glow-salon" {
		t.Errorf("username = %q", captured.Username)
	}
	if captured.Attendee.TimeZone != "Asia/Kolkata" {
		t.Errorf("timeZone = %q", captured.Attendee.TimeZone)
	}
	if captured.Metadata["title"] != "Haircut" {
		t.Errorf("metadata title = %q", captured.Metadata["title"])
	}
}

func TestCreateBookingGatewayError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no_available_users_found_error"}`, http.StatusBadRequest)
	}))

	_, err := c.CreateBooking(context.Background(), scheduling.CreateBookingRequest{
		ServiceSlug: "haircut",
		Start:       time.Now(),
	})
	var gerr *scheduling.GatewayError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want *scheduling.GatewayError", err)
	}
	if gerr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d", gerr.StatusCode)
	}
}

func TestCancelBooking(t *testing.T) {
	var gotPath string
	var payload map[string]string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.CancelBooking(context.Background(), "bk_123", "caller requested"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if gotPath != "/bookings/bk_123/cancel" {
		t.Errorf("path = %q", gotPath)
	}
	if payload["cancellationReason"] != "caller requested" {
		t.Errorf("reason = %q", payload["cancellationReason"])
	}
}

func TestListUpcomingBookingsFiltersByPhone(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "upcoming" {
			t.Errorf("status = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"uid": "bk_1", "title": "Haircut", "start": "2024-12-20T11:30:00Z",
					"attendees": []map[string]string{{"phoneNumber": "+919876543210"}},
				},
				{
					"uid": "bk_2", "title": "Facial", "start": "2024-12-21T09:00:00Z",
					"attendees": []map[string]string{{"phoneNumber": "+911112223334"}},
				},
				{
					"uid": "bk_3", "start": "2024-12-22T06:00:00Z",
					"metadata": map[string]string{"guest_phone": "9876543210"},
				},
			},
		})
	}))

	// Bare ten digits must match the +91-prefixed attendee record.
	bookings, err := c.ListUpcomingBookings(context.Background(), "9876543210")
	if err != nil {
		t.Fatalf("ListUpcomingBookings: %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("got %d bookings, want 2", len(bookings))
	}
	if bookings[0].UID != "bk_1" || bookings[1].UID != "bk_3" {
		t.Errorf("uids = %q, %q", bookings[0].UID, bookings[1].UID)
	}
	if bookings[1].Title != "Appointment" {
		t.Errorf("missing title should default to Appointment, got %q", bookings[1].Title)
	}
}

func TestDryRunSkipsNetwork(t *testing.T) {
	called := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	c.dryRun = true

	conf, err := c.CreateBooking(context.Background(), scheduling.CreateBookingRequest{ServiceSlug: "haircut", Start: time.Now()})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if conf.UID != "dry-run" {
		t.Errorf("UID = %q", conf.UID)
	}
	if err := c.CancelBooking(context.Background(), "bk_1", "test"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if called {
		t.Error("dry run must not hit the server")
	}
}
