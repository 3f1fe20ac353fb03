package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tsclabs/salon-voice-ai/internal/agent"
	"github.com/tsclabs/salon-voice-ai/internal/http/handlers"
	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

type stubGateway struct{}

func (stubGateway) ListServices(ctx context.Context) ([]scheduling.Service, error) {
	return []scheduling.Service{{ID: 1, Title: "Haircut", Slug: "haircut", DurationMinutes: 30}}, nil
}

func (stubGateway) ListSlots(ctx context.Context, serviceID int, from, to time.Time) ([]scheduling.Slot, error) {
	return nil, nil
}

func (stubGateway) CreateBooking(ctx context.Context, req scheduling.CreateBookingRequest) (*scheduling.BookingConfirmation, error) {
	return &scheduling.BookingConfirmation{UID: "bk_test"}, nil
}

func (stubGateway) CancelBooking(ctx context.Context, uid, reason string) error { return nil }

func (stubGateway) ListUpcomingBookings(ctx context.Context, phone string) ([]scheduling.Booking, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, cfg *Config) http.Handler {
	t.Helper()

	logger := logging.New("error")
	factory := func() *agent.Session {
		return agent.NewSession(agent.Deps{Gateway: stubGateway{}, Logger: logger})
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Logger = logger
	cfg.Sessions = handlers.NewSessionsHandler(factory, nil, logger)

	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newTestRouter(t, &Config{
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterSessionLifecycle(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	var created handlers.SessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost,
		"/v1/sessions/"+created.SessionID+"/tools/intent_book", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}

	var tool handlers.ToolResponse
	if err := json.NewDecoder(rr.Body).Decode(&tool); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if tool.State != "BOOKING_ASK_SERVICE" {
		t.Errorf("expected state BOOKING_ASK_SERVICE, got %q", tool.State)
	}
}

func TestRouterRateLimit(t *testing.T) {
	router := newTestRouter(t, &Config{
		RateLimitPerSecond: 1,
		RateLimitBurst:     1,
	})

	var got429 bool
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}

	if !got429 {
		t.Error("expected a 429 after exhausting the burst")
	}
}
