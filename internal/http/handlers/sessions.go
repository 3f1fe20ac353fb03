package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/tsclabs/salon-voice-ai/internal/agent"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

// ----- Request/response types -----

// ToolRequest carries the named arguments for one tool invocation. The
// upstream voice layer maps the LLM's tool-call arguments onto these
// fields; unused fields are simply omitted.
type ToolRequest struct {
	// Kind selects the manage flavor for intent_manage: "cancel",
	// "update", "reschedule", or "cancel_all".
	Kind string `json:"kind,omitempty"`
	// Service is a free-text service name ("haircut", "Hair Spa").
	Service string `json:"service,omitempty"`
	// Date is a free-text date phrase ("tomorrow", "next friday").
	Date string `json:"date,omitempty"`
	// Time is a free-text time phrase ("5 pm", "evening").
	Time string `json:"time,omitempty"`
	// Phone is the guest's phone number in any spoken form.
	Phone string `json:"phone,omitempty"`
	// Email is the address verification codes are sent to.
	Email string `json:"email,omitempty"`
	// Code is the six-digit verification code read back by the caller.
	Code string `json:"code,omitempty"`
	// BookingUID identifies an existing booking for manage flows.
	BookingUID string `json:"booking_uid,omitempty"`
	// Reason is an optional cancellation reason.
	Reason string `json:"reason,omitempty"`
	// Period narrows availability to a part of the day.
	Period string `json:"period,omitempty"`
}

// ToolResponse is returned for every tool call: the text to speak plus
// the conversation state after the call.
type ToolResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Reply     string `json:"reply"`
}

// SessionResponse is returned when a session is created or inspected.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// ----- Handler -----

// SessionsHandler owns the live session registry and dispatches tool
// calls by name. Sessions are in-memory; a restart drops them, which
// matches the lifetime of a phone call.
type SessionsHandler struct {
	mu       sync.RWMutex
	sessions map[string]*agent.Session

	newSession func() *agent.Session
	transcript *agent.Transcript
	logger     *logging.Logger
}

// NewSessionsHandler creates the handler. newSession is called once per
// POST /v1/sessions and must return a ready-to-use session. transcript
// may be nil when no Redis is configured.
func NewSessionsHandler(newSession func() *agent.Session, transcript *agent.Transcript, logger *logging.Logger) *SessionsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionsHandler{
		sessions:   make(map[string]*agent.Session),
		newSession: newSession,
		transcript: transcript,
		logger:     logger,
	}
}

// CreateSession handles POST /v1/sessions.
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.newSession()

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	h.logger.Info("session created", "session_id", s.ID)
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: s.ID, State: s.State()})
}

// GetSession handles GET /v1/sessions/{sessionID}.
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: s.ID, State: s.State()})
}

// DeleteSession handles DELETE /v1/sessions/{sessionID}. The call ended;
// drop the session from the registry.
func (h *SessionsHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	h.logger.Info("session ended", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// CallTool handles POST /v1/sessions/{sessionID}/tools/{tool}.
func (h *SessionsHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	tool := chi.URLParam(r, "tool")

	var req ToolRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.logger.Warn("tool call: bad payload", "session_id", s.ID, "tool", tool, "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}

	reply, ok := h.dispatch(r, s, tool, req)
	if !ok {
		http.Error(w, "unknown tool", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, ToolResponse{SessionID: s.ID, State: s.State(), Reply: reply})
}

// IdlePrompt handles GET /v1/sessions/{sessionID}/idle-prompt. Called by
// the voice layer's silence timer; never mutates the session.
func (h *SessionsHandler) IdlePrompt(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ToolResponse{SessionID: s.ID, State: s.State(), Reply: s.IdlePrompt()})
}

// GetTranscript handles GET /v1/sessions/{sessionID}/transcript. Works
// for ended sessions too, since transcripts outlive the registry entry.
func (h *SessionsHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	if h.transcript == nil {
		http.Error(w, "transcripts not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "sessionID")
	events, err := h.transcript.List(r.Context(), id, 0)
	if err != nil {
		h.logger.Error("transcript read failed", "session_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     events,
	})
}

func (h *SessionsHandler) lookup(id string) (*agent.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// dispatch maps a tool name onto the matching session method. The second
// return is false for an unknown name.
func (h *SessionsHandler) dispatch(r *http.Request, s *agent.Session, tool string, req ToolRequest) (string, bool) {
	ctx := r.Context()
	switch tool {
	case "intent_book":
		return s.IntentBook(ctx), true
	case "intent_manage":
		return s.IntentManage(ctx, req.Kind), true
	case "input_service":
		return s.InputService(ctx, req.Service), true
	case "input_date":
		return s.InputDate(ctx, req.Date), true
	case "input_time":
		return s.InputTime(ctx, req.Time), true
	case "input_phone":
		return s.InputPhone(ctx, req.Phone), true
	case "select_booking":
		return s.SelectBooking(ctx, req.BookingUID), true
	case "confirm_action":
		return s.ConfirmAction(ctx), true
	case "send_otp":
		return s.SendOTP(ctx, req.Email), true
	case "resend_otp":
		return s.ResendOTP(ctx), true
	case "verify_otp":
		return s.VerifyOTP(ctx, req.Code), true
	case "list_available_services":
		return s.ListAvailableServices(ctx), true
	case "get_availability":
		return s.GetAvailability(ctx, req.Date, req.Service, req.Period), true
	case "check_available_days":
		return s.CheckAvailableDays(ctx, req.Service), true
	case "create_booking":
		return s.CreateBooking(ctx, req.Date, req.Time, req.Phone, req.Service), true
	case "reschedule_booking":
		return s.RescheduleBooking(ctx, req.BookingUID, req.Date, req.Time, req.Phone, req.Service), true
	case "cancel_booking":
		return s.CancelBooking(ctx, req.BookingUID, req.Reason), true
	case "cancel_all_bookings":
		return s.CancelAllBookings(ctx, req.Phone), true
	case "list_bookings":
		return s.ListBookings(ctx, req.Phone), true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
