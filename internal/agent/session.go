// Package agent exposes the tool-call surface of the booking assistant:
// each exported Session method corresponds to one tool the upstream voice
// layer may invoke, and returns a short user-facing string. State lives in
// the embedded conversation machine; a mutex keeps turns strictly serial.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsclabs/salon-voice-ai/internal/fsm"
	"github.com/tsclabs/salon-voice-ai/internal/notify"
	"github.com/tsclabs/salon-voice-ai/internal/observability/metrics"
	"github.com/tsclabs/salon-voice-ai/internal/otp"
	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
	"github.com/tsclabs/salon-voice-ai/internal/timeparse"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

// fallbackEmail is used on bookings when no verified email is present,
// which only happens on the reschedule path where verification already
// occurred for the original booking.
const fallbackEmail = "guest@voice.ai"

// Deps carries everything a Session needs. Gateway and Services are
// required; the rest degrade gracefully when nil.
type Deps struct {
	Gateway    scheduling.Gateway
	Services   *scheduling.ServiceCache
	Notifier   *notify.Service
	Resolver   *timeparse.Resolver
	Guard      *otp.Guard
	Transcript *Transcript
	Metrics    *metrics.AgentMetrics
	Logger     *logging.Logger

	Zone          *time.Location
	DialCode      string
	HorizonDays   int
	MaxSlotsShown int
	Now           func() time.Time
}

// Session is one caller's conversation. All tool methods serialize on mu:
// a turn runs to completion, including gateway calls, before the next is
// accepted.
type Session struct {
	ID string

	mu      sync.Mutex
	machine *fsm.Machine
	deps    Deps
	logger  *logging.Logger
}

// NewSession creates a session in the START state.
func NewSession(deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Resolver == nil {
		deps.Resolver = timeparse.NewResolver("")
	}
	if deps.Guard == nil {
		deps.Guard = otp.NewGuard()
	}
	if deps.Zone == nil {
		deps.Zone = time.UTC
	}
	if deps.HorizonDays <= 0 {
		deps.HorizonDays = scheduling.DefaultHorizonDays
	}
	if deps.MaxSlotsShown <= 0 {
		deps.MaxSlotsShown = 3
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		machine: fsm.New(logger.With("session_id", id)),
		deps:    deps,
		logger:  logger.With("session_id", id),
	}
}

// State returns the current conversation state name.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State().String()
}

// IdlePrompt returns a re-engagement directive for the current state
// without mutating anything. Used by the caller's silence timer.
func (s *Session) IdlePrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "The caller has gone quiet. Gently re-engage: " + s.machine.PromptFor(s.machine.State())
}

func (s *Session) now() time.Time {
	if s.deps.Now != nil {
		return s.deps.Now()
	}
	return time.Now()
}

func (s *Session) horizon() scheduling.Horizon {
	return scheduling.Horizon{Days: s.deps.HorizonDays, Zone: s.deps.Zone, Now: s.deps.Now}
}

// apply runs one machine update and records the resulting transition.
func (s *Session) apply(ctx context.Context, intent fsm.Intent, fields *fsm.Fields) fsm.Transition {
	tr := s.machine.Update(intent, fields)
	if tr.Changed {
		s.deps.Metrics.ObserveTransition(tr.From.String(), tr.To.String())
		s.record(ctx, TranscriptEvent{
			Kind: "transition",
			From: tr.From.String(),
			To:   tr.To.String(),
		})
	} else if len(tr.Merged) > 0 {
		s.record(ctx, TranscriptEvent{
			Kind:   "merge",
			Detail: strings.Join(tr.Merged, ","),
		})
	}
	return tr
}

// record appends a transcript event best-effort; transcript failures never
// affect the conversation.
func (s *Session) record(ctx context.Context, evt TranscriptEvent) {
	if err := s.deps.Transcript.Append(ctx, s.ID, evt); err != nil {
		s.logger.Warn("transcript append failed", "error", err)
	}
}

// observeTool records the outcome of one tool call.
func (s *Session) observeTool(ctx context.Context, tool, status string) {
	s.deps.Metrics.ObserveToolCall(tool, status)
	s.record(ctx, TranscriptEvent{Kind: "tool", Tool: tool, Detail: status})
}

func (s *Session) directive() string {
	return s.machine.PromptFor(s.machine.State())
}
