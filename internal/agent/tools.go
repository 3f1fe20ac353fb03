package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tsclabs/salon-voice-ai/internal/fsm"
	"github.com/tsclabs/salon-voice-ai/internal/otp"
	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
)

// IntentBook starts the booking flow.
func (s *Session) IntentBook(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, fsm.IntentBook, nil)
	s.observeTool(ctx, "intent_book", "ok")
	return s.directive()
}

// IntentManage starts the manage flow for an existing booking. kind is one
// of cancel, update, reschedule, cancel_all.
func (s *Session) IntentManage(ctx context.Context, kind string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent := fsm.Intent(strings.ToLower(strings.TrimSpace(kind)))
	if !intent.IsManage() {
		s.observeTool(ctx, "intent_manage", "unknown_kind")
		return "I can cancel, update, or reschedule an existing appointment. Which would you like?"
	}
	s.apply(ctx, intent, nil)
	s.observeTool(ctx, "intent_manage", "ok")
	return s.directive()
}

// InputService validates a spoken service name against the catalog and
// advances the flow. An unknown name re-prompts with the valid titles.
func (s *Session) InputService(ctx context.Context, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, err := s.findService(ctx, name)
	if err != nil {
		s.observeTool(ctx, "input_service", "invalid")
		return serviceErrorString(name, err)
	}
	s.apply(ctx, fsm.IntentNone, &fsm.Fields{Service: svc.Title})
	s.observeTool(ctx, "input_service", "ok")
	return s.directive()
}

// InputDate stores the date phrase verbatim; it is resolved only when the
// booking is actually made.
func (s *Session) InputDate(ctx context.Context, date string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, fsm.IntentNone, &fsm.Fields{Date: date})
	s.observeTool(ctx, "input_date", "ok")
	return s.directive()
}

// InputTime stores the time phrase verbatim.
func (s *Session) InputTime(ctx context.Context, t string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, fsm.IntentNone, &fsm.Fields{Time: t})
	s.observeTool(ctx, "input_time", "ok")
	return s.directive()
}

// InputPhone normalizes the number and advances. In the manage branch it
// also runs the booking lookup whose cardinality decides the next state.
func (s *Session) InputPhone(ctx context.Context, phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := scheduling.NormalizePhone(phone, s.deps.DialCode)
	if s.machine.State() != fsm.StateManageAskPhone {
		s.apply(ctx, fsm.IntentNone, &fsm.Fields{Phone: normalized})
		s.observeTool(ctx, "input_phone", "ok")
		return s.directive()
	}

	bookings, err := s.deps.Gateway.ListUpcomingBookings(ctx, normalized)
	if err != nil {
		s.logger.Error("booking lookup failed", "error", err)
		s.observeTool(ctx, "input_phone", "gateway_error")
		return "I couldn't access your bookings right now. Could you repeat your phone number?"
	}

	refs := make([]fsm.BookingRef, 0, len(bookings))
	for _, b := range bookings {
		refs = append(refs, fsm.BookingRef{
			UID:        b.UID,
			Title:      b.Title,
			HumanStart: b.Start.In(s.deps.Zone).Format("Monday, January 02 at 03:04 PM"),
		})
	}
	s.apply(ctx, fsm.IntentNone, &fsm.Fields{
		Phone:       normalized,
		Bookings:    refs,
		HasBookings: true,
	})
	s.observeTool(ctx, "input_phone", "ok")

	if len(refs) == 0 {
		return "I couldn't find any bookings with this phone number. Could you double-check it?"
	}
	return s.directive()
}

// SelectBooking resolves a multi-match lookup to one booking and routes by
// the recorded intent.
func (s *Session) SelectBooking(ctx context.Context, uid string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, fsm.IntentNone, &fsm.Fields{BookingUID: uid})
	s.observeTool(ctx, "select_booking", "ok")
	return s.directive()
}

// ConfirmAction advances out of a confirmation state.
func (s *Session) ConfirmAction(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.apply(ctx, fsm.IntentConfirm, nil)
	if !tr.Changed {
		s.observeTool(ctx, "confirm_action", "noop")
		return s.directive()
	}
	s.observeTool(ctx, "confirm_action", "ok")
	return s.directive()
}

// SendOTP issues a fresh verification code and emails it. A fresh issue
// resets the resend counter.
func (s *Session) SendOTP(ctx context.Context, email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, code, err := s.deps.Guard.Issue(email)
	if err != nil {
		s.logger.Error("otp issue failed", "error", err)
		s.observeTool(ctx, "send_otp", "error")
		return "Something went wrong preparing your verification code. Please try again."
	}
	s.machine.Context().OTP = rec
	// The merge is a no-op once the state is already OTP_VERIFY, so a
	// corrected address on a repeat send_otp must land on the context
	// directly.
	s.machine.Context().Email = email
	s.apply(ctx, fsm.IntentNone, &fsm.Fields{Email: email})
	s.deps.Metrics.ObserveOTP("issue")

	if err := s.deps.Notifier.SendOTP(ctx, email, code); err != nil {
		s.logger.Error("otp delivery failed", "error", err)
		s.observeTool(ctx, "send_otp", "delivery_error")
		return "I couldn't deliver the code to that address. Could you repeat your email?"
	}
	s.observeTool(ctx, "send_otp", "ok")
	return "Alright, I've sent a six-digit verification code to your email. It's valid for five minutes."
}

// ResendOTP issues a replacement code, subject to the cooldown and the
// resend cap.
func (s *Session) ResendOTP(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	mctx := s.machine.Context()
	if mctx.OTP.Email == "" {
		s.observeTool(ctx, "resend_otp", "no_record")
		return "I don't have an email on file yet. What's your email address?"
	}

	rec, code, err := s.deps.Guard.Resend(mctx.OTP)
	if err != nil {
		var throttle *otp.ThrottleError
		if errors.As(err, &throttle) {
			if throttle.Exhausted {
				s.deps.Metrics.ObserveOTP("resend_exhausted")
				s.observeTool(ctx, "resend_otp", "exhausted")
				return "I've already sent the code a few times. For security reasons, please try again after some time."
			}
			s.deps.Metrics.ObserveOTP("resend_throttled")
			s.observeTool(ctx, "resend_otp", "cooldown")
			return fmt.Sprintf("Please wait %d seconds before I resend the code.", int(throttle.Wait.Seconds()))
		}
		s.logger.Error("otp resend failed", "error", err)
		s.observeTool(ctx, "resend_otp", "error")
		return "Something went wrong resending the code. Please try again."
	}
	mctx.OTP = rec
	s.deps.Metrics.ObserveOTP("resend")

	if err := s.deps.Notifier.SendOTP(ctx, rec.Email, code); err != nil {
		s.logger.Error("otp delivery failed", "error", err)
		s.observeTool(ctx, "resend_otp", "delivery_error")
		return "I couldn't deliver the new code. Please try again in a moment."
	}
	s.observeTool(ctx, "resend_otp", "ok")
	return "Okay, I've sent a new verification code to your email. Please check and say the six digits slowly."
}

// VerifyOTP checks the spoken code. Expiry wins over correctness so the
// caller is steered toward a resend, not an endless retry.
func (s *Session) VerifyOTP(ctx context.Context, code string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	mctx := s.machine.Context()
	switch s.deps.Guard.Verify(&mctx.OTP, code) {
	case otp.VerifyOK:
		s.deps.Metrics.ObserveOTP("verify_ok")
		s.apply(ctx, fsm.IntentOTPSuccess, nil)
		s.observeTool(ctx, "verify_otp", "ok")
		return "Perfect. You're verified now. Let me confirm the booking details with you..."
	case otp.VerifyExpired:
		s.deps.Metrics.ObserveOTP("verify_expired")
		s.observeTool(ctx, "verify_otp", "expired")
		return "That code has expired. Would you like me to send a new one?"
	default:
		s.deps.Metrics.ObserveOTP("verify_mismatch")
		s.observeTool(ctx, "verify_otp", "mismatch")
		return "Hmm, that doesn't seem right. Please say the six-digit code again, slowly."
	}
}

// findService resolves a spoken name through the cached catalog, or
// directly through the gateway when no cache is wired.
func (s *Session) findService(ctx context.Context, name string) (*scheduling.Service, error) {
	if s.deps.Services != nil {
		return s.deps.Services.Find(ctx, name)
	}
	services, err := s.deps.Gateway.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	lowered := strings.ToLower(strings.TrimSpace(name))
	for i := range services {
		if strings.ToLower(services[i].Title) == lowered || services[i].Slug == lowered {
			return &services[i], nil
		}
	}
	return nil, &scheduling.ValidationError{
		Msg:          fmt.Sprintf("unknown service %q", name),
		Alternatives: scheduling.Titles(services),
	}
}

// serviceErrorString phrases a failed service lookup for the caller.
func serviceErrorString(name string, err error) string {
	var verr *scheduling.ValidationError
	if errors.As(err, &verr) && len(verr.Alternatives) > 0 {
		return fmt.Sprintf("I couldn't find a service matching '%s'. Available services: %s",
			name, strings.Join(verr.Alternatives, ", "))
	}
	return "I couldn't fetch the service list right now. Please try again."
}
