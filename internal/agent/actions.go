package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tsclabs/salon-voice-ai/internal/fsm"
	"github.com/tsclabs/salon-voice-ai/internal/notify"
	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
)

// CreateBooking performs the terminal booking action. It re-validates
// everything locally (service, parseable time, horizon, OTP) so a
// malformed tool call can never reach the calendar platform.
func (s *Session) CreateBooking(ctx context.Context, date, timePhrase, guestPhone, service string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, err := s.findService(ctx, service)
	if err != nil {
		s.observeTool(ctx, "create_booking", "invalid_service")
		return serviceErrorString(service, err)
	}

	// A day-part is not a bookable time.
	if _, isPart := scheduling.ParseDayPart(strings.ToLower(strings.TrimSpace(timePhrase))); isPart {
		s.observeTool(ctx, "create_booking", "vague_time")
		return fmt.Sprintf("At what time in the %s would you like to book?", strings.ToLower(strings.TrimSpace(timePhrase)))
	}

	start, err := s.deps.Resolver.Resolve(date, timePhrase)
	if err != nil {
		s.observeTool(ctx, "create_booking", "parse_error")
		return timeParseString(err)
	}

	if msg := s.checkHorizon(start); msg != "" {
		s.observeTool(ctx, "create_booking", "outside_horizon")
		return msg
	}

	mctx := s.machine.Context()
	if !mctx.OTP.Verified {
		s.observeTool(ctx, "create_booking", "otp_unverified")
		return "I need to verify your email before confirming the booking. What's your email address?"
	}

	email := mctx.Email
	if email == "" {
		email = fallbackEmail
	}
	phone := scheduling.NormalizePhone(guestPhone, s.deps.DialCode)

	conf, err := s.createBooking(ctx, scheduling.CreateBookingRequest{
		ServiceSlug:   svc.Slug,
		ServiceTitle:  svc.Title,
		Start:         start,
		AttendeePhone: phone,
		AttendeeEmail: email,
	})
	if err != nil {
		s.logger.Error("booking failed", "error", err, "service", svc.Title)
		s.observeTool(ctx, "create_booking", "gateway_error")
		return fmt.Sprintf("I couldn't book the %s appointment. Please try a different time slot.", svc.Title)
	}

	s.sendConfirmation(ctx, email, notify.BookingDetails{
		UID:     conf.UID,
		Service: svc.Title,
		Start:   start.In(s.deps.Zone),
		Phone:   phone,
	})

	s.apply(ctx, fsm.IntentConfirm, nil)
	s.observeTool(ctx, "create_booking", "ok")
	return fmt.Sprintf("Your %s appointment has been confirmed for %s at %s. I have sent the email for the confirmed booking.",
		svc.Title, date, timePhrase)
}

// RescheduleBooking cancels the existing booking and creates a replacement.
// The cancel is not undone if the re-book fails; the caller is told to book
// again.
func (s *Session) RescheduleBooking(ctx context.Context, bookingUID, newDate, newTime, guestPhone, service string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, err := s.findService(ctx, service)
	if err != nil {
		s.observeTool(ctx, "reschedule_booking", "invalid_service")
		return serviceErrorString(service, err)
	}

	start, err := s.deps.Resolver.Resolve(newDate, newTime)
	if err != nil {
		s.observeTool(ctx, "reschedule_booking", "parse_error")
		return timeParseString(err)
	}
	if msg := s.checkHorizon(start); msg != "" {
		s.observeTool(ctx, "reschedule_booking", "outside_horizon")
		return msg
	}

	if err := s.cancelBooking(ctx, bookingUID, "User requested reschedule"); err != nil {
		s.logger.Error("reschedule cancel failed", "error", err, "uid", bookingUID)
		s.observeTool(ctx, "reschedule_booking", "cancel_failed")
		return "I couldn't cancel your existing booking."
	}

	email := s.machine.Context().Email
	if email == "" {
		email = fallbackEmail
	}
	phone := scheduling.NormalizePhone(guestPhone, s.deps.DialCode)

	conf, err := s.createBooking(ctx, scheduling.CreateBookingRequest{
		ServiceSlug:   svc.Slug,
		ServiceTitle:  svc.Title,
		Start:         start,
		AttendeePhone: phone,
		AttendeeEmail: email,
	})
	if err != nil {
		s.logger.Error("reschedule re-book failed", "error", err, "uid", bookingUID)
		s.observeTool(ctx, "reschedule_booking", "rebook_failed")
		return "I cancelled your old booking, but couldn't create the new one. Please book again."
	}

	if email != fallbackEmail {
		s.sendConfirmation(ctx, email, notify.BookingDetails{
			UID:         conf.UID,
			Service:     svc.Title,
			Start:       start.In(s.deps.Zone),
			Phone:       phone,
			Rescheduled: true,
		})
	}

	s.apply(ctx, fsm.IntentConfirm, nil)
	s.observeTool(ctx, "reschedule_booking", "ok")
	return fmt.Sprintf("Your %s appointment has been successfully rescheduled to %s at %s.", svc.Title, newDate, newTime)
}

// CancelBooking cancels one booking by UID.
func (s *Session) CancelBooking(ctx context.Context, bookingUID, reason string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reason == "" {
		reason = "User requested cancellation"
	}
	if err := s.cancelBooking(ctx, bookingUID, reason); err != nil {
		s.logger.Error("cancel failed", "error", err, "uid", bookingUID)
		s.observeTool(ctx, "cancel_booking", "gateway_error")
		return "I couldn't cancel that appointment. It might have already been cancelled."
	}

	s.apply(ctx, fsm.IntentConfirm, nil)
	s.observeTool(ctx, "cancel_booking", "ok")
	return "Your appointment has been cancelled successfully."
}

// CancelAllBookings cancels every upcoming booking on a phone number.
func (s *Session) CancelAllBookings(ctx context.Context, phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := scheduling.NormalizePhone(phone, s.deps.DialCode)
	bookings, err := s.deps.Gateway.ListUpcomingBookings(ctx, normalized)
	if err != nil {
		s.logger.Error("cancel-all lookup failed", "error", err)
		s.observeTool(ctx, "cancel_all_bookings", "gateway_error")
		return "I couldn't access your bookings right now. Please try again."
	}
	if len(bookings) == 0 {
		s.observeTool(ctx, "cancel_all_bookings", "no_bookings")
		return "I couldn't find any bookings with this phone number."
	}

	failed := 0
	for _, b := range bookings {
		if err := s.cancelBooking(ctx, b.UID, "User requested cancellation of all bookings"); err != nil {
			s.logger.Error("cancel-all item failed", "error", err, "uid", b.UID)
			failed++
		}
	}

	s.apply(ctx, fsm.IntentConfirm, nil)
	if failed > 0 {
		s.observeTool(ctx, "cancel_all_bookings", "partial")
		return fmt.Sprintf("I cancelled %d of your %d appointments; %d couldn't be cancelled. Please try those again.",
			len(bookings)-failed, len(bookings), failed)
	}
	s.observeTool(ctx, "cancel_all_bookings", "ok")
	return fmt.Sprintf("All %d of your appointments have been cancelled successfully.", len(bookings))
}

// ListBookings reports the caller's upcoming bookings.
func (s *Session) ListBookings(ctx context.Context, phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := scheduling.NormalizePhone(phone, s.deps.DialCode)
	bookings, err := s.deps.Gateway.ListUpcomingBookings(ctx, normalized)
	if err != nil {
		s.logger.Error("list bookings failed", "error", err)
		s.observeTool(ctx, "list_bookings", "gateway_error")
		return "I couldn't access your bookings."
	}
	if len(bookings) == 0 {
		s.observeTool(ctx, "list_bookings", "no_bookings")
		return "I couldn't find any bookings with this phone number."
	}

	entries := make([]string, 0, len(bookings))
	for _, b := range bookings {
		entries = append(entries, fmt.Sprintf("%s on %s (ID: %s)",
			b.Title, b.Start.In(s.deps.Zone).Format("January 02 at 03:04 PM"), b.UID))
	}
	s.observeTool(ctx, "list_bookings", "ok")
	return fmt.Sprintf("I found %d booking(s): %s", len(entries), strings.Join(entries, "; "))
}

// checkHorizon converts a horizon violation into its user-facing string,
// or "" when the instant is bookable.
func (s *Session) checkHorizon(start time.Time) string {
	err := s.horizon().Check(start)
	if err == nil {
		return ""
	}
	var verr *scheduling.ValidationError
	if errors.As(err, &verr) && strings.Contains(verr.Msg, "past") {
		return "I can't book in the past. Please pick a future date within one week."
	}
	return "I can only book appointments up to 1 week from today. Please pick an earlier date."
}

func (s *Session) createBooking(ctx context.Context, req scheduling.CreateBookingRequest) (*scheduling.BookingConfirmation, error) {
	start := time.Now()
	conf, err := s.deps.Gateway.CreateBooking(ctx, req)
	s.deps.Metrics.ObserveGatewayLatency("create_booking", time.Since(start).Seconds())
	return conf, err
}

func (s *Session) cancelBooking(ctx context.Context, uid, reason string) error {
	start := time.Now()
	err := s.deps.Gateway.CancelBooking(ctx, uid, reason)
	s.deps.Metrics.ObserveGatewayLatency("cancel_booking", time.Since(start).Seconds())
	return err
}

// sendConfirmation emails the booking details best-effort; a delivery
// failure never fails the booking that already happened.
func (s *Session) sendConfirmation(ctx context.Context, email string, d notify.BookingDetails) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.SendBookingConfirmation(ctx, email, d); err != nil {
		s.logger.Warn("confirmation email failed", "error", err, "uid", d.UID)
	}
}
