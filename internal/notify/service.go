package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

// Service composes and sends the transactional emails the booking flow
// needs: the verification code before a booking is allowed, and the
// confirmation once one is made.
type Service struct {
	email     EmailSender
	salonName string
	otpExpiry time.Duration
	logger    *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, salonName string, otpExpiry time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if salonName == "" {
		salonName = "the salon"
	}
	if otpExpiry <= 0 {
		otpExpiry = 5 * time.Minute
	}
	return &Service{
		email:     email,
		salonName: salonName,
		otpExpiry: otpExpiry,
		logger:    logger,
	}
}

// SendOTP emails a verification code. The code is never logged.
func (s *Service) SendOTP(ctx context.Context, email, code string) error {
	if s == nil || s.email == nil {
		return fmt.Errorf("notify: email sender not configured")
	}

	minutes := int(s.otpExpiry.Minutes())
	body := fmt.Sprintf(`Your verification code is: %s

This code is valid for %d minutes.
If you didn't request this, please ignore.
`, code, minutes)

	msg := EmailMessage{
		To:      email,
		Subject: "Your Salon Verification Code",
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send otp: %w", err)
	}
	s.logger.Info("otp email sent", "to", email)
	return nil
}

// BookingDetails carries what goes into a confirmation email.
type BookingDetails struct {
	UID         string
	Service     string
	Start       time.Time // in the salon's local zone
	Phone       string
	Rescheduled bool
}

// SendBookingConfirmation emails the booking reference and appointment
// details to the verified address.
func (s *Service) SendBookingConfirmation(ctx context.Context, email string, d BookingDetails) error {
	if s == nil || s.email == nil {
		return fmt.Errorf("notify: email sender not configured")
	}

	action := "confirmed"
	if d.Rescheduled {
		action = "rescheduled"
	}
	subject := fmt.Sprintf("Your %s appointment is %s", d.Service, action)
	body := fmt.Sprintf(`Your appointment is %s.

Service: %s
When: %s
Phone: %s
Reference ID: %s

See you soon!
— %s
`, action, d.Service, d.Start.Format("Monday, January 2 at 3:04 PM"), d.Phone, d.UID, s.salonName)

	msg := EmailMessage{
		To:      email,
		Subject: subject,
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send confirmation: %w", err)
	}
	s.logger.Info("confirmation email sent", "to", email, "uid", d.UID)
	return nil
}
