// Package scheduling defines the contract between the conversation core and
// the external calendar platform, plus the local policies layered on top of
// it: the service catalog cache, day-part bucketing, phone normalization,
// and the booking horizon.
package scheduling

import (
	"context"
	"time"
)

// Service describes one bookable service (an event type on the calendar
// platform).
type Service struct {
	ID              int
	Title           string
	Slug            string
	DurationMinutes int
}

// Slot is a single bookable start instant.
type Slot struct {
	Start time.Time
}

// Booking is an upcoming appointment as reported by the platform.
type Booking struct {
	UID           string
	Title         string
	Start         time.Time
	AttendeePhone string
}

// CreateBookingRequest carries everything needed to book a slot.
type CreateBookingRequest struct {
	ServiceSlug   string
	ServiceTitle  string
	Start         time.Time // UTC
	AttendeePhone string
	AttendeeEmail string
}

// BookingConfirmation is returned on a successful create.
type BookingConfirmation struct {
	UID string
}

// Gateway abstracts the remote scheduling service. The core only ever talks
// to the calendar through this interface.
type Gateway interface {
	// ListServices returns the bookable service catalog.
	ListServices(ctx context.Context) ([]Service, error)

	// ListSlots returns open slots for a service inside a UTC window.
	ListSlots(ctx context.Context, serviceID int, from, to time.Time) ([]Slot, error)

	// CreateBooking books a slot and returns the platform reference.
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingConfirmation, error)

	// CancelBooking cancels by platform UID.
	CancelBooking(ctx context.Context, uid, reason string) error

	// ListUpcomingBookings returns upcoming bookings matching a normalized
	// attendee phone number.
	ListUpcomingBookings(ctx context.Context, phone string) ([]Booking, error)
}
