package fsm

import (
	"github.com/tsclabs/salon-voice-ai/internal/otp"
)

// BookingRef is a snapshot entry from the last booking lookup, kept so a
// later selection can be resolved without another round trip.
type BookingRef struct {
	UID        string
	Title      string
	HumanStart string // local display form, e.g. "Friday, December 20 at 10:00 AM"
}

// Context is the mutable record owned by exactly one Machine. Fields are
// populated strictly in the order the states demand them; nothing
// downstream reads a field before the state responsible for it has run.
type Context struct {
	Intent     Intent
	Service    string
	Date       string // verbatim user phrase, resolved only at booking time
	Time       string // verbatim user phrase
	Phone      string
	Email      string
	Bookings   []BookingRef
	BookingUID string
	OTP        otp.Record
}

// Reset returns the context to its zero state. Called on loop-back to
// START so the same session can run another flow from scratch.
func (c *Context) Reset() {
	*c = Context{}
}

// Fields is the typed bag of values a single tool call may supply. It is
// the validation boundary where upstream free-text extractions are merged
// into the context; absent fields are empty strings.
type Fields struct {
	Service    string
	Date       string
	Time       string
	Phone      string
	Email      string
	BookingUID string

	// Bookings is the lookup snapshot supplied alongside a phone number in
	// the manage branch. HasBookings distinguishes "lookup ran and found
	// nothing" from "no lookup in this call".
	Bookings    []BookingRef
	HasBookings bool
}

// field identifies one collectable context slot, used by the transition
// table.
type field int

const (
	fieldService field = iota
	fieldDate
	fieldTime
	fieldPhone
	fieldEmail
)

var fieldNames = map[field]string{
	fieldService: "service",
	fieldDate:    "date",
	fieldTime:    "time",
	fieldPhone:   "phone",
	fieldEmail:   "email",
}

func (f field) String() string { return fieldNames[f] }

// value returns the supplied value for a field, if any.
func (fs *Fields) value(f field) (string, bool) {
	if fs == nil {
		return "", false
	}
	var v string
	switch f {
	case fieldService:
		v = fs.Service
	case fieldDate:
		v = fs.Date
	case fieldTime:
		v = fs.Time
	case fieldPhone:
		v = fs.Phone
	case fieldEmail:
		v = fs.Email
	}
	if v == "" {
		return "", false
	}
	return v, true
}

// set stores a field value on the context.
func (c *Context) set(f field, v string) {
	switch f {
	case fieldService:
		c.Service = v
	case fieldDate:
		c.Date = v
	case fieldTime:
		c.Time = v
	case fieldPhone:
		c.Phone = v
	case fieldEmail:
		c.Email = v
	}
}
