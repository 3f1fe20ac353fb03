package scheduling

import (
	"fmt"
	"time"
)

// DefaultHorizonDays is the standard booking lead-time limit.
const DefaultHorizonDays = 7

// Horizon validates that a resolved instant is neither in the past nor
// beyond the allowed lead time. It is a caller-side policy applied on top
// of time resolution, not part of it.
type Horizon struct {
	Days int
	Zone *time.Location
	Now  func() time.Time
}

// Check returns a ValidationError when the instant falls outside the
// bookable window. Past-ness is judged by local calendar date, so booking
// later today stays allowed; the far bound is exact: now+N days is the last
// accepted instant.
func (h Horizon) Check(t time.Time) error {
	zone := h.Zone
	if zone == nil {
		zone = time.UTC
	}
	days := h.Days
	if days <= 0 {
		days = DefaultHorizonDays
	}
	var now time.Time
	if h.Now != nil {
		now = h.Now().In(zone)
	} else {
		now = time.Now().In(zone)
	}

	local := t.In(zone)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, zone)
	if local.Before(today) {
		return &ValidationError{Msg: "requested time is in the past"}
	}
	if local.After(now.AddDate(0, 0, days)) {
		return &ValidationError{Msg: fmt.Sprintf("requested time is beyond the %d-day booking horizon", days)}
	}
	return nil
}
