package scheduling

import (
	"fmt"
	"strings"
)

// ValidationError rejects user-supplied input before it reaches the calendar
// platform: an unknown service name, a date in the past, or a date beyond
// the booking horizon. Alternatives, when set, are the valid options to
// offer back to the user.
type ValidationError struct {
	Msg          string
	Alternatives []string
}

func (e *ValidationError) Error() string {
	if len(e.Alternatives) > 0 {
		return fmt.Sprintf("scheduling: %s (valid: %s)", e.Msg, strings.Join(e.Alternatives, ", "))
	}
	return "scheduling: " + e.Msg
}

// GatewayError reports a non-success response or timeout from the calendar
// platform. Conversation state is never advanced on a gateway error, so the
// user can simply retry.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scheduling: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("scheduling: %s: status %d", e.Op, e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.Err }
