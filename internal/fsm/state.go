// Package fsm is the turn-by-turn conversation engine: a flat state machine
// over a typed context record. It decides which piece of information is
// collected next and never touches dialogue wording, network calls, or
// parsing; those belong to the tool layer around it.
package fsm

// State is the single active conversation state. The set is flat on
// purpose: no hierarchy keeps the legal-transition table finite and
// exhaustively testable.
type State int

const (
	StateStart State = iota

	// Booking branch
	StateBookingAskService
	StateBookingAskDate
	StateBookingAskTime
	StateBookingAskPhone

	// Email verification gate before the booking is finalized
	StateOTPAskEmail
	StateOTPVerify
	StateBookingConfirm

	// Manage branch, shared by cancel/update/reschedule
	StateManageAskPhone
	StateManageSelectBooking
	StateCancelConfirm

	// Reschedule branch
	StateRescheduleAskService
	StateRescheduleAskDate
	StateRescheduleAskTime
	StateRescheduleConfirm
)

var stateNames = map[State]string{
	StateStart:                "START",
	StateBookingAskService:    "BOOKING_ASK_SERVICE",
	StateBookingAskDate:       "BOOKING_ASK_DATE",
	StateBookingAskTime:       "BOOKING_ASK_TIME",
	StateBookingAskPhone:      "BOOKING_ASK_PHONE",
	StateOTPAskEmail:          "OTP_ASK_EMAIL",
	StateOTPVerify:            "OTP_VERIFY",
	StateBookingConfirm:       "BOOKING_CONFIRM",
	StateManageAskPhone:       "MANAGE_ASK_PHONE",
	StateManageSelectBooking:  "MANAGE_SELECT_BOOKING",
	StateCancelConfirm:        "CANCEL_CONFIRM",
	StateRescheduleAskService: "RESCHEDULE_ASK_SERVICE",
	StateRescheduleAskDate:    "RESCHEDULE_ASK_DATE",
	StateRescheduleAskTime:    "RESCHEDULE_ASK_TIME",
	StateRescheduleConfirm:    "RESCHEDULE_CONFIRM",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// States lists every state, for exhaustiveness-style tests.
func States() []State {
	out := make([]State, 0, len(stateNames))
	for s := range stateNames {
		out = append(out, s)
	}
	return out
}

// Intent is an utterance-level intent token recognized upstream and handed
// to the engine. The engine never parses text to discover intents.
type Intent string

const (
	IntentNone       Intent = ""
	IntentBook       Intent = "book"
	IntentCancel     Intent = "cancel"
	IntentUpdate     Intent = "update"
	IntentReschedule Intent = "reschedule"
	IntentCancelAll  Intent = "cancel_all"
	IntentConfirm    Intent = "confirm"
	IntentOTPSuccess Intent = "otp_success"
)

// IsManage reports whether the intent routes through the manage branch.
func (i Intent) IsManage() bool {
	switch i {
	case IntentCancel, IntentUpdate, IntentReschedule, IntentCancelAll:
		return true
	}
	return false
}
