package fsm

import (
	"fmt"

	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

// Transition reports the outcome of one Update call. Changed is false when
// the input matched nothing the active state expects, which callers surface
// as a clarifying re-prompt rather than an error.
type Transition struct {
	From    State
	To      State
	Changed bool
	Merged  []string // names of context fields stored during this update
}

// collectEdge describes a state that waits for exactly one field and the
// state that follows once it arrives. Consecutive edges form the chains the
// fast-forward walk follows when a caller volunteers several fields at once.
type collectEdge struct {
	field field
	next  State
}

// collectEdges is the (state, field) half of the transition table.
var collectEdges = map[State]collectEdge{
	StateBookingAskService: {fieldService, StateBookingAskDate},
	StateBookingAskDate:    {fieldDate, StateBookingAskTime},
	StateBookingAskTime:    {fieldTime, StateBookingAskPhone},
	StateBookingAskPhone:   {fieldPhone, StateOTPAskEmail},
	StateOTPAskEmail:       {fieldEmail, StateOTPVerify},

	StateRescheduleAskService: {fieldService, StateRescheduleAskDate},
	StateRescheduleAskDate:    {fieldDate, StateRescheduleAskTime},
	StateRescheduleAskTime:    {fieldTime, StateRescheduleConfirm},
}

// intentEdges is the (state, intent) half of the transition table. OTP
// verification and the three confirmation states only ever move on an
// explicit intent: verification is a gate, not a field, and confirmations
// guard against premature execution.
var intentEdges = map[State]map[Intent]State{
	StateStart: {
		IntentBook:       StateBookingAskService,
		IntentCancel:     StateManageAskPhone,
		IntentUpdate:     StateManageAskPhone,
		IntentReschedule: StateManageAskPhone,
		IntentCancelAll:  StateManageAskPhone,
	},
	StateOTPVerify: {
		IntentOTPSuccess: StateBookingConfirm,
	},
	StateBookingConfirm: {
		IntentConfirm: StateStart,
	},
	StateCancelConfirm: {
		IntentConfirm: StateStart,
	},
	StateRescheduleConfirm: {
		IntentConfirm: StateStart,
	},
}

// Machine drives one conversation. It owns its Context exclusively; the
// surrounding session serializes turns, so no locking happens here.
type Machine struct {
	state  State
	ctx    Context
	logger *logging.Logger
}

// New returns a machine in START with an empty context.
func New(logger *logging.Logger) *Machine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Machine{state: StateStart, logger: logger}
}

// State returns the active state.
func (m *Machine) State() State { return m.state }

// Context exposes the context record for the tool layer. Only the owning
// session may touch it.
func (m *Machine) Context() *Context { return &m.ctx }

// Update applies one turn of input: an optional intent token and an
// optional set of extracted fields. Inputs that match nothing the active
// state expects leave the state unchanged.
func (m *Machine) Update(intent Intent, fields *Fields) Transition {
	old := m.state
	var merged []string

	switch {
	case m.applyIntent(intent):
		// handled entirely by the intent table

	case m.state == StateManageAskPhone:
		merged = m.applyManageLookup(fields)

	case m.state == StateManageSelectBooking && fields != nil && fields.BookingUID != "":
		m.ctx.BookingUID = fields.BookingUID
		merged = append(merged, "booking_uid")
		m.routeManageIntent()

	default:
		merged = m.fastForward(fields)
	}

	changed := m.state != old
	if changed {
		m.logger.Info("fsm transition", "from", old.String(), "to", m.state.String())
	}
	if len(merged) > 0 {
		m.logger.Debug("fsm fields merged", "fields", merged)
	}
	return Transition{From: old, To: m.state, Changed: changed, Merged: merged}
}

// applyIntent consults the intent table. Reaching START from a confirmation
// state resets the context so the next flow starts clean.
func (m *Machine) applyIntent(intent Intent) bool {
	if intent == IntentNone {
		return false
	}
	next, ok := intentEdges[m.state][intent]
	if !ok {
		return false
	}
	if m.state == StateStart {
		m.ctx.Intent = intent
	}
	m.state = next
	if next == StateStart {
		m.ctx.Reset()
	}
	return true
}

// fastForward consumes the awaited field of the current state and keeps
// walking the collect chain as long as the caller supplied the next field
// too. The chain naturally stops at OTP_VERIFY, whose only exit is the
// otp_success intent, so look-ahead can never skip verification.
func (m *Machine) fastForward(fields *Fields) []string {
	var merged []string
	for {
		edge, ok := collectEdges[m.state]
		if !ok {
			break
		}
		v, supplied := fields.value(edge.field)
		if !supplied {
			break
		}
		m.ctx.set(edge.field, v)
		merged = append(merged, edge.field.String())
		m.state = edge.next
	}
	return merged
}

// applyManageLookup handles MANAGE_ASK_PHONE, which branches on the
// cardinality of the supplied booking lookup. No matches keeps the state so
// the caller can re-prompt for another number.
func (m *Machine) applyManageLookup(fields *Fields) []string {
	var merged []string
	if fields == nil {
		return nil
	}
	if fields.Phone != "" {
		m.ctx.Phone = fields.Phone
		merged = append(merged, "phone")
	}
	if !fields.HasBookings {
		return merged
	}
	m.ctx.Bookings = fields.Bookings
	merged = append(merged, "bookings")

	if m.ctx.Intent == IntentCancelAll {
		if len(fields.Bookings) > 0 {
			m.state = StateCancelConfirm
		}
		return merged
	}
	switch len(fields.Bookings) {
	case 0:
		// stay, caller re-prompts
	case 1:
		m.ctx.BookingUID = fields.Bookings[0].UID
		m.routeManageIntent()
	default:
		m.state = StateManageSelectBooking
	}
	return merged
}

// routeManageIntent sends a selected booking down the branch the recorded
// intent asked for.
func (m *Machine) routeManageIntent() {
	switch m.ctx.Intent {
	case IntentCancel:
		m.state = StateCancelConfirm
	case IntentReschedule, IntentUpdate:
		m.state = StateRescheduleAskService
	default:
		m.state = StateStart
	}
}

// PromptFor returns the directive for a state: which field is missing and
// which tool obtains or validates it. It is deterministic in the current
// context, so repeated calls without an intervening Update are identical.
func (m *Machine) PromptFor(s State) string {
	switch s {
	case StateStart:
		return "Greet the user and learn what they want. Call intent_book to start a booking, or intent_manage to update or cancel an existing one. Do not collect details yet."

	case StateBookingAskService:
		return "Ask which service the user would like. Call list_available_services for the catalog and input_service once they choose."

	case StateBookingAskDate:
		return fmt.Sprintf("Service: %s. Ask what day works, then call input_date. Whenever a date is mentioned, call get_availability for it right away.", m.ctx.Service)

	case StateBookingAskTime:
		date := m.ctx.Date
		if date == "" {
			date = "the chosen date"
		}
		return fmt.Sprintf("Service: %s, date: %s. Use get_availability to present open day-parts and slots, then call input_time with the chosen time.", m.ctx.Service, date)

	case StateBookingAskPhone:
		return "Ask for the phone number to attach to the booking and call input_phone."

	case StateOTPAskEmail:
		return "Ask for the user's email address, read it back for confirmation, and only then call send_otp."

	case StateOTPVerify:
		return "Ask the user for the six-digit code and call verify_otp. If it never arrived or they ask for a new one, call resend_otp."

	case StateBookingConfirm:
		return fmt.Sprintf("Confirm the booking: %s on %s at %s for %s. On an explicit yes call create_booking; on a no, ask what to change.",
			m.ctx.Service, m.ctx.Date, m.ctx.Time, m.ctx.Phone)

	case StateManageAskPhone:
		return "Ask for the phone number the booking was made with and call input_phone to look it up."

	case StateManageSelectBooking:
		return fmt.Sprintf("Found %d bookings. Ask the user to pick one, then call select_booking with its reference.", len(m.ctx.Bookings))

	case StateCancelConfirm:
		if m.ctx.Intent == IntentCancelAll {
			return fmt.Sprintf("Warn that all %d appointments will be cancelled and ask for an explicit yes, then call cancel_booking.", len(m.ctx.Bookings))
		}
		return "Ask the user to confirm the cancellation, then call cancel_booking."

	case StateRescheduleAskService:
		return "Rescheduling creates a new booking. Ask which service it is for (or confirm it is unchanged) and call input_service."

	case StateRescheduleAskDate:
		return "Ask for the new date and call input_date, then check availability for it."

	case StateRescheduleAskTime:
		return fmt.Sprintf("Ask for the new time on %s. Use get_availability, then call input_time.", m.ctx.Date)

	case StateRescheduleConfirm:
		return fmt.Sprintf("Confirm the reschedule: %s on %s at %s. On an explicit yes call reschedule_booking.", m.ctx.Service, m.ctx.Date, m.ctx.Time)
	}
	return "Ask how you can help."
}
