package agent

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/tsclabs/salon-voice-ai/internal/notify"
	"github.com/tsclabs/salon-voice-ai/internal/otp"
	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
	"github.com/tsclabs/salon-voice-ai/internal/timeparse"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

var testZone = time.FixedZone("IST", 5*3600+1800)

// Sunday 2024-12-15 10:00 IST.
var testNow = time.Date(2024, 12, 15, 10, 0, 0, 0, testZone)

type fakeGateway struct {
	services []scheduling.Service
	slots    []scheduling.Slot
	bookings []scheduling.Booking

	slotsErr  error
	createErr error
	cancelErr error

	created   []scheduling.CreateBookingRequest
	cancelled []string
}

func (g *fakeGateway) ListServices(ctx context.Context) ([]scheduling.Service, error) {
	return g.services, nil
}

func (g *fakeGateway) ListSlots(ctx context.Context, serviceID int, from, to time.Time) ([]scheduling.Slot, error) {
	if g.slotsErr != nil {
		return nil, g.slotsErr
	}
	return g.slots, nil
}

func (g *fakeGateway) CreateBooking(ctx context.Context, req scheduling.CreateBookingRequest) (*scheduling.BookingConfirmation, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	return &scheduling.BookingConfirmation{UID: "bk_new"}, nil
}

func (g *fakeGateway) CancelBooking(ctx context.Context, uid, reason string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, uid)
	return nil
}

func (g *fakeGateway) ListUpcomingBookings(ctx context.Context, phone string) ([]scheduling.Booking, error) {
	return g.bookings, nil
}

type capturingSender struct {
	sent []notify.EmailMessage
}

func (c *capturingSender) Send(ctx context.Context, msg notify.EmailMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

func defaultServices() []scheduling.Service {
	return []scheduling.Service{
		{ID: 101, Title: "Haircut", Slug: "haircut", DurationMinutes: 45},
		{ID: 102, Title: "Hair Spa", Slug: "hair-spa", DurationMinutes: 60},
	}
}

type testEnv struct {
	session *Session
	gateway *fakeGateway
	sender  *capturingSender
	clock   *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := testNow
	clock := &now
	nowFn := func() time.Time { return *clock }

	gw := &fakeGateway{services: defaultServices()}
	sender := &capturingSender{}
	logger := logging.New("error")

	guard := otp.NewGuard()
	guard.Now = nowFn

	session := NewSession(Deps{
		Gateway:  gw,
		Notifier: notify.NewService(sender, "Glow Salon", 5*time.Minute, logger),
		Resolver: &timeparse.Resolver{Zone: testZone, Now: nowFn},
		Guard:    guard,
		Logger:   logger,
		Zone:     testZone,
		DialCode: "+91",
		Now:      nowFn,
	})
	return &testEnv{session: session, gateway: gw, sender: sender, clock: clock}
}

var codeRe = regexp.MustCompile(`\b(\d{6})\b`)

// runs the flow up to a verified OTP, returning the verified email.
func (e *testEnv) bookThroughOTP(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	e.session.IntentBook(ctx)
	e.session.InputService(ctx, "haircut")
	e.session.InputDate(ctx, "tomorrow")
	e.session.InputTime(ctx, "5 pm")
	e.session.InputPhone(ctx, "+91 98765 43210")

	e.session.SendOTP(ctx, "guest@example.com")
	if len(e.sender.sent) != 1 {
		t.Fatalf("expected 1 OTP email, got %d", len(e.sender.sent))
	}
	m := codeRe.FindStringSubmatch(e.sender.sent[0].Body)
	if m == nil {
		t.Fatalf("no code in OTP email body %q", e.sender.sent[0].Body)
	}
	reply := e.session.VerifyOTP(ctx, m[1])
	if !strings.Contains(reply, "verified") {
		t.Fatalf("VerifyOTP = %q", reply)
	}
}

func TestFullBookingFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bookThroughOTP(t)
	if got := env.session.State(); got != "BOOKING_CONFIRM" {
		t.Fatalf("state after OTP = %s, want BOOKING_CONFIRM", got)
	}

	reply := env.session.CreateBooking(ctx, "tomorrow", "5 pm", "9876543210", "Haircut")
	if !strings.Contains(reply, "confirmed") {
		t.Fatalf("CreateBooking = %q", reply)
	}
	if len(env.gateway.created) != 1 {
		t.Fatalf("expected 1 booking created, got %d", len(env.gateway.created))
	}

	req := env.gateway.created[0]
	// tomorrow 17:00 IST = 11:30 UTC on 2024-12-16
	want := time.Date(2024, 12, 16, 11, 30, 0, 0, time.UTC)
	if !req.Start.Equal(want) {
		t.Errorf("start = %v, want %v", req.Start, want)
	}
	if req.AttendeePhone != "+919876543210" {
		t.Errorf("phone = %q, want normalized +91 form", req.AttendeePhone)
	}
	if req.AttendeeEmail != "guest@example.com" {
		t.Errorf("email = %q", req.AttendeeEmail)
	}

	// OTP email plus confirmation email.
	if len(env.sender.sent) != 2 {
		t.Errorf("expected 2 emails, got %d", len(env.sender.sent))
	}
	if got := env.session.State(); got != "START" {
		t.Errorf("state after booking = %s, want START", got)
	}
}

func TestMergeEventRecordsAllFields(t *testing.T) {
	env := newTestEnv(t)
	store, _ := newTestTranscript(t)
	env.session.deps.Transcript = store
	ctx := context.Background()

	// A lookup that finds no bookings keeps the state, so the phone and
	// bookings fields land in a single merge event.
	env.session.IntentManage(ctx, "cancel")
	env.session.InputPhone(ctx, "9876543210")

	events, err := store.List(ctx, env.session.ID, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var merge *TranscriptEvent
	for i := range events {
		if events[i].Kind == "merge" {
			merge = &events[i]
			break
		}
	}
	if merge == nil {
		t.Fatalf("no merge event in transcript: %+v", events)
	}
	if merge.Detail != "phone,bookings" {
		t.Errorf("merge detail = %q, want phone,bookings", merge.Detail)
	}
}

func TestSendOTPCorrectedEmailWinsBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.session.IntentBook(ctx)
	env.session.InputService(ctx, "haircut")
	env.session.InputDate(ctx, "tomorrow")
	env.session.InputTime(ctx, "5 pm")
	env.session.InputPhone(ctx, "+91 98765 43210")

	// The guest misheard their own address first, then corrects it.
	env.session.SendOTP(ctx, "wrong@example.com")
	env.session.SendOTP(ctx, "right@example.com")
	if len(env.sender.sent) != 2 {
		t.Fatalf("expected 2 OTP emails, got %d", len(env.sender.sent))
	}
	if got := env.sender.sent[1].To; got != "right@example.com" {
		t.Fatalf("second OTP went to %q", got)
	}

	m := codeRe.FindStringSubmatch(env.sender.sent[1].Body)
	if m == nil {
		t.Fatalf("no code in OTP email body %q", env.sender.sent[1].Body)
	}
	if reply := env.session.VerifyOTP(ctx, m[1]); !strings.Contains(reply, "verified") {
		t.Fatalf("VerifyOTP = %q", reply)
	}

	env.session.CreateBooking(ctx, "tomorrow", "5 pm", "9876543210", "Haircut")
	if len(env.gateway.created) != 1 {
		t.Fatalf("expected 1 booking created, got %d", len(env.gateway.created))
	}
	if got := env.gateway.created[0].AttendeeEmail; got != "right@example.com" {
		t.Errorf("booking email = %q, want the corrected address", got)
	}
	if len(env.sender.sent) != 3 {
		t.Fatalf("expected a confirmation email, got %d emails", len(env.sender.sent))
	}
	if got := env.sender.sent[2].To; got != "right@example.com" {
		t.Errorf("confirmation went to %q, want the corrected address", got)
	}
}

func TestCreateBookingRequiresVerifiedOTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reply := env.session.CreateBooking(ctx, "tomorrow", "5 pm", "9876543210", "Haircut")
	if !strings.Contains(reply, "verify your email") {
		t.Fatalf("CreateBooking = %q, want verification demand", reply)
	}
	if len(env.gateway.created) != 0 {
		t.Error("booking must not reach the gateway without verification")
	}
}

func TestCreateBookingRejectsVagueTime(t *testing.T) {
	env := newTestEnv(t)

	reply := env.session.CreateBooking(context.Background(), "tomorrow", "evening", "9876543210", "Haircut")
	if !strings.Contains(reply, "At what time in the evening") {
		t.Fatalf("CreateBooking = %q", reply)
	}
	if len(env.gateway.created) != 0 {
		t.Error("vague time must not reach the gateway")
	}
}

func TestCreateBookingHorizon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reply := env.session.CreateBooking(ctx, "2024-12-30", "5 pm", "9876543210", "Haircut")
	if !strings.Contains(reply, "up to 1 week") {
		t.Fatalf("beyond horizon reply = %q", reply)
	}
	if len(env.gateway.created) != 0 {
		t.Error("out-of-horizon bookings must not reach the gateway")
	}

	// Date phrases roll past dates forward, so the past branch is only
	// reachable with an already-resolved instant.
	if msg := env.session.checkHorizon(testNow.AddDate(0, 0, -1)); !strings.Contains(msg, "can't book in the past") {
		t.Fatalf("past instant reply = %q", msg)
	}
}

func TestCreateBookingUnknownService(t *testing.T) {
	env := newTestEnv(t)

	reply := env.session.CreateBooking(context.Background(), "tomorrow", "5 pm", "9876543210", "Tattoo")
	if !strings.Contains(reply, "Haircut") || !strings.Contains(reply, "Hair Spa") {
		t.Fatalf("expected alternatives in reply, got %q", reply)
	}
}

func TestCreateBookingGatewayFailureKeepsState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.bookThroughOTP(t)
	env.gateway.createErr = &scheduling.GatewayError{Op: "create booking", StatusCode: 500}

	reply := env.session.CreateBooking(ctx, "tomorrow", "5 pm", "9876543210", "Haircut")
	if !strings.Contains(reply, "different time slot") {
		t.Fatalf("CreateBooking = %q", reply)
	}
	if got := env.session.State(); got != "BOOKING_CONFIRM" {
		t.Errorf("state after gateway failure = %s, want BOOKING_CONFIRM (unchanged)", got)
	}
}

func TestGetAvailabilityPeriods(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 2024-12-16 10:00 and 18:00 IST as UTC instants.
	env.gateway.slots = []scheduling.Slot{
		{Start: time.Date(2024, 12, 16, 4, 30, 0, 0, time.UTC)},
		{Start: time.Date(2024, 12, 16, 12, 30, 0, 0, time.UTC)},
	}

	reply := env.session.GetAvailability(ctx, "tomorrow", "Haircut", "")
	if !strings.Contains(reply, "morning") || !strings.Contains(reply, "evening") {
		t.Fatalf("expected morning and evening offered, got %q", reply)
	}
	if strings.Contains(reply, "afternoon") {
		t.Errorf("afternoon should not be offered, got %q", reply)
	}

	reply = env.session.GetAvailability(ctx, "tomorrow", "Haircut", "evening")
	if !strings.Contains(reply, "06:00 PM") {
		t.Fatalf("expected 06:00 PM slot, got %q", reply)
	}
	if !strings.Contains(reply, "SYSTEM NOTE") {
		t.Errorf("expected system note, got %q", reply)
	}

	reply = env.session.GetAvailability(ctx, "tomorrow", "Haircut", "nighttime")
	if !strings.Contains(reply, "morning, afternoon, or evening") {
		t.Fatalf("invalid period reply = %q", reply)
	}
}

func TestGetAvailabilityPastDateShiftsToTomorrow(t *testing.T) {
	// Date phrases roll forward on their own, so a past resolution only
	// happens when the calendar moved under a long-lived session. Skew the
	// session clock two days ahead of the resolver to simulate that.
	gw := &fakeGateway{
		services: defaultServices(),
		slots:    []scheduling.Slot{{Start: time.Date(2024, 12, 18, 4, 30, 0, 0, time.UTC)}},
	}
	logger := logging.New("error")
	session := NewSession(Deps{
		Gateway:  gw,
		Resolver: &timeparse.Resolver{Zone: testZone, Now: func() time.Time { return testNow }},
		Logger:   logger,
		Zone:     testZone,
		DialCode: "+91",
		Now:      func() time.Time { return testNow.AddDate(0, 0, 2) },
	})

	reply := session.GetAvailability(context.Background(), "today", "Haircut", "")
	if !strings.Contains(reply, "Showing availability for tomorrow: 2024-12-18") {
		t.Fatalf("expected tomorrow note, got %q", reply)
	}
}

func TestGetAvailabilityUnparseableDate(t *testing.T) {
	env := newTestEnv(t)

	reply := env.session.GetAvailability(context.Background(), "whenever works", "Haircut", "")
	if !strings.Contains(reply, "couldn't understand that date") {
		t.Fatalf("expected parse failure reply, got %q", reply)
	}
}

func TestCheckAvailableDays(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.slots = []scheduling.Slot{
		{Start: time.Date(2024, 12, 16, 4, 30, 0, 0, time.UTC)},
		{Start: time.Date(2024, 12, 16, 5, 0, 0, 0, time.UTC)},
		{Start: time.Date(2024, 12, 18, 4, 30, 0, 0, time.UTC)},
	}

	reply := env.session.CheckAvailableDays(context.Background(), "Haircut")
	if !strings.Contains(reply, "Monday, December 16") {
		t.Fatalf("expected December 16, got %q", reply)
	}
	if !strings.Contains(reply, "Wednesday, December 18") {
		t.Fatalf("expected December 18, got %q", reply)
	}

	env.gateway.slots = nil
	reply = env.session.CheckAvailableDays(context.Background(), "Haircut")
	if !strings.Contains(reply, "don't have any openings") {
		t.Fatalf("expected no-openings reply, got %q", reply)
	}
}

func TestManageCancelFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.bookings = []scheduling.Booking{
		{UID: "bk_1", Title: "Haircut", Start: time.Date(2024, 12, 16, 4, 30, 0, 0, time.UTC), AttendeePhone: "9876543210"},
		{UID: "bk_2", Title: "Hair Spa", Start: time.Date(2024, 12, 17, 4, 30, 0, 0, time.UTC), AttendeePhone: "9876543210"},
	}

	env.session.IntentManage(ctx, "cancel")
	if got := env.session.State(); got != "MANAGE_ASK_PHONE" {
		t.Fatalf("state = %s", got)
	}

	env.session.InputPhone(ctx, "9876543210")
	if got := env.session.State(); got != "MANAGE_SELECT_BOOKING" {
		t.Fatalf("two matches should require selection, state = %s", got)
	}

	env.session.SelectBooking(ctx, "bk_2")
	if got := env.session.State(); got != "CANCEL_CONFIRM" {
		t.Fatalf("state = %s, want CANCEL_CONFIRM", got)
	}

	reply := env.session.CancelBooking(ctx, "bk_2", "")
	if !strings.Contains(reply, "cancelled successfully") {
		t.Fatalf("CancelBooking = %q", reply)
	}
	if len(env.gateway.cancelled) != 1 || env.gateway.cancelled[0] != "bk_2" {
		t.Errorf("cancelled = %v", env.gateway.cancelled)
	}
	if got := env.session.State(); got != "START" {
		t.Errorf("state after cancel = %s, want START", got)
	}
}

func TestManagePhoneNoMatchesStays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.session.IntentManage(ctx, "cancel")
	reply := env.session.InputPhone(ctx, "9876543210")
	if !strings.Contains(reply, "couldn't find any bookings") {
		t.Fatalf("InputPhone = %q", reply)
	}
	if got := env.session.State(); got != "MANAGE_ASK_PHONE" {
		t.Errorf("state = %s, want MANAGE_ASK_PHONE", got)
	}
}

func TestCancelAllBookings(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.bookings = []scheduling.Booking{
		{UID: "bk_1", Title: "Haircut", Start: testNow.Add(24 * time.Hour)},
		{UID: "bk_2", Title: "Hair Spa", Start: testNow.Add(48 * time.Hour)},
	}

	reply := env.session.CancelAllBookings(context.Background(), "9876543210")
	if !strings.Contains(reply, "All 2") {
		t.Fatalf("CancelAllBookings = %q", reply)
	}
	if len(env.gateway.cancelled) != 2 {
		t.Errorf("cancelled %d bookings, want 2", len(env.gateway.cancelled))
	}
}

func TestRescheduleBooking(t *testing.T) {
	env := newTestEnv(t)

	reply := env.session.RescheduleBooking(context.Background(), "bk_1", "tomorrow", "11:00", "9876543210", "Hair Spa")
	if !strings.Contains(reply, "rescheduled") {
		t.Fatalf("RescheduleBooking = %q", reply)
	}
	if len(env.gateway.cancelled) != 1 || env.gateway.cancelled[0] != "bk_1" {
		t.Errorf("cancelled = %v", env.gateway.cancelled)
	}
	if len(env.gateway.created) != 1 {
		t.Fatalf("created = %d, want 1", len(env.gateway.created))
	}
	if env.gateway.created[0].ServiceSlug != "hair-spa" {
		t.Errorf("slug = %q", env.gateway.created[0].ServiceSlug)
	}
}

func TestRescheduleCancelFailureStopsEarly(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.cancelErr = errors.New("boom")

	reply := env.session.RescheduleBooking(context.Background(), "bk_1", "tomorrow", "11:00", "9876543210", "Haircut")
	if !strings.Contains(reply, "couldn't cancel your existing booking") {
		t.Fatalf("RescheduleBooking = %q", reply)
	}
	if len(env.gateway.created) != 0 {
		t.Error("no new booking should be created when cancel fails")
	}
}

func TestResendOTPThrottling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.session.IntentBook(ctx)
	env.session.InputService(ctx, "haircut")
	env.session.InputDate(ctx, "tomorrow")
	env.session.InputTime(ctx, "5 pm")
	env.session.InputPhone(ctx, "9876543210")
	env.session.SendOTP(ctx, "guest@example.com")

	// Immediate resend hits the cooldown.
	reply := env.session.ResendOTP(ctx)
	if !strings.Contains(reply, "wait 30 seconds") {
		t.Fatalf("cooldown reply = %q", reply)
	}

	// Three spaced resends succeed, the fourth is refused.
	for i := 0; i < 3; i++ {
		*env.clock = env.clock.Add(time.Minute)
		reply = env.session.ResendOTP(ctx)
		if !strings.Contains(reply, "new verification code") {
			t.Fatalf("resend %d = %q", i+1, reply)
		}
	}
	*env.clock = env.clock.Add(time.Minute)
	reply = env.session.ResendOTP(ctx)
	if !strings.Contains(reply, "try again after some time") {
		t.Fatalf("exhausted reply = %q", reply)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.session.IntentBook(ctx)
	env.session.InputService(ctx, "haircut")
	env.session.InputDate(ctx, "tomorrow")
	env.session.InputTime(ctx, "5 pm")
	env.session.InputPhone(ctx, "9876543210")
	env.session.SendOTP(ctx, "guest@example.com")

	m := codeRe.FindStringSubmatch(env.sender.sent[0].Body)
	if m == nil {
		t.Fatal("no code in OTP email")
	}

	*env.clock = env.clock.Add(6 * time.Minute)
	reply := env.session.VerifyOTP(ctx, m[1])
	if !strings.Contains(reply, "expired") {
		t.Fatalf("VerifyOTP = %q", reply)
	}
	if got := env.session.State(); got != "OTP_VERIFY" {
		t.Errorf("state = %s, want OTP_VERIFY", got)
	}
}

func TestIdlePromptDoesNotMutate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.session.IntentBook(ctx)
	before := env.session.State()
	p1 := env.session.IdlePrompt()
	p2 := env.session.IdlePrompt()
	if p1 != p2 {
		t.Errorf("idle prompt not stable: %q vs %q", p1, p2)
	}
	if env.session.State() != before {
		t.Errorf("idle prompt mutated state")
	}
}

func TestIntentManageUnknownKind(t *testing.T) {
	env := newTestEnv(t)

	reply := env.session.IntentManage(context.Background(), "banana")
	if !strings.Contains(reply, "cancel, update, or reschedule") {
		t.Fatalf("IntentManage = %q", reply)
	}
	if got := env.session.State(); got != "START" {
		t.Errorf("state = %s, want START", got)
	}
}
