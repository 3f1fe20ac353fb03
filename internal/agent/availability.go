package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tsclabs/salon-voice-ai/internal/scheduling"
	"github.com/tsclabs/salon-voice-ai/internal/timeparse"
)

// ListAvailableServices force-refreshes the catalog and lists it with
// durations.
func (s *Session) ListAvailableServices(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var services []scheduling.Service
	var err error
	if s.deps.Services != nil {
		services, err = s.deps.Services.Get(ctx, true)
	} else {
		services, err = s.deps.Gateway.ListServices(ctx)
	}
	if err != nil || len(services) == 0 {
		s.observeTool(ctx, "list_available_services", "error")
		return "I couldn't fetch the available services right now."
	}

	entries := make([]string, 0, len(services))
	for _, svc := range services {
		entries = append(entries, fmt.Sprintf("%s (%d min)", svc.Title, svc.DurationMinutes))
	}
	s.observeTool(ctx, "list_available_services", "ok")
	return "Available services: " + strings.Join(entries, ", ")
}

// GetAvailability reports open slots for a service on a date. With no
// day-part it answers with which parts of the day are open; with one it
// lists the literal slot times. A past date is shifted to tomorrow with a
// visible note rather than refused.
func (s *Session) GetAvailability(ctx context.Context, date, service, period string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, err := s.findService(ctx, service)
	if err != nil {
		s.observeTool(ctx, "get_availability", "invalid_service")
		return serviceErrorString(service, err)
	}

	// Anchor to noon so the date alone decides the day.
	resolved, err := s.deps.Resolver.Resolve(date, "12:00 PM")
	if err != nil {
		s.observeTool(ctx, "get_availability", "parse_error")
		return timeParseString(err)
	}

	local := resolved.In(s.deps.Zone)
	nowLocal := s.now().In(s.deps.Zone)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, s.deps.Zone)

	notePrefix := ""
	if local.Before(today) {
		local = today.AddDate(0, 0, 1).Add(12 * time.Hour)
		notePrefix = fmt.Sprintf("(Showing availability for tomorrow: %s)\n", local.Format("2006-01-02"))
	}
	if local.After(nowLocal.AddDate(0, 0, s.deps.HorizonDays)) {
		s.observeTool(ctx, "get_availability", "beyond_horizon")
		return "I can only book appointments up to 1 week from today. Please choose a date within one week."
	}

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.deps.Zone)
	dayLabel := dayStart.Format("2006-01-02")

	slots, err := s.listSlots(ctx, svc.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		s.logger.Error("availability check failed", "error", err, "service", svc.Title)
		s.observeTool(ctx, "get_availability", "gateway_error")
		return "What time would you like to schedule?"
	}
	if len(slots) == 0 {
		s.observeTool(ctx, "get_availability", "no_slots")
		return notePrefix + fmt.Sprintf("No slots available on %s. Try another day.", dayLabel)
	}

	localSlots := make([]time.Time, 0, len(slots))
	for _, slot := range slots {
		localSlots = append(localSlots, slot.Start.In(s.deps.Zone))
	}

	cleaned := strings.ToLower(strings.TrimSpace(period))
	if cleaned == "" {
		parts := scheduling.PartsWithSlots(localSlots)
		if len(parts) == 0 {
			s.observeTool(ctx, "get_availability", "no_dayparts")
			return notePrefix + fmt.Sprintf("I have slots on %s, but none fall into morning/afternoon/evening categories.", dayLabel)
		}
		names := make([]string, len(parts))
		for i, p := range parts {
			names[i] = string(p)
		}
		s.observeTool(ctx, "get_availability", "ok")
		return notePrefix + fmt.Sprintf("I have availability in the following parts of the day: %s. Which part do you prefer?",
			strings.Join(names, ", "))
	}

	part, ok := scheduling.ParseDayPart(cleaned)
	if !ok {
		s.observeTool(ctx, "get_availability", "invalid_period")
		return "Please choose one of: morning, afternoon, or evening."
	}

	var matched []string
	for _, slot := range localSlots {
		if scheduling.InPart(slot, part) {
			matched = append(matched, slot.Format("03:04 PM"))
		}
	}
	if len(matched) == 0 {
		s.observeTool(ctx, "get_availability", "no_slots_in_period")
		return notePrefix + fmt.Sprintf("No %s slots available on %s. Try another part of the day.", part, dayLabel)
	}

	s.observeTool(ctx, "get_availability", "ok")
	// All slots go back to the caller; the note keeps the spoken list short
	// while any listed time stays acceptable.
	return fmt.Sprintf("%sHere are all the available %s slots: %s. "+
		"(SYSTEM NOTE: Only verbally list the first %d options to the user. "+
		"However, accept ANY time from the full list above if the user requests it.)",
		notePrefix, part, strings.Join(matched, ", "), s.deps.MaxSlotsShown)
}

// CheckAvailableDays scans the booking horizon and reports which days have
// at least one open slot. Used when the caller asks "when are you free?"
// without naming a date.
func (s *Session) CheckAvailableDays(ctx context.Context, service string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, err := s.findService(ctx, service)
	if err != nil {
		s.observeTool(ctx, "check_available_days", "invalid_service")
		return serviceErrorString(service, err)
	}

	nowLocal := s.now().In(s.deps.Zone)
	from := nowLocal.UTC()
	to := from.AddDate(0, 0, s.deps.HorizonDays)

	slots, err := s.listSlots(ctx, svc.ID, from, to)
	if err != nil {
		s.logger.Error("days check failed", "error", err, "service", svc.Title)
		s.observeTool(ctx, "check_available_days", "gateway_error")
		return "I couldn't check my calendar right now. Please try proposing a specific date."
	}

	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, s.deps.Zone)
	seen := make(map[string]time.Time)
	for _, slot := range slots {
		local := slot.Start.In(s.deps.Zone)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.deps.Zone)
		if day.Before(today) {
			continue
		}
		seen[day.Format("2006-01-02")] = day
	}
	if len(seen) == 0 {
		s.observeTool(ctx, "check_available_days", "no_days")
		return fmt.Sprintf("I don't have any openings in the next %d days.", s.deps.HorizonDays)
	}

	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	readable := make([]string, len(days))
	for i, d := range days {
		readable[i] = d.Format("Monday, January 02")
	}

	s.observeTool(ctx, "check_available_days", "ok")
	return fmt.Sprintf("I found availability on these days: %s. "+
		"(SYSTEM NOTE: Verbally list only the first %d days to the user. "+
		"But if the user asks for a later date that is in this list, say yes and proceed.)",
		strings.Join(readable, ", "), s.deps.MaxSlotsShown)
}

// listSlots wraps the gateway call with latency observation.
func (s *Session) listSlots(ctx context.Context, serviceID int, from, to time.Time) ([]scheduling.Slot, error) {
	start := time.Now()
	slots, err := s.deps.Gateway.ListSlots(ctx, serviceID, from.UTC(), to.UTC())
	s.deps.Metrics.ObserveGatewayLatency("list_slots", time.Since(start).Seconds())
	return slots, err
}

// timeParseString phrases an unresolvable date or time for the caller.
func timeParseString(err error) string {
	if perr, ok := err.(*timeparse.ParseError); ok && perr.Field == "time" {
		return "I couldn't understand that time. Could you say it again, like 'five thirty PM'?"
	}
	return "I couldn't understand that date. Could you say it again, like 'tomorrow' or 'December 20th'?"
}
