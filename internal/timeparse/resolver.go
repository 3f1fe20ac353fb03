// Package timeparse turns loosely phrased date and time utterances into
// unambiguous instants. All interpretation happens in a fixed local zone and
// the result is returned in UTC, so no naive datetime ever leaks out.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOMillis is the wire format expected by the scheduling API.
const ISOMillis = "2006-01-02T15:04:05.000Z"

// ParseError reports an utterance that matched none of the recognized
// date or time patterns.
type ParseError struct {
	Field string // "date" or "time"
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("timeparse: could not parse %s %q", e.Field, e.Input)
}

// Resolver resolves free-text date/time phrases against an anchor clock and
// zone. The zero Now defaults to time.Now, so tests inject a fixed clock.
type Resolver struct {
	Zone *time.Location
	Now  func() time.Time
}

// NewResolver builds a resolver for the given IANA zone name, falling back
// to UTC when the zone cannot be loaded.
func NewResolver(zone string) *Resolver {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	return &Resolver{Zone: loc}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now().In(r.zone())
	}
	return time.Now().In(r.zone())
}

func (r *Resolver) zone() *time.Location {
	if r.Zone != nil {
		return r.Zone
	}
	return time.UTC
}

var (
	bareDayRe   = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th)?$`)
	ordinalRe   = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	yearTokenRe = regexp.MustCompile(`\b\d{4}\b`)
	meridiemRe  = regexp.MustCompile(`([AP])\.?M\.?`)
	dotClockRe  = regexp.MustCompile(`(\d)\.(\d)`)
	bareHourRe  = regexp.MustCompile(`^(\d{1,2})\s*(AM|PM)$`)
	tightMerRe  = regexp.MustCompile(`(\d)(AM|PM)$`)
)

// dateLayouts are tried in order once relative keywords and bare day numbers
// have been ruled out. Single-digit layout verbs keep them lenient about
// zero padding.
var dateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"January 2",
	"Jan 2",
	"2 Jan",
	"2 January",
}

// Resolve converts a date phrase and a time phrase into a UTC instant.
func (r *Resolver) Resolve(datePhrase, timePhrase string) (time.Time, error) {
	day, err := r.resolveDate(datePhrase)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := resolveClock(timePhrase)
	if err != nil {
		return time.Time{}, err
	}
	local := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, r.zone())
	return local.UTC(), nil
}

// ResolveISO is Resolve rendered in the millisecond-zero ISO-8601 form the
// scheduling API expects.
func (r *Resolver) ResolveISO(datePhrase, timePhrase string) (string, error) {
	t, err := r.Resolve(datePhrase, timePhrase)
	if err != nil {
		return "", err
	}
	return t.Format(ISOMillis), nil
}

// resolveDate returns the calendar day the phrase names, in the local zone.
func (r *Resolver) resolveDate(phrase string) (time.Time, error) {
	clean := strings.ToLower(strings.TrimSpace(phrase))
	now := r.now()
	today := midnight(now)

	if clean == "" {
		return time.Time{}, &ParseError{Field: "date", Input: phrase}
	}

	// Relative keywords. "day after" must win over "tomorrow" because the
	// common phrasing is "day after tomorrow".
	switch {
	case strings.Contains(clean, "day after"):
		return today.AddDate(0, 0, 2), nil
	case strings.Contains(clean, "tomorrow"):
		return today.AddDate(0, 0, 1), nil
	case strings.Contains(clean, "today"):
		return today, nil
	}

	// Bare day-of-month, e.g. "23" or "23rd". Resolved against the current
	// month; a day already past rolls forward, skipping months where the
	// day number does not exist.
	if m := bareDayRe.FindStringSubmatch(clean); m != nil {
		dayNum, _ := strconv.Atoi(m[1])
		if dayNum >= 1 && dayNum <= 31 {
			year, month := now.Year(), now.Month()
			for i := 0; i < 12; i++ {
				candidate := time.Date(year, month, dayNum, 0, 0, 0, 0, r.zone())
				// time.Date normalizes overflow (Feb 30 -> Mar 2), which
				// signals an invalid day-in-month.
				if candidate.Day() == dayNum && !candidate.Before(today) {
					return candidate, nil
				}
				month++
				if month > 12 {
					month = 1
					year++
				}
			}
		}
		return time.Time{}, &ParseError{Field: "date", Input: phrase}
	}

	// Fixed formats, ordinal suffixes stripped ("Dec 23rd" -> "Dec 23").
	stripped := ordinalRe.ReplaceAllString(clean, "$1")
	hasYear := yearTokenRe.MatchString(phrase)
	for _, layout := range dateLayouts {
		parsed, err := time.ParseInLocation(layout, stripped, r.zone())
		if err != nil {
			continue
		}
		year := parsed.Year()
		if !hasYear {
			year = now.Year()
		} else if year < now.Year() {
			// A stale year from a mis-heard utterance never produces a
			// past booking year.
			year = now.Year()
		}
		candidate := time.Date(year, parsed.Month(), parsed.Day(), 0, 0, 0, 0, r.zone())
		if candidate.Before(today) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		return candidate, nil
	}

	return time.Time{}, &ParseError{Field: "date", Input: phrase}
}

// resolveClock parses the time-of-day phrase into an hour and minute.
func resolveClock(phrase string) (int, int, error) {
	clean := strings.TrimSpace(phrase)
	if clean == "" {
		return 0, 0, &ParseError{Field: "time", Input: phrase}
	}

	// Strict 24-hour form first.
	if t, err := time.Parse("15:04", clean); err == nil {
		return t.Hour(), t.Minute(), nil
	}

	// 12-hour forms: "5 pm", "5pm", "5.30 pm", "5:30 PM", "5 p.m.".
	s := strings.ToUpper(clean)
	s = meridiemRe.ReplaceAllString(s, "${1}M")
	s = dotClockRe.ReplaceAllString(s, "$1:$2")
	s = bareHourRe.ReplaceAllString(s, "$1:00 $2")
	s = tightMerRe.ReplaceAllString(s, "$1 $2")
	if t, err := time.Parse("3:04 PM", s); err == nil {
		return t.Hour(), t.Minute(), nil
	}

	// Last resort: anything with a colon is treated as HH:MM.
	if strings.Contains(clean, ":") {
		parts := strings.SplitN(clean, ":", 3)
		hour, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
		minute, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errH == nil && errM == nil && hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59 {
			return hour, minute, nil
		}
	}

	return 0, 0, &ParseError{Field: "time", Input: phrase}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
