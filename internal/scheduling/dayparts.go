package scheduling

import "time"

// DayPart buckets slots into the conversational parts of a day.
type DayPart string

const (
	Morning   DayPart = "morning"
	Afternoon DayPart = "afternoon"
	Evening   DayPart = "evening"
)

// DayParts lists the buckets in presentation order.
func DayParts() []DayPart {
	return []DayPart{Morning, Afternoon, Evening}
}

// ParseDayPart normalizes a user-supplied day-part name.
func ParseDayPart(s string) (DayPart, bool) {
	switch DayPart(s) {
	case Morning, Afternoon, Evening:
		return DayPart(s), true
	}
	return "", false
}

// InPart reports whether a local time falls inside the given bucket:
// morning [06,12), afternoon [12,17), evening [17,22). Hours outside all
// three windows belong to no bucket but the slot itself is still bookable
// by a literal time match.
func InPart(t time.Time, p DayPart) bool {
	h := t.Hour()
	switch p {
	case Morning:
		return 6 <= h && h < 12
	case Afternoon:
		return 12 <= h && h < 17
	case Evening:
		return 17 <= h && h < 22
	}
	return false
}

// BucketSlots groups local slot times by day-part, preserving order within
// each bucket. Slots outside every window are dropped from the result.
func BucketSlots(slots []time.Time) map[DayPart][]time.Time {
	out := make(map[DayPart][]time.Time)
	for _, s := range slots {
		for _, p := range DayParts() {
			if InPart(s, p) {
				out[p] = append(out[p], s)
				break
			}
		}
	}
	return out
}

// PartsWithSlots returns, in presentation order, the day-parts that have at
// least one slot.
func PartsWithSlots(slots []time.Time) []DayPart {
	buckets := BucketSlots(slots)
	var parts []DayPart
	for _, p := range DayParts() {
		if len(buckets[p]) > 0 {
			parts = append(parts, p)
		}
	}
	return parts
}
