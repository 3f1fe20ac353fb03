package scheduling

import "strings"

// DefaultDialCode is prepended to normalized national numbers.
const DefaultDialCode = "+91"

// NormalizePhone reduces any spoken or formatted phone number to the fixed
// dial-code-plus-last-ten-digits form used for attendee matching. With an
// empty dialCode the default applies.
func NormalizePhone(phone, dialCode string) string {
	if dialCode == "" {
		dialCode = DefaultDialCode
	}
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return dialCode + digits
}
