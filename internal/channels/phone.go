package channels

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	digits := phoneDigitsRe.FindAllString(value, -1)
	return strings.Join(digits, "")
}

// NormalizeE164 converts a raw phone value to canonical +<digits> form.
// Separators and punctuation are stripped; bare local-format numbers (leading
// zero or short national numbers) are given the clinic's default country code.
func NormalizeE164(value, defaultCountryCode string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	hadPlus := strings.HasPrefix(value, "+")
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	if hadPlus {
		return "+" + digits
	}
	// International format dialed with 00 instead of +.
	if strings.HasPrefix(digits, "00") {
		return "+" + strings.TrimPrefix(digits, "00")
	}
	cc := sanitizePhone(defaultCountryCode)
	if cc != "" {
		// Local format with trunk zero, e.g. 0501234567.
		if strings.HasPrefix(digits, "0") {
			return "+" + cc + strings.TrimPrefix(digits, "0")
		}
		// Already carries the country code without a plus.
		if strings.HasPrefix(digits, cc) {
			return "+" + digits
		}
		// Bare national number, e.g. 501234567.
		if len(digits) <= 10 {
			return "+" + cc + digits
		}
	}
	return "+" + digits
}

// MaskPhone returns the last 4 digits of a phone number for logging.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
