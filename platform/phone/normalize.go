// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "IN"

// NormalizeMobile reduces input to a bare 10-digit Indian mobile number.
// It drops every non-digit, strips a leading 91 from 12-digit values and a
// trunk 0 from 11-digit values, and keeps the last ten digits. ok is false
// when fewer than ten digits remain.
func NormalizeMobile(input string) (string, bool) {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// IsValidMobile reports whether a 10-digit national number is a valid
// Indian mobile according to libphonenumber metadata.
func IsValidMobile(national string) bool {
	number, err := phonenumbers.Parse(national, defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(number) &&
		phonenumbers.GetNumberType(number) == phonenumbers.MOBILE
}
