// Package phone normalizes phone numbers to strict E.164.
package phone

import (
	"strings"

	"tg-gateway/backend/internal/platform/apperr"
)

const minDigits = 10

// Validation messages, surfaced verbatim to API callers.
const (
	MsgRequired = "Phone number is required."
	MsgNoPlus   = "Phone must be in E.164 format: +<country><number> (e.g. +79001234567)."
	MsgDigits   = "Phone must contain only + followed by digits (E.164)."
	MsgTooShort = "Phone number too short for E.164."
)

// Normalize keeps only digits and '+' from raw, then requires a leading '+' followed by at least 10 digits.
// Returns "+<digits>" or a validation error with code invalid_phone.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", invalid(MsgRequired)
	}
	kept := keep(s)
	if !strings.HasPrefix(kept, "+") {
		return "", invalid(MsgNoPlus)
	}
	digits := kept[1:]
	if digits == "" || !allDigits(digits) {
		return "", invalid(MsgDigits)
	}
	if len(digits) < minDigits {
		return "", invalid(MsgTooShort)
	}
	return "+" + digits, nil
}

// LooksLikePhone reports whether s has the shape of a phone number: after dropping separators
// it starts with '+', is longer than 5 characters and holds only digits and '+'.
func LooksLikePhone(s string) bool {
	kept := keep(strings.TrimSpace(s))
	return strings.HasPrefix(kept, "+") && len(kept) > 5
}

// Equal compares two phones on their normalized form. Unparseable input falls back to a trimmed comparison.
func Equal(a, b string) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return na == nb
}

func keep(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func invalid(msg string) error {
	return apperr.New(apperr.KindValidation, "invalid_phone", msg)
}
