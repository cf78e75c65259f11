package trials

import "strings"

// NormalizePhone reduces a phone number to its digits.
// The provider reports senders without a leading "+", so every stored and
// queried phone goes through this first.
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskPhone keeps the last four digits for info-level logs.
func MaskPhone(s string) string {
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
