package spreadsheet

import (
	"regexp"
	"strings"
)

var (
	datePattern  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	digitPattern = regexp.MustCompile(`\d+`)
)

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// NormalizeRegistrationID keeps the digits of s and drops leading zeros, so
// "009", "9" and "R-0009" compare equal. A value without a non-zero digit
// normalizes to "0".
func NormalizeRegistrationID(s string) string {
	d := strings.TrimLeft(digitsOnly(s), "0")
	if d == "" {
		return "0"
	}
	return d
}

// PadRegistrationID normalizes s and left-pads it with zeros to width.
func PadRegistrationID(s string, width int) string {
	n := NormalizeRegistrationID(s)
	if len(n) >= width {
		return n
	}
	return strings.Repeat("0", width-len(n)) + n
}

// extractDate returns the first YYYY-MM-DD substring of s, or "".
func extractDate(s string) string {
	return datePattern.FindString(s)
}

// extractAge returns the first run of digits in s ("45세" -> "45"), or "".
func extractAge(s string) string {
	return digitPattern.FindString(s)
}
