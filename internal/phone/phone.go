// Package phone normalizes and compares E.164-style phone numbers.
package phone

import (
	"regexp"
	"strings"
)

// DefaultCountryCode is prefixed to bare 10-digit numbers.
const DefaultCountryCode = "1"

var (
	formatChars = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "", "\t", "")
	e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

// Normalize returns the canonical form of raw: formatting stripped,
// a 10-digit number gets +1, anything else without a leading + gets one.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	p := formatChars.Replace(strings.TrimSpace(raw))
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "+") {
		return p
	}
	if len(p) == 10 && isDigits(p) {
		return "+" + DefaultCountryCode + p
	}
	return "+" + p
}

// Variants returns every form under which p may have been stored:
// the raw input, the normalized form, and the normalized form without +.
// Duplicates are removed and order is stable.
func Variants(p string) []string {
	raw := strings.TrimSpace(p)
	n := Normalize(p)
	candidates := []string{raw, n, strings.TrimPrefix(n, "+"), "+" + strings.TrimPrefix(raw, "+")}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || c == "+" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Equal reports whether a and b denote the same number.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return Normalize(a) == Normalize(b)
}

// WithoutPlus returns the normalized form of p with the leading + removed.
func WithoutPlus(p string) string {
	return strings.TrimPrefix(Normalize(p), "+")
}

// Valid reports whether p looks like an international number.
func Valid(p string) bool {
	return e164Pattern.MatchString(formatChars.Replace(strings.TrimSpace(p)))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
