// Package phone normalizes and checks Bangladesh mobile numbers.  Numbers
// are stored as 11 digits starting with 01.
package phone

import (
	"regexp"
	"strings"
)

var mobile = regexp.MustCompile(`^01[3-9][0-9]{8}$`)

// Normalize strips everything but digits and rewrites the 880 country
// prefix to the local leading zero.  The result is not validated.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if strings.HasPrefix(d, "880") && len(d) == 13 {
		d = "0" + d[3:]
	}
	return d
}

// Valid reports whether a normalized number is a Bangladesh mobile number.
func Valid(p string) bool {
	return mobile.MatchString(p)
}

// Mask hides the middle digits, keeping the first and last three, for
// logging and the notification ledger.
func Mask(p string) string {
	if len(p) <= 6 {
		return strings.Repeat("*", len(p))
	}
	return p[:3] + strings.Repeat("*", len(p)-6) + p[len(p)-3:]
}

// International returns the number with the 880 country code and no plus
// sign, the form the messaging gateways expect.
func International(p string) string {
	if strings.HasPrefix(p, "0") {
		return "88" + p
	}
	return p
}
