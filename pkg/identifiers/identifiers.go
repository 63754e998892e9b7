// Package identifiers cleans up the book identifiers carried into sidecar
// metadata.
package identifiers

import (
	"strings"
	"unicode"
)

// NormalizeISBN strips an "ISBN" prefix, hyphens and spaces, leaving digits
// and an upper-case check character.
func NormalizeISBN(value string) string {
	value = strings.TrimSpace(strings.ToUpper(value))
	value = strings.TrimPrefix(value, "ISBN:")
	value = strings.TrimPrefix(value, "ISBN")

	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) || r == 'X' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ISBN returns the normalized form of value and whether its checksum holds.
func ISBN(value string) (string, bool) {
	n := NormalizeISBN(value)
	switch len(n) {
	case 10:
		return n, validISBN10(n)
	case 13:
		return n, validISBN13(n)
	}
	return n, false
}

// ISBN-10 uses modulo 11 with weights 10 down to 1; X is only valid last.
func validISBN10(isbn string) bool {
	sum := 0
	for i, r := range isbn {
		d := int(r - '0')
		switch {
		case r == 'X' && i == 9:
			d = 10
		case !unicode.IsDigit(r):
			return false
		}
		sum += d * (10 - i)
	}
	return sum%11 == 0
}

func validISBN13(isbn string) bool {
	sum := 0
	for i, r := range isbn {
		if !unicode.IsDigit(r) {
			return false
		}
		d := int(r - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return sum%10 == 0
}
