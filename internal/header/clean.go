// Package header extracts named fields and addresses from raw transport
// headers, and cleans the padding archive bindings leave in text fields.
package header

import "strings"

// Clean removes NUL bytes and other C0 control padding (tab, CR and LF are
// kept) and trims surrounding whitespace. Empty input yields "".
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// CleanBytes is Clean for raw byte bodies. Invalid UTF-8 sequences are dropped.
func CleanBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return Clean(strings.ToValidUTF8(string(b), ""))
}
