// Package identity derives the content-addressed dedupe key and the thread
// key of an archived message.
package identity

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"slices"
	"strings"
	"time"
)

const (
	// UnknownSender stands in for a message without a parsable sender.
	UnknownSender = "unknown"
	// MissingTimestamp stands in for an undated message, so two undated
	// copies of the same message still collide.
	MissingTimestamp = "missing"
	// UnknownThread is the thread of every message without a subject.
	UnknownThread = "unknown"

	// BodyPrefixLen is how many characters of the body feed the dedupe hash.
	BodyPrefixLen = 200

	hashSeparator = "|"
)

var replyMarker = regexp.MustCompile(`(?i)^(?:(?:re|fwd|fw):|\[[^\]]*\]:?)\s*`)

// DedupeHash returns the hex SHA-256 of sender, recipients, subject, send
// time and the first BodyPrefixLen characters of body. Recipient order and
// case never change the result.
func DedupeHash(sender string, recipients []string, subject string, sentAt *time.Time, body string) string {
	if sender == "" {
		sender = UnknownSender
	}
	sent := MissingTimestamp
	if sentAt != nil {
		sent = FormatTime(*sentAt)
	}
	raw := strings.Join([]string{
		sender,
		RecipientsKey(recipients),
		subject,
		sent,
		prefix(body, BodyPrefixLen),
	}, hashSeparator)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RecipientsKey lowercases and sorts recipients and joins them with commas.
func RecipientsKey(recipients []string) string {
	rs := make([]string, len(recipients))
	for i, r := range recipients {
		rs[i] = strings.ToLower(r)
	}
	slices.Sort(rs)
	return strings.Join(rs, ",")
}

// FormatTime renders t the way it is hashed and stored: RFC 3339 in UTC,
// with fractional seconds only when t has them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func prefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// NormalizeSubject strips a leading reply/forward marker ("Re:", "Fwd:",
// "FW:" or a bracketed tag such as "[EXTERNAL]") and returns the trimmed,
// lowercased remainder. With repeat set the strip is applied until no
// marker is left, so "Re: Fwd: X" and "X" normalize alike.
func NormalizeSubject(subject string, repeat bool) string {
	s := strings.TrimSpace(subject)
	for {
		loc := replyMarker.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = strings.TrimSpace(s[loc[1]:])
		if !repeat {
			break
		}
	}
	return strings.ToLower(s)
}

// Threader maps subjects to thread ids.
type Threader struct {
	// SingleStrip removes at most one leading marker. The default strips
	// markers to a fixed point.
	SingleStrip bool
}

// ThreadID returns the hex SHA-1 of the normalized subject. A message
// without a subject belongs to UnknownThread.
func (t Threader) ThreadID(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return UnknownThread
	}
	sum := sha1.Sum([]byte(NormalizeSubject(subject, !t.SingleStrip)))
	return hex.EncodeToString(sum[:])
}

// ThreadID is Threader{}.ThreadID.
func ThreadID(subject string) string {
	return Threader{}.ThreadID(subject)
}
