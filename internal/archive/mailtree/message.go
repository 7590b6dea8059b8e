package mailtree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/matheus3301/mailingest/internal/archive"
)

var foldedLine = regexp.MustCompile(`\r?\n[ \t]+`)

var blankLine = regexp.MustCompile(`\n\r?\n`)

type attachment struct {
	name string
	size int64
}

func (a attachment) Name() string { return a.name }
func (a attachment) Size() int64  { return a.size }

type parsedMessage struct {
	subject     string
	senderName  string
	headers     string
	plain       string
	html        []byte
	date        time.Time
	hasDate     bool
	attachments []attachment
}

func (m *parsedMessage) Subject() string                   { return m.subject }
func (m *parsedMessage) SenderName() string                { return m.senderName }
func (m *parsedMessage) PlainTextBody() (string, error)    { return m.plain, nil }
func (m *parsedMessage) HTMLBody() ([]byte, error)         { return m.html, nil }
func (m *parsedMessage) TransportHeaders() (string, error) { return m.headers, nil }
func (m *parsedMessage) DeliveryTime() (time.Time, bool)   { return m.date, m.hasDate }
func (m *parsedMessage) NumAttachments() int               { return len(m.attachments) }

func (m *parsedMessage) Attachment(i int) (archive.AttachmentView, error) {
	if i < 0 || i >= len(m.attachments) {
		return nil, fmt.Errorf("attachment index %d out of range", i)
	}
	return m.attachments[i], nil
}

// parse decodes one RFC 5322 message. Transport headers are kept raw with
// folded lines joined, so line-anchored field lookups see whole values.
func parse(raw []byte) (*parsedMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty message")
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer func() { _ = mr.Close() }()

	m := &parsedMessage{headers: foldedLine.ReplaceAllString(string(rawHeader(raw)), " ")}

	if s, err := mr.Header.Subject(); err == nil {
		m.subject = s
	} else {
		m.subject = mr.Header.Get("Subject")
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		m.senderName = from[0].Name
	}
	if d, err := mr.Header.Date(); err == nil && !d.IsZero() {
		m.date, m.hasDate = d, true
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("read part: %w", err)
		}
		if p == nil {
			break
		}
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("read %s part: %w", ct, err)
			}
			switch {
			case ct == "text/html" && m.html == nil:
				m.html = body
			case (ct == "text/plain" || ct == "") && m.plain == "":
				m.plain = string(body)
			}
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			n, err := io.Copy(io.Discard, p.Body)
			if err != nil {
				return nil, fmt.Errorf("read attachment %q: %w", name, err)
			}
			m.attachments = append(m.attachments, attachment{name: name, size: n})
		}
	}
	return m, nil
}

// rawHeader returns the header block: everything before the first blank
// line, whichever line ending it uses.
func rawHeader(raw []byte) []byte {
	if bytes.HasPrefix(raw, []byte("\n")) || bytes.HasPrefix(raw, []byte("\r\n")) {
		return nil
	}
	loc := blankLine.FindIndex(raw)
	if loc == nil {
		return raw
	}
	return bytes.TrimSuffix(raw[:loc[0]], []byte("\r"))
}
