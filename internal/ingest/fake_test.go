package ingest

import (
	"errors"
	"time"

	"github.com/matheus3301/mailingest/internal/archive"
)

type fakeArchive struct {
	root    *fakeFolder
	rootErr error
}

func (a *fakeArchive) Root() (archive.Folder, error) {
	if a.rootErr != nil {
		return nil, a.rootErr
	}
	return a.root, nil
}

func (a *fakeArchive) Close() error { return nil }

type fakeFolder struct {
	name     string
	messages []*fakeMessage
	folders  []*fakeFolder
}

func (f *fakeFolder) Name() string     { return f.name }
func (f *fakeFolder) NumMessages() int { return len(f.messages) }
func (f *fakeFolder) NumFolders() int  { return len(f.folders) }

func (f *fakeFolder) Message(i int) (archive.Message, error) {
	m := f.messages[i]
	if m.openErr != nil {
		return nil, m.openErr
	}
	if m.panics {
		panic("corrupt node")
	}
	return m, nil
}

func (f *fakeFolder) Folder(i int) (archive.Folder, error) {
	return f.folders[i], nil
}

type fakeMessage struct {
	subject    string
	senderName string
	plain      string
	html       []byte
	htmlErr    error
	headers    string
	sent       time.Time
	undated    bool
	attach     []fakeAttachment

	openErr error
	bodyErr error
	panics  bool
}

func (m *fakeMessage) Subject() string    { return m.subject }
func (m *fakeMessage) SenderName() string { return m.senderName }

func (m *fakeMessage) PlainTextBody() (string, error) {
	return m.plain, m.bodyErr
}

func (m *fakeMessage) HTMLBody() ([]byte, error) {
	return m.html, m.htmlErr
}

func (m *fakeMessage) TransportHeaders() (string, error) {
	return m.headers, nil
}

func (m *fakeMessage) DeliveryTime() (time.Time, bool) {
	if m.undated {
		return time.Time{}, false
	}
	return m.sent, true
}

func (m *fakeMessage) NumAttachments() int { return len(m.attach) }

func (m *fakeMessage) Attachment(i int) (archive.AttachmentView, error) {
	a := m.attach[i]
	if a.err != nil {
		return nil, a.err
	}
	return a, nil
}

type fakeAttachment struct {
	name string
	size int64
	err  error
}

func (a fakeAttachment) Name() string { return a.name }
func (a fakeAttachment) Size() int64  { return a.size }

var errUnreadable = errors.New("unreadable node")

// mail builds a dated message from buyer@nissan.com to sales@acme.com.
func mail(subject, body string) *fakeMessage {
	return &fakeMessage{
		subject:    subject,
		senderName: "Buyer",
		plain:      body,
		headers: "Message-ID: <" + subject + "@nissan.com>\r\n" +
			"From: Buyer <buyer@nissan.com>\r\n" +
			"To: Sales <sales@acme.com>\r\n" +
			"Subject: " + subject + "\r\n",
		sent: time.Date(2024, 3, 5, 9, 30, 0, 0, time.FixedZone("BRT", -3*3600)),
	}
}
