// Package archive defines the read-only view of a folder-structured mail
// archive consumed by the ingestion pipeline. Bindings for concrete
// container formats implement these interfaces.
package archive

import "time"

// Archive is an opened mail container. It is owned by one ingestion run.
type Archive interface {
	Root() (Folder, error)
	Close() error
}

// Folder is a node of the archive's folder tree.
type Folder interface {
	Name() string
	NumMessages() int
	Message(i int) (Message, error)
	NumFolders() int
	Folder(i int) (Folder, error)
}

// Message exposes the fields of one archived message. Accessors that decode
// content may fail; such a failure is local to the message.
type Message interface {
	Subject() string
	SenderName() string
	PlainTextBody() (string, error)
	HTMLBody() ([]byte, error)
	TransportHeaders() (string, error)
	DeliveryTime() (time.Time, bool)
	NumAttachments() int
	Attachment(i int) (AttachmentView, error)
}

// AttachmentView is the metadata of one attachment. Bindings that cannot
// determine a value return "" or 0 rather than failing.
type AttachmentView interface {
	Name() string
	Size() int64
}
