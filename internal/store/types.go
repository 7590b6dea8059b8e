package store

import "time"

// CompanyType tags a company for the downstream classifier. The ingestion
// pipeline only ever creates Unclassified companies.
type CompanyType string

const (
	CompanyCustomer     CompanyType = "Customer"
	CompanySupplier     CompanyType = "Supplier"
	CompanyUnclassified CompanyType = "Unclassified"
)

// ImportStatus is the lifecycle state of an Import.
type ImportStatus string

const (
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// Import is one ingestion run.
type Import struct {
	ID              string
	Filename        string
	Status          ImportStatus
	EmailsProcessed int64
}

// Company is one external domain.
type Company struct {
	ID                   string
	Name                 string
	Domain               string
	Type                 CompanyType
	ClassificationReason *string
}

// Contact is one external sender address.
type Contact struct {
	Email     string
	CompanyID string
	FullName  string
}

// Thread groups emails whose subjects normalize to the same root.
type Thread struct {
	ID               string
	Subject          string
	RelatedCompanyID *string
	LastMessageAt    *time.Time
}

// Attachment is the stored metadata of one attachment.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Index    int    `json:"index"`
}

// Email is the canonical record of one archived message.
type Email struct {
	ID               int64
	ImportID         string
	MessageID        *string
	DedupeHash       string
	ThreadID         string
	References       *string
	Subject          string
	Body             string
	FromName         string
	SenderEmail      *string
	RecipientEmails  []string
	CCEmails         []string
	SentAt           *time.Time
	TimestampMissing bool
	FolderPath       string
	Attachments      []Attachment
	TransportHeaders string
	RelatedCompanyID *string

	// ProcessedByDownstream belongs to the enrichment collaborator. Inserts
	// always write false.
	ProcessedByDownstream bool
}

// SetSentAt sets SentAt in UTC and keeps TimestampMissing in agreement.
func (e *Email) SetSentAt(t *time.Time) {
	if t == nil {
		e.SentAt = nil
		e.TimestampMissing = true
		return
	}
	utc := t.UTC()
	e.SentAt = &utc
	e.TimestampMissing = false
}

// TableCounts holds row counts for every table the pipeline writes.
type TableCounts struct {
	Imports     int64
	Emails      int64
	Unprocessed int64
	Companies   int64
	Contacts    int64
	Threads     int64
}
