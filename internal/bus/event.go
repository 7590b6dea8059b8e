package bus

import "time"

// Event kinds published during an ingestion run.
const (
	KindMessageFailed = "ingest.message_failed"
	KindBatchFlushed  = "ingest.batch_flushed"
	KindBatchFailed   = "ingest.batch_failed"
	KindCompleted     = "ingest.completed"
	KindStatusChanged = "run.status_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
