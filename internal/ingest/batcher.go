package ingest

import (
	"github.com/matheus3301/mailingest/internal/bus"
	"github.com/matheus3301/mailingest/internal/store"
	"go.uber.org/zap"
)

// DefaultBatchSize is the flush threshold used when none is configured.
const DefaultBatchSize = 50

// EmailWriter persists a batch of emails, skipping records whose dedupe
// hash already exists, and reports how many rows were new. *store.DB
// implements it.
type EmailWriter interface {
	InsertEmails(emails []store.Email) (int64, error)
}

// BatchResult is the payload of batch flush events.
type BatchResult struct {
	Size     int
	Inserted int64
	Err      string
}

// Batcher buffers normalized emails and writes them in batches.
// It is not safe for concurrent use.
type Batcher struct {
	writer EmailWriter
	size   int
	buf    []store.Email
	bus    *bus.Bus
	logger *zap.Logger

	inserted   int64
	duplicates int64
	failed     int64
	dropped    int64
}

// NewBatcher creates a batcher that flushes every size records.
func NewBatcher(w EmailWriter, size int, b *bus.Bus, logger *zap.Logger) *Batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Batcher{
		writer: w,
		size:   size,
		buf:    make([]store.Email, 0, size),
		bus:    b,
		logger: logger,
	}
}

// Append buffers e and flushes once the buffer reaches the batch size.
func (b *Batcher) Append(e store.Email) {
	b.buf = append(b.buf, e)
	if len(b.buf) >= b.size {
		b.Flush()
	}
}

// Len returns the number of buffered records.
func (b *Batcher) Len() int {
	return len(b.buf)
}

// Flush writes the buffered records in one transaction. The buffer is
// cleared whether or not the write succeeds; a failed batch is logged and
// dropped, and re-running the import recovers it.
func (b *Batcher) Flush() {
	if len(b.buf) == 0 {
		return
	}
	batch := b.buf
	b.buf = make([]store.Email, 0, b.size)

	n, err := b.writer.InsertEmails(batch)
	if err != nil {
		b.failed++
		b.dropped += int64(len(batch))
		b.logger.Error("batch insert failed",
			zap.Error(err),
			zap.Int("batch_size", len(batch)))
		b.bus.Emit(bus.KindBatchFailed, BatchResult{Size: len(batch), Err: err.Error()})
		return
	}

	b.inserted += n
	b.duplicates += int64(len(batch)) - n
	b.logger.Debug("batch flushed",
		zap.Int("batch_size", len(batch)),
		zap.Int64("inserted", n))
	b.bus.Emit(bus.KindBatchFlushed, BatchResult{Size: len(batch), Inserted: n})
}
