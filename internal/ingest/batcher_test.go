package ingest

import (
	"testing"

	"github.com/matheus3301/mailingest/internal/store"
	"go.uber.org/zap"
)

func TestBatcherCountsDuplicates(t *testing.T) {
	db := testDB(t)
	b := NewBatcher(db, 10, nil, zap.NewNop())

	for _, h := range []string{"h1", "h2", "h1"} {
		b.Append(store.Email{DedupeHash: h, ThreadID: "t", TimestampMissing: true})
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 before flush", b.Len())
	}
	b.Flush()
	if b.Len() != 0 {
		t.Errorf("Len() = %d after flush, want 0", b.Len())
	}
	if b.inserted != 2 || b.duplicates != 1 {
		t.Errorf("inserted=%d duplicates=%d, want 2/1", b.inserted, b.duplicates)
	}
}

func TestBatcherDefaultSize(t *testing.T) {
	w := &recordingWriter{}
	b := NewBatcher(w, 0, nil, zap.NewNop())
	for i := 0; i < DefaultBatchSize-1; i++ {
		b.Append(store.Email{})
	}
	if len(w.batches) != 0 {
		t.Fatal("flushed before reaching the default size")
	}
	b.Append(store.Email{})
	if len(w.batches) != 1 || len(w.batches[0]) != DefaultBatchSize {
		t.Errorf("want one batch of %d", DefaultBatchSize)
	}
}

func TestBatcherFlushEmpty(t *testing.T) {
	w := &recordingWriter{}
	NewBatcher(w, 5, nil, zap.NewNop()).Flush()
	if len(w.batches) != 0 {
		t.Error("empty flush should not write")
	}
}
