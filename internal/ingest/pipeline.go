// Package ingest walks a mail archive, turns every message into a canonical
// email record and persists the records in batches.
package ingest

import (
	"context"
	"fmt"
	"path"
	"runtime/debug"
	"time"

	"github.com/matheus3301/mailingest/internal/archive"
	"github.com/matheus3301/mailingest/internal/bus"
	"github.com/matheus3301/mailingest/internal/header"
	"github.com/matheus3301/mailingest/internal/identity"
	"github.com/matheus3301/mailingest/internal/resolve"
	"github.com/matheus3301/mailingest/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultBodyLimit caps stored bodies, in characters.
	DefaultBodyLimit = 50000

	// RootFolder names the top of every folder path.
	RootFolder = "Root"
)

// EntityResolver links a message to the company directory.
// *resolve.Resolver implements it.
type EntityResolver interface {
	Resolve(p resolve.Participants) resolve.Result
}

// Options configures a Pipeline.
type Options struct {
	ImportID  string
	BatchSize int
	BodyLimit int
	Threader  identity.Threader
}

// Stats summarizes one run.
type Stats struct {
	// Processed counts messages turned into records and handed to the batcher.
	Processed int64
	// Errors counts messages (and subfolders) that could not be read.
	Errors        int64
	Inserted      int64
	Duplicates    int64
	FailedBatches int64
	// DroppedRecords counts records lost with failed batches.
	DroppedRecords int64
	ResolveErrors  int64
}

// MessageFailure is the payload of message failure events.
type MessageFailure struct {
	FolderPath string
	Index      int
	Err        string
}

// Pipeline ingests one archive. It is single-threaded; create one per run.
type Pipeline struct {
	resolver EntityResolver
	batcher  *Batcher
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options

	processed     int64
	errors        int64
	resolveErrors int64
}

// NewPipeline creates a pipeline writing to w. resolver may be nil, in
// which case no entity resolution happens and records carry no company.
func NewPipeline(w EmailWriter, resolver EntityResolver, b *bus.Bus, logger *zap.Logger, opts Options) *Pipeline {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = DefaultBodyLimit
	}
	return &Pipeline{
		resolver: resolver,
		batcher:  NewBatcher(w, opts.BatchSize, b, logger),
		bus:      b,
		logger:   logger,
		opts:     opts,
	}
}

// Run walks the archive depth-first, messages before subfolders, and
// flushes the remaining buffer at the end. A failing message is counted
// and skipped. Run returns an error only when the archive cannot be walked
// at all, or ctx.Err() when it was cancelled; Stats are valid either way.
func (p *Pipeline) Run(ctx context.Context, a archive.Archive) (Stats, error) {
	root, err := a.Root()
	if err != nil {
		return p.Stats(), fmt.Errorf("open archive root: %w", err)
	}

	p.logger.Info("ingestion started")
	p.walk(ctx, root, RootFolder)
	p.batcher.Flush()

	stats := p.Stats()
	p.logger.Info("ingestion finished",
		zap.Int64("processed", stats.Processed),
		zap.Int64("errors", stats.Errors),
		zap.Int64("inserted", stats.Inserted),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("failed_batches", stats.FailedBatches),
		zap.Int64("resolve_errors", stats.ResolveErrors))
	p.bus.Emit(bus.KindCompleted, stats)

	return stats, ctx.Err()
}

// Stats returns the counters accumulated so far.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:      p.processed,
		Errors:         p.errors,
		Inserted:       p.batcher.inserted,
		Duplicates:     p.batcher.duplicates,
		FailedBatches:  p.batcher.failed,
		DroppedRecords: p.batcher.dropped,
		ResolveErrors:  p.resolveErrors,
	}
}

func (p *Pipeline) walk(ctx context.Context, f archive.Folder, folderPath string) {
	for i, n := 0, f.NumMessages(); i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		if err := p.ingest(f, i, folderPath); err != nil {
			p.errors++
			p.logger.Warn("message skipped",
				zap.Error(err),
				zap.String("folder", folderPath),
				zap.Int("index", i))
			p.bus.Emit(bus.KindMessageFailed, MessageFailure{FolderPath: folderPath, Index: i, Err: err.Error()})
		}
	}

	for i, n := 0, f.NumFolders(); i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		sub, err := p.subfolder(f, i)
		if err != nil {
			p.errors++
			p.logger.Warn("folder skipped",
				zap.Error(err),
				zap.String("folder", folderPath),
				zap.Int("index", i))
			continue
		}
		p.walk(ctx, sub, path.Join(folderPath, sub.Name()))
	}
}

func (p *Pipeline) subfolder(f archive.Folder, i int) (sub archive.Folder, err error) {
	defer recoverInto(&err)
	return f.Folder(i)
}

func (p *Pipeline) ingest(f archive.Folder, i int, folderPath string) (err error) {
	defer recoverInto(&err)

	msg, err := f.Message(i)
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	email, err := p.normalize(msg, folderPath)
	if err != nil {
		return err
	}
	p.batcher.Append(email)
	p.processed++
	return nil
}

// recoverInto turns a panic raised inside an archive binding into an error
// local to the message or folder being read.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("archive binding panic: %v\n%s", r, debug.Stack())
	}
}

func (p *Pipeline) normalize(msg archive.Message, folderPath string) (store.Email, error) {
	rawHeaders, err := msg.TransportHeaders()
	if err != nil {
		return store.Email{}, fmt.Errorf("read transport headers: %w", err)
	}
	headers := header.Clean(rawHeaders)

	plain, err := msg.PlainTextBody()
	if err != nil {
		return store.Email{}, fmt.Errorf("read body: %w", err)
	}
	body := header.Clean(plain)
	if body == "" {
		// An unreadable HTML part leaves the body empty.
		if html, err := msg.HTMLBody(); err == nil {
			body = header.CleanBytes(html)
		}
	}

	subject := header.Clean(msg.Subject())
	senderName := header.Clean(msg.SenderName())

	var sender string
	if from, ok := header.Field(headers, "From"); ok {
		if addrs := header.Addresses(from); len(addrs) > 0 {
			sender = addrs[0]
		}
	}
	to := addressField(headers, "To")
	cc := addressField(headers, "Cc")

	var sentAt *time.Time
	if t, ok := msg.DeliveryTime(); ok {
		utc := t.UTC()
		sentAt = &utc
	}

	threadID := p.opts.Threader.ThreadID(subject)
	email := store.Email{
		ImportID:         p.opts.ImportID,
		MessageID:        optionalField(headers, "Message-ID"),
		DedupeHash:       identity.DedupeHash(sender, to, subject, sentAt, body),
		ThreadID:         threadID,
		References:       optionalField(headers, "References"),
		Subject:          subject,
		Body:             truncateRunes(body, p.opts.BodyLimit),
		FromName:         senderName,
		RecipientEmails:  to,
		CCEmails:         cc,
		FolderPath:       folderPath,
		Attachments:      p.attachments(msg, folderPath),
		TransportHeaders: headers,
	}
	if sender != "" {
		email.SenderEmail = &sender
	}
	email.SetSentAt(sentAt)

	if p.resolver != nil {
		res := p.resolver.Resolve(resolve.Participants{
			Sender:     sender,
			SenderName: senderName,
			Recipients: to,
			CC:         cc,
			ThreadID:   threadID,
			Subject:    subject,
			SentAt:     sentAt,
		})
		if res.Err != nil {
			p.resolveErrors++
		}
		email.RelatedCompanyID = res.CompanyID
	}

	return email, nil
}

func (p *Pipeline) attachments(msg archive.Message, folderPath string) []store.Attachment {
	n := msg.NumAttachments()
	out := make([]store.Attachment, 0, n)
	for i := 0; i < n; i++ {
		view, err := msg.Attachment(i)
		if err != nil {
			p.logger.Warn("attachment skipped",
				zap.Error(err),
				zap.String("folder", folderPath),
				zap.Int("attachment", i))
			continue
		}
		name := header.Clean(view.Name())
		if name == "" {
			name = fmt.Sprintf("attachment_%d", i)
		}
		out = append(out, store.Attachment{
			Filename: name,
			Size:     max(view.Size(), 0),
			Index:    i,
		})
	}
	return out
}

func addressField(headers, key string) []string {
	v, ok := header.Field(headers, key)
	if !ok {
		return []string{}
	}
	addrs := header.Addresses(v)
	if addrs == nil {
		return []string{}
	}
	return addrs
}

func optionalField(headers, key string) *string {
	v, ok := header.Field(headers, key)
	if !ok || v == "" {
		return nil
	}
	return &v
}

// truncateRunes returns the first n characters of s.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
