package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const insertEmailSQL = `
	INSERT INTO emails (
		import_id, message_id, dedupe_hash, thread_id, references_header,
		subject, body, from_name, sender_email, recipient_emails, cc_emails,
		sent_at, timestamp_missing, folder_path, attachments, transport_headers,
		related_company_id, processed_by_downstream, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	ON CONFLICT(dedupe_hash) DO NOTHING`

// InsertEmails writes a batch of emails in a single transaction. Rows whose
// dedupe_hash is already stored are left untouched. Returns the number of
// rows actually inserted.
func (db *DB) InsertEmails(emails []Email) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(insertEmailSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	var inserted int64
	for i := range emails {
		e := &emails[i]
		args, err := emailArgs(e)
		if err != nil {
			return 0, fmt.Errorf("encode email %s: %w", e.DedupeHash, err)
		}
		res, err := stmt.Exec(append(args, now)...)
		if err != nil {
			return 0, fmt.Errorf("insert email %s: %w", e.DedupeHash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func emailArgs(e *Email) ([]any, error) {
	recipients, err := jsonList(e.RecipientEmails)
	if err != nil {
		return nil, err
	}
	cc, err := jsonList(e.CCEmails)
	if err != nil {
		return nil, err
	}
	attachments, err := jsonList(e.Attachments)
	if err != nil {
		return nil, err
	}
	var importID any
	if e.ImportID != "" {
		importID = e.ImportID
	}
	return []any{
		importID, e.MessageID, e.DedupeHash, e.ThreadID, e.References,
		e.Subject, e.Body, e.FromName, e.SenderEmail, recipients, cc,
		formatTime(e.SentAt), e.SentAt == nil, e.FolderPath, attachments, e.TransportHeaders,
		e.RelatedCompanyID,
	}, nil
}

func jsonList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// EmailByHash returns the email stored under a dedupe hash.
func (db *DB) EmailByHash(hash string) (*Email, error) {
	var (
		e                           Email
		importID, sentAt            sql.NullString
		recipients, cc, attachments string
	)
	err := db.QueryRow(`
		SELECT id, import_id, message_id, dedupe_hash, thread_id, references_header,
			subject, body, from_name, sender_email, recipient_emails, cc_emails,
			sent_at, timestamp_missing, folder_path, attachments, transport_headers,
			related_company_id, processed_by_downstream
		FROM emails WHERE dedupe_hash = ?`, hash).
		Scan(&e.ID, &importID, &e.MessageID, &e.DedupeHash, &e.ThreadID, &e.References,
			&e.Subject, &e.Body, &e.FromName, &e.SenderEmail, &recipients, &cc,
			&sentAt, &e.TimestampMissing, &e.FolderPath, &attachments, &e.TransportHeaders,
			&e.RelatedCompanyID, &e.ProcessedByDownstream)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.ImportID = importID.String
	if e.SentAt, err = parseTime(sentAt); err != nil {
		return nil, fmt.Errorf("parse sent_at: %w", err)
	}
	if err := json.Unmarshal([]byte(recipients), &e.RecipientEmails); err != nil {
		return nil, fmt.Errorf("decode recipient_emails: %w", err)
	}
	if err := json.Unmarshal([]byte(cc), &e.CCEmails); err != nil {
		return nil, fmt.Errorf("decode cc_emails: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &e.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return &e, nil
}

// EmailCount returns the total number of stored emails.
func (db *DB) EmailCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM emails`).Scan(&count)
	return count, err
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
