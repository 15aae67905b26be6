package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const conversionColumns = `id, user_id, original_filename, platform, status, input_location,
	pdf_path, docx_path, message_count, word_count, skipped_count, processing_ms,
	error_category, error, created_at, completed_at`

// CreateConversion inserts a new record and increments the owner's
// conversion count in the same transaction. The owner row is provisioned with
// the free tier if it does not exist yet.
func (s *Store) CreateConversion(c Conversion) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`
		INSERT INTO users (uid, created_at) VALUES (?, ?)
		ON CONFLICT(uid) DO NOTHING`, c.UserID, now); err != nil {
		return fmt.Errorf("provisioning user %s: %w", c.UserID, err)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.Exec(`
		INSERT INTO conversions (id, user_id, original_filename, platform, status, input_location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.OriginalFilename, c.Platform, c.Status, c.InputLocation,
		createdAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("inserting conversion: %w", err)
	}

	if _, err := tx.Exec(`UPDATE users SET conversion_count = conversion_count + 1 WHERE uid = ?`, c.UserID); err != nil {
		return fmt.Errorf("incrementing conversion count: %w", err)
	}

	return tx.Commit()
}

// GetConversion fetches a record by id.
func (s *Store) GetConversion(id string) (Conversion, error) {
	row := s.db.QueryRow(`SELECT `+conversionColumns+` FROM conversions WHERE id = ?`, id)
	c, err := scanConversion(row)
	if err == sql.ErrNoRows {
		return Conversion{}, ErrNotFound
	}
	return c, err
}

// SetConversionStatus moves a record to status, guarded on the expected
// current status so stale writers lose. Returns ErrNotFound when no row with
// the expected status exists.
func (s *Store) SetConversionStatus(id string, from, to Status) error {
	res, err := s.db.Exec(`UPDATE conversions SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversionPlatform refines the platform once extraction has inspected
// the content (zip archives reveal theirs only after the primary entry is
// read).
func (s *Store) SetConversionPlatform(id, platform string) error {
	res, err := s.db.Exec(`UPDATE conversions SET platform = ? WHERE id = ?`, platform, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteConversion atomically sets the terminal completed state, output
// locations, metadata, and the completion timestamp.
func (s *Store) CompleteConversion(id, pdfPath, docxPath string, msgCount, wordCount, skipped int, processingMS int64) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE conversions
		SET status = ?, pdf_path = ?, docx_path = ?, message_count = ?, word_count = ?,
			skipped_count = ?, processing_ms = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		StatusCompleted, pdfPath, docxPath, msgCount, wordCount, skipped, processingMS,
		now.Format(time.RFC3339Nano), id, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailConversion atomically sets the terminal failed state with an error
// category and description.
func (s *Store) FailConversion(id, category, message string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE conversions SET status = ?, error_category = ?, error = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed, category, message, now.Format(time.RFC3339Nano),
		id, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversions returns all of a user's records, newest first.
func (s *Store) ListConversions(userID string) ([]Conversion, error) {
	rows, err := s.db.Query(`
		SELECT `+conversionColumns+` FROM conversions
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ListRecentConversions returns the newest records across all users, newest
// first, capped at limit.
func (s *Store) ListRecentConversions(limit int) ([]Conversion, error) {
	rows, err := s.db.Query(`
		SELECT `+conversionColumns+` FROM conversions
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeleteConversion removes a record. Deleting a missing id returns
// ErrNotFound so callers can decide whether that matters; the tracker treats
// it as a no-op.
func (s *Store) DeleteConversion(id string) error {
	res, err := s.db.Exec(`DELETE FROM conversions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(row scanner) (Conversion, error) {
	var c Conversion
	var createdAt string
	var completedAt sql.NullString
	err := row.Scan(
		&c.ID, &c.UserID, &c.OriginalFilename, &c.Platform, &c.Status, &c.InputLocation,
		&c.PDFPath, &c.DOCXPath, &c.MessageCount, &c.WordCount, &c.SkippedCount, &c.ProcessingMS,
		&c.ErrorCategory, &c.Error, &createdAt, &completedAt,
	)
	if err != nil {
		return Conversion{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Conversion{}, fmt.Errorf("parsing created_at for %s: %w", c.ID, err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return Conversion{}, fmt.Errorf("parsing completed_at for %s: %w", c.ID, err)
		}
		c.CompletedAt = &t
	}
	return c, nil
}
