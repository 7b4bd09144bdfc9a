package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paperbase-io/paperbase/internal/config"
	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the underlying pool so the vector store can share it.
func (c *DatabaseClient) DB() *sql.DB {
	return c.db
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) (bool, error) {
	if doc == nil {
		return false, errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, file_name, storage_key, total_pages, current_page, status, error_message, job_id, attempt, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (id) DO NOTHING
	`
	res, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.StorageKey, doc.TotalPages, doc.CurrentPage,
		doc.Status, doc.ErrorMessage, doc.JobID, doc.Attempt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, file_name, storage_key, total_pages, current_page, status, error_message, job_id, attempt, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.FileName, &d.StorageKey, &d.TotalPages, &d.CurrentPage,
		&d.Status, &d.ErrorMessage, &d.JobID, &d.Attempt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	const q = `
		SELECT d.id, o.file_name, d.storage_key, d.total_pages, d.current_page, d.status, d.error_message, d.job_id, d.attempt, d.created_at, d.updated_at
		FROM documents d
		JOIN document_owners o ON o.document_id = d.id
		WHERE o.owner_id = $1
		ORDER BY o.created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.StorageKey, &d.TotalPages, &d.CurrentPage,
			&d.Status, &d.ErrorMessage, &d.JobID, &d.Attempt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	// Paragraphs and assets cascade.
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// Ownership bindings

func (c *DatabaseClient) CreateOwnership(ctx context.Context, docID, ownerID, fileName string) error {
	const q = `
		INSERT INTO document_owners (document_id, owner_id, file_name, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (document_id, owner_id) DO NOTHING
	`
	_, err := c.db.ExecContext(ctx, q, docID, ownerID, fileName)
	return err
}

func (c *DatabaseClient) HasOwnership(ctx context.Context, docID, ownerID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM document_owners WHERE document_id = $1 AND owner_id = $2)`
	var ok bool
	if err := c.db.QueryRowContext(ctx, q, docID, ownerID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (c *DatabaseClient) ListOwners(ctx context.Context, docID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT owner_id FROM document_owners WHERE document_id = $1 ORDER BY created_at`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteOwnership(ctx context.Context, docID, ownerID string) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_owners WHERE document_id = $1 AND owner_id = $2`, docID, ownerID); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(*) FROM document_owners WHERE document_id = $1`, docID).Scan(&remaining); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	return remaining, tx.Commit()
}

// Extraction attempts
//
// Every write below is fenced on the attempt column: a stale worker whose
// attempt was superseded affects zero rows and gets ErrStaleAttempt.

func (c *DatabaseClient) BeginAttempt(ctx context.Context, docID, jobID string) (int, error) {
	const q = `
		UPDATE documents
		SET attempt = attempt + 1,
		    job_id = $2,
		    status = 'pending',
		    current_page = 0,
		    error_message = '',
		    updated_at = now()
		WHERE id = $1
		RETURNING attempt
	`
	var attempt int
	err := c.db.QueryRowContext(ctx, q, docID, jobID).Scan(&attempt)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("document not found: %s", docID)
	}
	if err != nil {
		return 0, err
	}
	return attempt, nil
}

func (c *DatabaseClient) fencedExec(ctx context.Context, q, docID string, attempt int, args ...any) error {
	all := append([]any{docID, attempt}, args...)
	res, err := c.db.ExecContext(ctx, q, all...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrStaleAttempt
	}
	return nil
}

func (c *DatabaseClient) MarkProcessing(ctx context.Context, docID string, attempt int) error {
	const q = `
		UPDATE documents SET status = 'processing', updated_at = now()
		WHERE id = $1 AND attempt = $2
	`
	return c.fencedExec(ctx, q, docID, attempt)
}

func (c *DatabaseClient) SetTotalPages(ctx context.Context, docID string, attempt, totalPages int) error {
	const q = `
		UPDATE documents SET total_pages = $3, updated_at = now()
		WHERE id = $1 AND attempt = $2
	`
	return c.fencedExec(ctx, q, docID, attempt, totalPages)
}

func (c *DatabaseClient) AdvancePage(ctx context.Context, docID string, attempt, page int) error {
	// GREATEST keeps current_page monotonic within an attempt.
	const q = `
		UPDATE documents SET current_page = GREATEST(current_page, $3), updated_at = now()
		WHERE id = $1 AND attempt = $2
	`
	return c.fencedExec(ctx, q, docID, attempt, page)
}

func (c *DatabaseClient) MarkCompleted(ctx context.Context, docID string, attempt int) error {
	const q = `
		UPDATE documents SET status = 'completed', error_message = '', updated_at = now()
		WHERE id = $1 AND attempt = $2
	`
	return c.fencedExec(ctx, q, docID, attempt)
}

func (c *DatabaseClient) MarkFailed(ctx context.Context, docID string, attempt int, message string) error {
	const q = `
		UPDATE documents SET status = 'failed', error_message = $3, updated_at = now()
		WHERE id = $1 AND attempt = $2
	`
	return c.fencedExec(ctx, q, docID, attempt, message)
}

func (c *DatabaseClient) ListStaleDocuments(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	const q = `
		SELECT id, file_name, storage_key, total_pages, current_page, status, error_message, job_id, attempt, created_at, updated_at
		FROM documents
		WHERE status IN ('pending', 'processing') AND updated_at < $1
		ORDER BY updated_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.FileName, &d.StorageKey, &d.TotalPages, &d.CurrentPage,
			&d.Status, &d.ErrorMessage, &d.JobID, &d.Attempt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Extracted units

// lockAttempt locks the document row inside tx and verifies the given
// attempt still owns it. The lock is held until the transaction ends, so
// a concurrent BeginAttempt orders strictly before or after the writes.
func lockAttempt(ctx context.Context, tx *sql.Tx, docID string, attempt int) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE id = $1 AND attempt = $2 FOR UPDATE`,
		docID, attempt).Scan(&one)
	if err == sql.ErrNoRows {
		return core.ErrStaleAttempt
	}
	return err
}

func (c *DatabaseClient) ClearExtraction(ctx context.Context, docID string, attempt int) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := lockAttempt(ctx, tx, docID, attempt); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM paragraphs WHERE document_id = $1`, docID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE document_id = $1`, docID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InsertParagraphs inserts paragraph rows in a single attempt-fenced
// transaction.
func (c *DatabaseClient) InsertParagraphs(ctx context.Context, docID string, attempt int, paragraphs []models.Paragraph) error {
	if len(paragraphs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := lockAttempt(ctx, tx, docID, attempt); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO paragraphs
			(id, document_id, page, ordinal, text, x0, y0, x1, y1, translation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (id) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range paragraphs {
		p := &paragraphs[i]
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.DocumentID, p.Page, p.Ordinal, p.Text,
			p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3], p.Translation,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) InsertAssets(ctx context.Context, docID string, attempt int, assets []models.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := lockAttempt(ctx, tx, docID, attempt); err != nil {
		_ = tx.Rollback()
		return err
	}

	const q = `
		INSERT INTO assets
			(id, document_id, kind, page, ordinal, x0, y0, x1, y1, caption, latex, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (id) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range assets {
		a := &assets[i]
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.DocumentID, a.Kind, a.Page, a.Ordinal,
			a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3],
			a.Caption, a.Latex, a.StorageKey,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetParagraphsByDocument(ctx context.Context, docID string) ([]models.Paragraph, error) {
	const q = `
		SELECT id, document_id, page, ordinal, text, x0, y0, x1, y1, translation
		FROM paragraphs
		WHERE document_id = $1
		ORDER BY page ASC, ordinal ASC
	`
	rows, err := c.db.QueryContext(ctx, q, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Paragraph
	for rows.Next() {
		var p models.Paragraph
		if err := rows.Scan(
			&p.ID, &p.DocumentID, &p.Page, &p.Ordinal, &p.Text,
			&p.BBox[0], &p.BBox[1], &p.BBox[2], &p.BBox[3], &p.Translation,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ core.DbClient = (*DatabaseClient)(nil)
