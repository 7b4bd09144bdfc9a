// Package vectorstore implements core.VectorStore on Postgres + pgvector.
// Points live in chunk_points; the owner set is a side table so that the
// union/removal semantics stay plain SQL.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/paperbase-io/paperbase/internal/core"
)

type PgVectorStore struct {
	db *sql.DB
}

func NewPgVectorStore(db *sql.DB) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS chunk_points (
			id          text PRIMARY KEY,
			document_id text NOT NULL,
			page        int  NOT NULL DEFAULT 0,
			section     text NOT NULL DEFAULT '',
			text        text NOT NULL,
			embedding   vector(%d) NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunk_point_owners (
			point_id text NOT NULL REFERENCES chunk_points(id) ON DELETE CASCADE,
			owner_id text NOT NULL,
			PRIMARY KEY (point_id, owner_id)
		);
	`, dim)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

// indexableFields guards EnsureFieldIndex against arbitrary identifiers.
var indexableFields = map[string]bool{
	"document_id": true,
	"section":     true,
	"page":        true,
}

func (s *PgVectorStore) EnsureFieldIndex(ctx context.Context, field string) error {
	if !indexableFields[field] {
		return fmt.Errorf("field %q is not indexable", field)
	}
	ddl := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_chunk_points_%s ON chunk_points (%s)`, field, field)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure field index %s: %w", field, err)
	}
	return nil
}

// Upsert writes points by id, replacing vector and payload, and unions each
// point's owner set with the incoming owners.
func (s *PgVectorStore) Upsert(ctx context.Context, points []core.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const pointQ = `
		INSERT INTO chunk_points (id, document_id, page, section, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET document_id = EXCLUDED.document_id,
		    page        = EXCLUDED.page,
		    section     = EXCLUDED.section,
		    text        = EXCLUDED.text,
		    embedding   = EXCLUDED.embedding
	`
	const ownerQ = `
		INSERT INTO chunk_point_owners (point_id, owner_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	for i := range points {
		p := &points[i]
		if _, err := tx.ExecContext(ctx, pointQ,
			p.ID, p.Payload.DocumentID, p.Payload.Page, p.Payload.Section,
			p.Payload.Text, pgvector.NewVector(p.Vector),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
		for _, owner := range p.Payload.Owners {
			if _, err := tx.ExecContext(ctx, ownerQ, p.ID, owner); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("upsert owner for %s: %w", p.ID, err)
			}
		}
	}
	return tx.Commit()
}

func buildFilter(filter core.VectorFilter, args *[]any) string {
	var conds []string
	add := func(cond string, val any) {
		*args = append(*args, val)
		conds = append(conds, fmt.Sprintf(cond, len(*args)))
	}
	if filter.DocumentID != "" {
		add("p.document_id = $%d", filter.DocumentID)
	}
	if filter.ExcludeDocumentID != "" {
		add("p.document_id <> $%d", filter.ExcludeDocumentID)
	}
	if filter.Section != "" {
		add("p.section = $%d", filter.Section)
	}
	if filter.Owner != "" {
		add("EXISTS (SELECT 1 FROM chunk_point_owners o WHERE o.point_id = p.id AND o.owner_id = $%d)", filter.Owner)
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (s *PgVectorStore) Search(ctx context.Context, vector []float32, filter core.VectorFilter, limit int) ([]core.ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	args := []any{pgvector.NewVector(vector)}
	where := buildFilter(filter, &args)
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT p.id, p.document_id, p.page, p.section, p.text,
		       1 - (p.embedding <=> $1) AS score
		FROM chunk_points p
		%s
		ORDER BY p.embedding <=> $1
		LIMIT $%d
	`, where, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ScoredPoint
	for rows.Next() {
		var sp core.ScoredPoint
		if err := rows.Scan(
			&sp.ID, &sp.Payload.DocumentID, &sp.Payload.Page,
			&sp.Payload.Section, &sp.Payload.Text, &sp.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *PgVectorStore) Count(ctx context.Context, filter core.VectorFilter) (int, error) {
	var args []any
	where := buildFilter(filter, &args)
	q := `SELECT count(*) FROM chunk_points p` + where
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PgVectorStore) AddOwner(ctx context.Context, documentID, ownerID string) error {
	const q = `
		INSERT INTO chunk_point_owners (point_id, owner_id)
		SELECT id, $2 FROM chunk_points WHERE document_id = $1
		ON CONFLICT DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, q, documentID, ownerID)
	return err
}

func (s *PgVectorStore) RemoveOwner(ctx context.Context, documentID, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const delOwner = `
		DELETE FROM chunk_point_owners o
		USING chunk_points p
		WHERE o.point_id = p.id AND p.document_id = $1 AND o.owner_id = $2
	`
	if _, err := tx.ExecContext(ctx, delOwner, documentID, ownerID); err != nil {
		_ = tx.Rollback()
		return err
	}
	// Points with an empty owner set are physically removed.
	const delOrphans = `
		DELETE FROM chunk_points p
		WHERE p.document_id = $1
		  AND NOT EXISTS (SELECT 1 FROM chunk_point_owners o WHERE o.point_id = p.id)
	`
	if _, err := tx.ExecContext(ctx, delOrphans, documentID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

var _ core.VectorStore = (*PgVectorStore)(nil)
