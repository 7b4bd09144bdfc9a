package ingest

import (
	"context"
	"fmt"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/core/extraction"
	"github.com/paperbase-io/paperbase/internal/models"
)

// Persister commits extraction output page by page so an interrupted run
// leaves a resumable high-water mark instead of an all-or-nothing blob.
// Every write is fenced on the attempt that produced it.
type Persister struct {
	db core.DbClient
}

func NewPersister(db core.DbClient) *Persister {
	return &Persister{db: db}
}

// Begin wipes any rows left by a previous attempt. Called exactly once
// before the first PersistPage of an attempt.
func (p *Persister) Begin(ctx context.Context, docID string, attempt int) error {
	if err := p.db.ClearExtraction(ctx, docID, attempt); err != nil {
		return fmt.Errorf("clear extraction: %w", err)
	}
	return nil
}

// PersistPage writes one page's paragraphs and assets and advances the
// progress marker. core.ErrStaleAttempt means a newer attempt owns the
// document and the caller must stop.
func (p *Persister) PersistPage(ctx context.Context, docID string, attempt, page int, paragraphs []models.Paragraph, assets []models.Asset) error {
	if len(paragraphs) > 0 {
		if err := p.db.InsertParagraphs(ctx, docID, attempt, paragraphs); err != nil {
			return fmt.Errorf("insert paragraphs: %w", err)
		}
	}
	if len(assets) > 0 {
		if err := p.db.InsertAssets(ctx, docID, attempt, assets); err != nil {
			return fmt.Errorf("insert assets: %w", err)
		}
	}
	if err := p.db.AdvancePage(ctx, docID, attempt, page); err != nil {
		return err
	}
	return nil
}

// PersistAll walks a full extraction result in page order.
func (p *Persister) PersistAll(ctx context.Context, docID string, attempt int, res *extraction.Result) error {
	if err := p.Begin(ctx, docID, attempt); err != nil {
		return err
	}
	for _, page := range res.Pages() {
		if err := p.PersistPage(ctx, docID, attempt, page, res.ParagraphsOn(page), res.AssetsOn(page)); err != nil {
			return err
		}
	}
	return nil
}
