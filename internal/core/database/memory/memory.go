// Package memorydb is an in-memory implementation of core.DbClient with the
// same fencing semantics as the Postgres client. It backs unit tests and
// local development without a database.
package memorydb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/models"
)

type Store struct {
	mu         sync.RWMutex
	documents  map[string]*models.Document
	owners     map[string]map[string]models.DocumentOwner // docID -> ownerID
	paragraphs map[string][]models.Paragraph              // docID
	assets     map[string][]models.Asset                  // docID
}

func New() *Store {
	return &Store{
		documents:  make(map[string]*models.Document),
		owners:     make(map[string]map[string]models.DocumentOwner),
		paragraphs: make(map[string][]models.Paragraph),
		assets:     make(map[string][]models.Asset),
	}
}

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return false, nil
	}
	cp := *doc
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.documents[doc.ID] = &cp
	return true, nil
}

func (s *Store) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Document
	for docID, byOwner := range s.owners {
		if b, ok := byOwner[ownerID]; ok {
			if d, ok := s.documents[docID]; ok {
				cp := *d
				cp.FileName = b.FileName
				out = append(out, cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	delete(s.owners, id)
	delete(s.paragraphs, id)
	delete(s.assets, id)
	return nil
}

func (s *Store) CreateOwnership(ctx context.Context, docID, ownerID, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOwner, ok := s.owners[docID]
	if !ok {
		byOwner = make(map[string]models.DocumentOwner)
		s.owners[docID] = byOwner
	}
	if _, exists := byOwner[ownerID]; exists {
		return nil
	}
	byOwner[ownerID] = models.DocumentOwner{
		DocumentID: docID, OwnerID: ownerID, FileName: fileName, CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Store) HasOwnership(ctx context.Context, docID, ownerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.owners[docID][ownerID]
	return ok, nil
}

func (s *Store) ListOwners(ctx context.Context, docID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id := range s.owners[docID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteOwnership(ctx context.Context, docID, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners[docID], ownerID)
	return len(s.owners[docID]), nil
}

func (s *Store) BeginAttempt(ctx context.Context, docID, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[docID]
	if !ok {
		return 0, fmt.Errorf("document not found: %s", docID)
	}
	d.Attempt++
	d.JobID = jobID
	d.Status = models.StatusPending
	d.CurrentPage = 0
	d.ErrorMessage = ""
	d.UpdatedAt = time.Now().UTC()
	return d.Attempt, nil
}

func (s *Store) fenced(docID string, attempt int, mutate func(*models.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[docID]
	if !ok || d.Attempt != attempt {
		return core.ErrStaleAttempt
	}
	mutate(d)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkProcessing(ctx context.Context, docID string, attempt int) error {
	return s.fenced(docID, attempt, func(d *models.Document) { d.Status = models.StatusProcessing })
}

func (s *Store) SetTotalPages(ctx context.Context, docID string, attempt, totalPages int) error {
	return s.fenced(docID, attempt, func(d *models.Document) { d.TotalPages = totalPages })
}

func (s *Store) AdvancePage(ctx context.Context, docID string, attempt, page int) error {
	return s.fenced(docID, attempt, func(d *models.Document) {
		if page > d.CurrentPage {
			d.CurrentPage = page
		}
	})
}

func (s *Store) MarkCompleted(ctx context.Context, docID string, attempt int) error {
	return s.fenced(docID, attempt, func(d *models.Document) {
		d.Status = models.StatusCompleted
		d.ErrorMessage = ""
	})
}

func (s *Store) MarkFailed(ctx context.Context, docID string, attempt int, message string) error {
	return s.fenced(docID, attempt, func(d *models.Document) {
		d.Status = models.StatusFailed
		d.ErrorMessage = message
	})
}

func (s *Store) ListStaleDocuments(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Document
	for _, d := range s.documents {
		if (d.Status == models.StatusPending || d.Status == models.StatusProcessing) && d.UpdatedAt.Before(cutoff) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// checkAttempt must be called with the lock held.
func (s *Store) checkAttempt(docID string, attempt int) error {
	d, ok := s.documents[docID]
	if !ok || d.Attempt != attempt {
		return core.ErrStaleAttempt
	}
	return nil
}

func (s *Store) ClearExtraction(ctx context.Context, docID string, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAttempt(docID, attempt); err != nil {
		return err
	}
	delete(s.paragraphs, docID)
	delete(s.assets, docID)
	return nil
}

func (s *Store) InsertParagraphs(ctx context.Context, docID string, attempt int, paragraphs []models.Paragraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAttempt(docID, attempt); err != nil {
		return err
	}
	for _, p := range paragraphs {
		s.paragraphs[p.DocumentID] = append(s.paragraphs[p.DocumentID], p)
	}
	return nil
}

func (s *Store) InsertAssets(ctx context.Context, docID string, attempt int, assets []models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAttempt(docID, attempt); err != nil {
		return err
	}
	for _, a := range assets {
		s.assets[a.DocumentID] = append(s.assets[a.DocumentID], a)
	}
	return nil
}

func (s *Store) GetParagraphsByDocument(ctx context.Context, docID string) ([]models.Paragraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Paragraph, len(s.paragraphs[docID]))
	copy(out, s.paragraphs[docID])
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out, nil
}

// Touch is a test helper that backdates a document's UpdatedAt.
func (s *Store) Touch(docID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.documents[docID]; ok {
		d.UpdatedAt = at
	}
}

// AssetsByDocument is a test helper; the DbClient interface does not need it.
func (s *Store) AssetsByDocument(docID string) []models.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Asset, len(s.assets[docID]))
	copy(out, s.assets[docID])
	return out
}

func (s *Store) Close() error { return nil }

var _ core.DbClient = (*Store)(nil)
