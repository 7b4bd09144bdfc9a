// Package memoryvec is an in-memory core.VectorStore with brute-force
// cosine search. It mirrors the Postgres store's owner-set semantics for
// tests and database-free runs.
package memoryvec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/paperbase-io/paperbase/internal/core"
)

type point struct {
	vector  []float32
	payload core.VectorPayload
	owners  map[string]bool
}

type Store struct {
	mu     sync.RWMutex
	dim    int
	points map[string]*point
	fields map[string]bool
}

func New() *Store {
	return &Store{points: make(map[string]*point), fields: make(map[string]bool)}
}

func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dim = dim
	return nil
}

func (s *Store) EnsureFieldIndex(ctx context.Context, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[field] = true
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []core.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range points {
		p := &points[i]
		existing, ok := s.points[p.ID]
		if !ok {
			existing = &point{owners: make(map[string]bool)}
			s.points[p.ID] = existing
		}
		existing.vector = append([]float32(nil), p.Vector...)
		existing.payload = p.Payload
		for _, o := range p.Payload.Owners {
			existing.owners[o] = true
		}
	}
	return nil
}

func (s *Store) matches(p *point, filter core.VectorFilter) bool {
	if filter.DocumentID != "" && p.payload.DocumentID != filter.DocumentID {
		return false
	}
	if filter.ExcludeDocumentID != "" && p.payload.DocumentID == filter.ExcludeDocumentID {
		return false
	}
	if filter.Section != "" && p.payload.Section != filter.Section {
		return false
	}
	if filter.Owner != "" && !p.owners[filter.Owner] {
		return false
	}
	return true
}

func (s *Store) Search(ctx context.Context, vector []float32, filter core.VectorFilter, limit int) ([]core.ScoredPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.ScoredPoint
	for id, p := range s.points {
		if !s.matches(p, filter) {
			continue
		}
		payload := p.payload
		payload.Owners = ownerList(p.owners)
		out = append(out, core.ScoredPoint{ID: id, Score: cosine(vector, p.vector), Payload: payload})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, filter core.VectorFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.points {
		if s.matches(p, filter) {
			n++
		}
	}
	return n, nil
}

func (s *Store) AddOwner(ctx context.Context, documentID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.points {
		if p.payload.DocumentID == documentID {
			p.owners[ownerID] = true
		}
	}
	return nil
}

func (s *Store) RemoveOwner(ctx context.Context, documentID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.payload.DocumentID != documentID {
			continue
		}
		delete(p.owners, ownerID)
		if len(p.owners) == 0 {
			delete(s.points, id)
		}
	}
	return nil
}

// Owners is a test helper exposing the owner set at a point id.
func (s *Store) Owners(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	if !ok {
		return nil
	}
	return ownerList(p.owners)
}

// Len is a test helper reporting the number of stored points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func ownerList(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for o := range m {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ core.VectorStore = (*Store)(nil)
