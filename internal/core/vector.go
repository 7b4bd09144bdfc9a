package core

import "context"

// VectorPayload travels with every indexed point. Owners is the set of
// principals allowed to retrieve the point; it grows by union when the
// same content is indexed for another principal.
type VectorPayload struct {
	DocumentID string
	Page       int
	Section    string
	Text       string
	Owners     []string
}

// VectorPoint is one indexed chunk. ID is a deterministic function of
// (document id, chunk ordinal) so re-indexing overwrites, never duplicates.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload VectorPayload
}

// VectorFilter scopes a search or count. Zero-value fields are ignored.
type VectorFilter struct {
	DocumentID        string
	ExcludeDocumentID string
	Owner             string
	Section           string
}

// ScoredPoint is a search hit; higher scores are more similar.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload VectorPayload
}

// VectorStore abstracts the vector database. Upsert merges owner sets at
// existing point ids; a point is physically removed only once its owner
// set is empty.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int) error
	EnsureFieldIndex(ctx context.Context, field string) error
	Upsert(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, vector []float32, filter VectorFilter, limit int) ([]ScoredPoint, error)
	Count(ctx context.Context, filter VectorFilter) (int, error)
	// AddOwner grants an owner access to every point of a document
	// without re-embedding (the dedup "instant" path).
	AddOwner(ctx context.Context, documentID, ownerID string) error
	// RemoveOwner revokes access and deletes points left with no owner.
	RemoveOwner(ctx context.Context, documentID, ownerID string) error
}
