package models

import (
	"time"
)

// Document statuses. A document moves pending -> processing -> completed,
// or to failed once every extraction path is exhausted.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Document represents one piece of uploaded content. Its ID is the sha256
// hex digest of the uploaded bytes, so identical uploads always resolve to
// the same row regardless of who uploaded them.
type Document struct {
	ID           string    `db:"id" json:"id"`
	FileName     string    `db:"file_name" json:"file_name"`
	StorageKey   string    `db:"storage_key" json:"storage_key"`
	TotalPages   int       `db:"total_pages" json:"total_pages"`
	CurrentPage  int       `db:"current_page" json:"current_page"`
	Status       string    `db:"status" json:"status"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	JobID        string    `db:"job_id" json:"job_id,omitempty"`
	Attempt      int       `db:"attempt" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentOwner binds a principal to a shared Document. A document row is
// kept alive for as long as at least one binding remains.
type DocumentOwner struct {
	DocumentID string    `db:"document_id" json:"document_id"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// BBox is a page-space rectangle: x0, y0, x1, y1.
type BBox [4]float64

// Paragraph is one extracted text unit. Immutable after extraction except
// for Translation; a re-extraction replaces all paragraphs of a document.
type Paragraph struct {
	ID          string `db:"id" json:"id"`
	DocumentID  string `db:"document_id" json:"document_id"`
	Page        int    `db:"page" json:"page"`
	Ordinal     int    `db:"ordinal" json:"ordinal"`
	Text        string `db:"text" json:"text"`
	BBox        BBox   `db:"bbox" json:"bbox"`
	Translation string `db:"translation" json:"translation,omitempty"`
}

// Asset kinds.
const (
	AssetImage   = "image"
	AssetTable   = "table"
	AssetFormula = "formula"
)

// Asset is a non-text extracted unit: an embedded image, a table, or a
// formula. Caption holds table/figure captions; Latex holds formula source.
type Asset struct {
	ID         string `db:"id" json:"id"`
	DocumentID string `db:"document_id" json:"document_id"`
	Kind       string `db:"kind" json:"kind"`
	Page       int    `db:"page" json:"page"`
	Ordinal    int    `db:"ordinal" json:"ordinal"`
	BBox       BBox   `db:"bbox" json:"bbox"`
	Caption    string `db:"caption" json:"caption,omitempty"`
	Latex      string `db:"latex" json:"latex,omitempty"`
	StorageKey string `db:"storage_key" json:"storage_key,omitempty"`
}

// Chunk is a retrieval-sized unit of text assembled from consecutive
// paragraphs, tagged with the section active when it started accumulating.
type Chunk struct {
	Ordinal   int    `json:"ordinal"`
	Text      string `json:"text"`
	StartPage int    `json:"start_page"`
	Section   string `json:"section"`
}

// ScoredChunk is an in-document retrieval hit.
type ScoredChunk struct {
	Text    string  `json:"text"`
	Page    int     `json:"page"`
	Section string  `json:"section"`
	Score   float64 `json:"score"`
}

// RelatedDocument is a cross-document discovery hit: the single
// best-scoring chunk of one candidate document.
type RelatedDocument struct {
	DocumentID string  `json:"document_id"`
	Snippet    string  `json:"snippet"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
}
