package core

import (
	"context"
	"errors"
	"time"

	"github.com/paperbase-io/paperbase/internal/models"
)

// ErrStaleAttempt is returned by attempt-fenced writes when a newer
// extraction attempt has already been started for the document. The stale
// writer must stop; its remaining work belongs to the superseding attempt.
var ErrStaleAttempt = errors.New("stale extraction attempt")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	// CreateDocument inserts a document row keyed by content hash. It
	// reports created=false when a concurrent submission of the same
	// content won the race; callers then re-read and treat the document
	// as pre-existing.
	CreateDocument(ctx context.Context, doc *models.Document) (created bool, err error)
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// CreateOwnership is idempotent: at most one binding per
	// (document, owner) pair no matter how often it is called.
	CreateOwnership(ctx context.Context, docID, ownerID, fileName string) error
	HasOwnership(ctx context.Context, docID, ownerID string) (bool, error)
	ListOwners(ctx context.Context, docID string) ([]string, error)
	// DeleteOwnership removes one binding and reports how many remain.
	DeleteOwnership(ctx context.Context, docID, ownerID string) (remaining int, err error)

	// BeginAttempt bumps the document's attempt counter, records the new
	// job id, resets progress and clears any previous error. All
	// subsequent writes of the attempt are fenced on the returned value.
	BeginAttempt(ctx context.Context, docID, jobID string) (attempt int, err error)
	MarkProcessing(ctx context.Context, docID string, attempt int) error
	SetTotalPages(ctx context.Context, docID string, attempt, totalPages int) error
	// AdvancePage commits current_page = page for the given attempt.
	// Returns ErrStaleAttempt when a newer attempt owns the document.
	AdvancePage(ctx context.Context, docID string, attempt, page int) error
	MarkCompleted(ctx context.Context, docID string, attempt int) error
	MarkFailed(ctx context.Context, docID string, attempt int, message string) error
	// ListStaleDocuments returns documents still pending or processing
	// whose last update is older than cutoff.
	ListStaleDocuments(ctx context.Context, cutoff time.Time) ([]models.Document, error)

	// ClearExtraction drops all paragraph and asset rows of a document.
	// A re-extraction is a full replace, never a merge. Like the inserts
	// below it is fenced on the attempt: a superseded writer gets
	// ErrStaleAttempt and leaves the newer attempt's rows untouched.
	ClearExtraction(ctx context.Context, docID string, attempt int) error
	InsertParagraphs(ctx context.Context, docID string, attempt int, paragraphs []models.Paragraph) error
	InsertAssets(ctx context.Context, docID string, attempt int, assets []models.Asset) error
	GetParagraphsByDocument(ctx context.Context, docID string) ([]models.Paragraph, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// Keys are derived from document ids so storage stays content-addressed.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) error
	GetFile(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	DeleteFile(ctx context.Context, key string) error
}

// ExtractionJob is the unit of work carried by the task queue.
type ExtractionJob struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	// OwnerID is the submitting principal, empty on sweep restarts. The
	// owner set used at index time always comes from the ownership
	// bindings, never from this field.
	OwnerID string `json:"owner_id"`
	Attempt int    `json:"attempt"`
	// IsRestart marks jobs redispatched by the stuck-job sweep. It is
	// observability only and changes no processing behavior.
	IsRestart bool `json:"is_restart"`
}

// JobQueue is a durable producer/consumer queue for extraction jobs.
// Dequeue blocks until a job is available or ctx is done.
type JobQueue interface {
	Enqueue(ctx context.Context, job ExtractionJob) error
	Dequeue(ctx context.Context) (ExtractionJob, error)
}
