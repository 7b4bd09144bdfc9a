// Package ingest owns the document ingestion state machine: intake with
// hash-based dedup, page-by-page persistence, stuck-job sweeping and the
// worker pool that drives extraction through to indexing.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/models"
)

// SubmitResult is what an uploader gets back immediately; extraction runs
// in the background and the caller polls.
type SubmitResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	JobID      string `json:"job_id,omitempty"`
}

// Intake is the dedup gate in front of the pipeline. Identical bytes
// always resolve to one Document; re-uploads only add ownership bindings.
type Intake struct {
	db      core.DbClient
	storage core.ObjectClient
	queue   core.JobQueue
	vectors core.VectorStore // may be nil; instant-path owner grants degrade silently
	log     *zap.Logger
}

func NewIntake(db core.DbClient, storage core.ObjectClient, queue core.JobQueue, vectors core.VectorStore, log *zap.Logger) *Intake {
	if log == nil {
		log = zap.NewNop()
	}
	return &Intake{db: db, storage: storage, queue: queue, vectors: vectors, log: log}
}

// HashBytes computes the content hash that serves as the document id.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StorageKey is the object-store key for a document's source bytes.
func StorageKey(docID string) string {
	return "documents/" + docID + ".pdf"
}

// Submit ingests uploaded bytes for one principal.
func (in *Intake) Submit(ctx context.Context, ownerID, fileName string, data []byte) (*SubmitResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	docID := HashBytes(data)

	doc, err := in.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("lookup document: %w", err)
	}

	if doc == nil {
		created, err := in.createDocument(ctx, docID, fileName, data)
		if err != nil {
			return nil, err
		}
		if created {
			if err := in.db.CreateOwnership(ctx, docID, ownerID, fileName); err != nil {
				return nil, fmt.Errorf("create ownership: %w", err)
			}
			jobID, err := dispatch(ctx, in.db, in.queue, docID, ownerID, false)
			if err != nil {
				return nil, err
			}
			return &SubmitResult{DocumentID: docID, Status: models.StatusProcessing, JobID: jobID}, nil
		}
		// Lost the creation race; treat the document as pre-existing.
		doc, err = in.db.GetDocumentByID(ctx, docID)
		if err != nil || doc == nil {
			return nil, fmt.Errorf("lookup document after race: %w", err)
		}
	}

	// Binding is idempotent and independent of extraction status.
	if err := in.db.CreateOwnership(ctx, docID, ownerID, fileName); err != nil {
		return nil, fmt.Errorf("create ownership: %w", err)
	}

	switch doc.Status {
	case models.StatusCompleted:
		// Instant path: grant the new owner access to the already
		// indexed points; no re-extraction.
		if in.vectors != nil {
			if err := in.vectors.AddOwner(ctx, docID, ownerID); err != nil {
				in.log.Warn("owner grant on vector points failed",
					zap.String("document_id", docID), zap.Error(err))
			}
		}
		return &SubmitResult{DocumentID: docID, Status: models.StatusCompleted}, nil

	case models.StatusProcessing:
		// Already in flight; hand back the existing job to poll.
		return &SubmitResult{DocumentID: docID, Status: models.StatusProcessing, JobID: doc.JobID}, nil

	default: // pending or failed: redispatch a fresh attempt
		jobID, err := dispatch(ctx, in.db, in.queue, docID, ownerID, false)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{DocumentID: docID, Status: models.StatusProcessing, JobID: jobID}, nil
	}
}

func (in *Intake) createDocument(ctx context.Context, docID, fileName string, data []byte) (bool, error) {
	key := StorageKey(docID)
	if err := in.storage.UploadFile(ctx, key, data, "application/pdf"); err != nil {
		return false, fmt.Errorf("store upload: %w", err)
	}
	created, err := in.db.CreateDocument(ctx, &models.Document{
		ID:         docID,
		FileName:   fileName,
		StorageKey: key,
		Status:     models.StatusPending,
	})
	if err != nil {
		return false, fmt.Errorf("create document: %w", err)
	}
	return created, nil
}

// Status reports the pollable state of a document.
func (in *Intake) Status(ctx context.Context, docID string) (*models.Document, error) {
	return in.db.GetDocumentByID(ctx, docID)
}

// Delete removes the caller's binding. The last binding takes the
// document with it: relational rows, vector points and the stored object.
func (in *Intake) Delete(ctx context.Context, docID, ownerID string) error {
	remaining, err := in.db.DeleteOwnership(ctx, docID, ownerID)
	if err != nil {
		return fmt.Errorf("delete ownership: %w", err)
	}
	if in.vectors != nil {
		if err := in.vectors.RemoveOwner(ctx, docID, ownerID); err != nil {
			in.log.Warn("owner removal on vector points failed",
				zap.String("document_id", docID), zap.Error(err))
		}
	}
	if remaining > 0 {
		return nil
	}
	if err := in.db.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := in.storage.DeleteFile(ctx, StorageKey(docID)); err != nil {
		in.log.Warn("object delete failed", zap.String("document_id", docID), zap.Error(err))
	}
	return nil
}

// dispatch starts a fresh extraction attempt and enqueues its job. It is
// shared by intake and the stuck-job sweep; isRestart is observability
// only.
func dispatch(ctx context.Context, db core.DbClient, queue core.JobQueue, docID, ownerID string, isRestart bool) (string, error) {
	jobID := uuid.NewString()
	attempt, err := db.BeginAttempt(ctx, docID, jobID)
	if err != nil {
		return "", fmt.Errorf("begin attempt: %w", err)
	}
	job := core.ExtractionJob{
		DocumentID: docID,
		JobID:      jobID,
		OwnerID:    ownerID,
		Attempt:    attempt,
		IsRestart:  isRestart,
	}
	if err := queue.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}
