package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paperbase-io/paperbase/internal/chunker"
	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/core/extraction"
	"github.com/paperbase-io/paperbase/internal/index"
	"github.com/paperbase-io/paperbase/internal/metrics"
	"github.com/paperbase-io/paperbase/internal/models"
)

// Worker consumes extraction jobs and drives each document from pending
// through extraction, persistence and indexing to its terminal status.
type Worker struct {
	db        core.DbClient
	storage   core.ObjectClient
	queue     core.JobQueue
	orch      *extraction.Orchestrator
	persister *Persister
	indexer   *index.Indexer
	chunkSize int
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewWorker(db core.DbClient, storage core.ObjectClient, queue core.JobQueue, orch *extraction.Orchestrator, persister *Persister, indexer *index.Indexer, chunkSize int, m *metrics.Metrics, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		db:        db,
		storage:   storage,
		queue:     queue,
		orch:      orch,
		persister: persister,
		indexer:   indexer,
		chunkSize: chunkSize,
		log:       log,
		metrics:   m,
	}
}

// Start runs n consuming loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, n int) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.log.Error("dequeue failed", zap.Error(err))
			continue
		}
		if err := w.Process(ctx, job); err != nil {
			w.log.Error("job failed",
				zap.String("document_id", job.DocumentID),
				zap.String("job_id", job.JobID),
				zap.Error(err))
		}
	}
}

// Process handles one extraction job end to end. A stale attempt anywhere
// along the way aborts silently; the superseding attempt owns the
// document.
func (w *Worker) Process(ctx context.Context, job core.ExtractionJob) error {
	start := time.Now()

	doc, err := w.db.GetDocumentByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		// Deleted between enqueue and dequeue.
		return nil
	}
	if doc.Attempt != job.Attempt {
		w.log.Info("skipping superseded job",
			zap.String("document_id", job.DocumentID),
			zap.Int("job_attempt", job.Attempt),
			zap.Int("current_attempt", doc.Attempt))
		return nil
	}

	if err := w.db.MarkProcessing(ctx, job.DocumentID, job.Attempt); err != nil {
		if errors.Is(err, core.ErrStaleAttempt) {
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	data, err := w.storage.GetFile(ctx, doc.StorageKey)
	if err != nil {
		return w.fail(ctx, job, fmt.Sprintf("fetch source: %v", err))
	}

	res, err := w.orch.Extract(ctx, job.DocumentID, doc.FileName, data)
	if err != nil {
		var hard *extraction.HardError
		if errors.As(err, &hard) {
			return w.fail(ctx, job, hard.Msg)
		}
		return w.fail(ctx, job, fmt.Sprintf("extract: %v", err))
	}
	if w.metrics != nil {
		w.metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
		if res.Source != extraction.SourceCloud {
			w.metrics.FallbackExtractions.Inc()
		}
	}

	if err := w.db.SetTotalPages(ctx, job.DocumentID, job.Attempt, res.PageCount); err != nil {
		if errors.Is(err, core.ErrStaleAttempt) {
			return nil
		}
		return fmt.Errorf("set total pages: %w", err)
	}

	if err := w.persister.PersistAll(ctx, job.DocumentID, job.Attempt, res); err != nil {
		if errors.Is(err, core.ErrStaleAttempt) {
			return nil
		}
		return w.fail(ctx, job, fmt.Sprintf("persist: %v", err))
	}

	// Index for every owner bound so far, not just the submitting one. A
	// restart job carries no owner, and other principals may have bound the
	// document while it was processing.
	owners, err := w.db.ListOwners(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}
	chunks := chunker.Split(res.Paragraphs, w.chunkSize)
	report, err := w.indexer.Index(ctx, job.DocumentID, chunks, owners)
	if err != nil {
		return w.fail(ctx, job, fmt.Sprintf("index: %v", err))
	}
	if !report.Persisted && w.metrics != nil {
		w.metrics.IndexingDegraded.Inc()
	}

	if err := w.db.MarkCompleted(ctx, job.DocumentID, job.Attempt); err != nil {
		if errors.Is(err, core.ErrStaleAttempt) {
			return nil
		}
		return fmt.Errorf("mark completed: %w", err)
	}
	if w.metrics != nil {
		w.metrics.DocumentsIngested.WithLabelValues(models.StatusCompleted).Inc()
	}
	w.log.Info("document completed",
		zap.String("document_id", job.DocumentID),
		zap.String("source", res.Source),
		zap.Int("pages", res.PageCount),
		zap.Int("chunks", len(chunks)),
		zap.Bool("indexed", report.Persisted))
	return nil
}

// Reindex rebuilds a document's chunks and vectors from the persisted
// paragraphs without re-running extraction, granting every bound owner.
func (w *Worker) Reindex(ctx context.Context, documentID string) (index.Report, error) {
	paragraphs, err := w.db.GetParagraphsByDocument(ctx, documentID)
	if err != nil {
		return index.Report{}, fmt.Errorf("load paragraphs: %w", err)
	}
	owners, err := w.db.ListOwners(ctx, documentID)
	if err != nil {
		return index.Report{}, fmt.Errorf("list owners: %w", err)
	}
	chunks := chunker.Split(paragraphs, w.chunkSize)
	return w.indexer.Index(ctx, documentID, chunks, owners)
}

func (w *Worker) fail(ctx context.Context, job core.ExtractionJob, msg string) error {
	if err := w.db.MarkFailed(ctx, job.DocumentID, job.Attempt, msg); err != nil {
		if errors.Is(err, core.ErrStaleAttempt) {
			return nil
		}
		return fmt.Errorf("mark failed: %w", err)
	}
	if w.metrics != nil {
		w.metrics.DocumentsIngested.WithLabelValues(models.StatusFailed).Inc()
	}
	return fmt.Errorf("document %s failed: %s", job.DocumentID, msg)
}
