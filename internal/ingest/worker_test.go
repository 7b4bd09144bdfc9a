package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-io/paperbase/internal/core"
	memorydb "github.com/paperbase-io/paperbase/internal/core/database/memory"
	"github.com/paperbase-io/paperbase/internal/core/extraction"
	"github.com/paperbase-io/paperbase/internal/core/queue"
	memoryvec "github.com/paperbase-io/paperbase/internal/core/vectorstore/memory"
	"github.com/paperbase-io/paperbase/internal/index"
	"github.com/paperbase-io/paperbase/internal/models"
)

// hashEmbedder is a deterministic EmbeddingProvider.
type hashEmbedder struct{}

func (hashEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r%13) / 13
	}
	return v, nil
}

func (h hashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// stubRenderer emits two pages of parseable text.
type stubRenderer struct {
	err error
}

func (s stubRenderer) PageCount(string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return 2, nil
}

func (stubRenderer) PageSize(string, int) (float64, float64, error) { return 612, 792, nil }

func (stubRenderer) TextBlocks(_ string, page int) ([]core.TextBlock, error) {
	if page == 1 {
		return []core.TextBlock{
			{Text: "Abstract", BBox: models.BBox{72, 600, 200, 620}},
			{Text: "This paper studies content addressed ingestion pipelines.", BBox: models.BBox{72, 300, 540, 400}},
		}, nil
	}
	return []core.TextBlock{
		{Text: "Further details about the pipeline follow on this page.", BBox: models.BBox{72, 300, 540, 400}},
	}, nil
}

func (stubRenderer) ImageRefs(string, int) ([]core.ImageRef, error) { return nil, nil }

type workerFixture struct {
	db      *memorydb.Store
	storage *fakeStorage
	queue   *queue.MemoryQueue
	vectors *memoryvec.Store
	intake  *Intake
	worker  *Worker
}

func newWorkerFixture(t *testing.T, renderer core.PageRenderer) *workerFixture {
	t.Helper()
	f := &workerFixture{
		db:      memorydb.New(),
		storage: newFakeStorage(),
		queue:   queue.NewMemoryQueue(16),
		vectors: memoryvec.New(),
	}
	require.NoError(t, f.vectors.EnsureCollection(context.Background(), 4))
	f.intake = NewIntake(f.db, f.storage, f.queue, f.vectors, nil)
	orch := extraction.NewOrchestrator(extraction.Options{Renderer: renderer})
	indexer := index.NewIndexer(hashEmbedder{}, f.vectors, nil)
	f.worker = NewWorker(f.db, f.storage, f.queue, orch, NewPersister(f.db), indexer, 1200, nil, nil)
	return f
}

func TestProcessCompletesDocument(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, stubRenderer{})

	data := []byte("pdf bytes")
	res, err := f.intake.Submit(ctx, "alice", "paper.pdf", data)
	require.NoError(t, err)

	job, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, f.worker.Process(ctx, job))

	doc, err := f.db.GetDocumentByID(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, 2, doc.TotalPages)
	assert.Equal(t, 2, doc.CurrentPage)
	assert.Empty(t, doc.ErrorMessage)

	paragraphs, err := f.db.GetParagraphsByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Len(t, paragraphs, 2)

	// Chunks landed in the vector store with the submitting owner.
	count, err := f.vectors.Count(ctx, core.VectorFilter{DocumentID: res.DocumentID, Owner: "alice"})
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestProcessMarksFailedWhenAllPathsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, stubRenderer{err: errors.New("unreadable")})

	res, err := f.intake.Submit(ctx, "alice", "broken.pdf", []byte("junk"))
	require.NoError(t, err)

	job, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	err = f.worker.Process(ctx, job)
	require.Error(t, err)

	doc, err := f.db.GetDocumentByID(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.ErrorMessage)
}

func TestProcessSkipsSupersededJob(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, stubRenderer{})

	res, err := f.intake.Submit(ctx, "alice", "paper.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	job, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)

	// A restart bumps the attempt before the stale job runs.
	_, err = f.db.BeginAttempt(ctx, res.DocumentID, "newer-job")
	require.NoError(t, err)

	require.NoError(t, f.worker.Process(ctx, job))

	doc, err := f.db.GetDocumentByID(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.Status)
	paragraphs, err := f.db.GetParagraphsByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, paragraphs)
}

func TestProcessMissingDocumentIsNoop(t *testing.T) {
	f := newWorkerFixture(t, stubRenderer{})
	err := f.worker.Process(context.Background(), core.ExtractionJob{
		DocumentID: "gone", JobID: "j", Attempt: 1,
	})
	assert.NoError(t, err)
}

func TestProcessIndexesEveryBoundOwner(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, stubRenderer{})

	res, err := f.intake.Submit(ctx, "alice", "paper.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	job, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, f.db.MarkProcessing(ctx, res.DocumentID, job.Attempt))

	// Bob re-uploads the same content while the document is processing.
	// His binding exists but no vectors do yet.
	second, err := f.intake.Submit(ctx, "bob", "same-paper.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	require.Equal(t, job.JobID, second.JobID)

	require.NoError(t, f.worker.Process(ctx, job))

	for _, owner := range []string{"alice", "bob"} {
		count, err := f.vectors.Count(ctx, core.VectorFilter{DocumentID: res.DocumentID, Owner: owner})
		require.NoError(t, err)
		assert.Greater(t, count, 0, "owner %s", owner)
	}
}

func TestProcessAfterSweepRestartKeepsOwnersSearchable(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, stubRenderer{})

	res, err := f.intake.Submit(ctx, "alice", "paper.pdf", []byte("pdf bytes"))
	require.NoError(t, err)

	// The original job is lost; the sweep redispatches without an owner.
	_, err = f.queue.Dequeue(ctx)
	require.NoError(t, err)
	f.db.Touch(res.DocumentID, time.Now().Add(-time.Hour))
	mon := NewMonitor(f.db, f.queue, 10*time.Minute, nil, nil)
	restarted, err := mon.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, restarted)

	job, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, job.IsRestart)
	require.Empty(t, job.OwnerID)
	require.NoError(t, f.worker.Process(ctx, job))

	doc, err := f.db.GetDocumentByID(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)

	count, err := f.vectors.Count(ctx, core.VectorFilter{DocumentID: res.DocumentID, Owner: "alice"})
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestReindexRebuildsVectors(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, stubRenderer{})

	res, err := f.intake.Submit(ctx, "alice", "paper.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	job, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, f.worker.Process(ctx, job))

	// A second owner bound after completion is granted on reindex too.
	require.NoError(t, f.db.CreateOwnership(ctx, res.DocumentID, "bob", "copy.pdf"))

	report, err := f.worker.Reindex(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.True(t, report.Persisted)
	assert.Greater(t, report.Count, 0)

	for _, owner := range []string{"alice", "bob"} {
		count, err := f.vectors.Count(ctx, core.VectorFilter{DocumentID: res.DocumentID, Owner: owner})
		require.NoError(t, err)
		assert.Equal(t, report.Count, count, "owner %s", owner)
	}
}
