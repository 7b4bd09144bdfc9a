// Package index embeds chunks and upserts them into the vector store with
// deterministic point ids, so re-indexing a document overwrites instead of
// duplicating.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/models"
)

// Report describes an indexing run. Persisted=false means the vector
// store or embedding provider was unavailable; ingestion still succeeds
// and search stays empty until a re-index.
type Report struct {
	Persisted bool
	Count     int
}

type Indexer struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
	log      *zap.Logger
}

func NewIndexer(embedder core.EmbeddingProvider, store core.VectorStore, log *zap.Logger) *Indexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Indexer{embedder: embedder, store: store, log: log}
}

// PointID is a stable hash of (document id, chunk ordinal).
func PointID(documentID string, ordinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", documentID, ordinal)))
	return hex.EncodeToString(sum[:16])
}

// Index embeds and upserts one document's chunks for the given owner set,
// normally every principal bound to the document at index time. The owner
// set at each point grows by union, never shrinks here.
func (ix *Indexer) Index(ctx context.Context, documentID string, chunks []models.Chunk, owners []string) (Report, error) {
	if len(chunks) == 0 {
		return Report{Persisted: true}, nil
	}
	if ix.store == nil || ix.embedder == nil {
		return Report{}, nil
	}

	// The filterable document_id index must exist before bulk writes so
	// per-document deletion and scoping stay efficient.
	if err := ix.store.EnsureFieldIndex(ctx, "document_id"); err != nil {
		return ix.degrade(documentID, "ensure field index", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return ix.degrade(documentID, "embed chunks", err)
	}
	if len(vectors) != len(chunks) {
		return ix.degrade(documentID, "embed chunks",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	points := make([]core.VectorPoint, len(chunks))
	for i, c := range chunks {
		points[i] = core.VectorPoint{
			ID:     PointID(documentID, c.Ordinal),
			Vector: vectors[i],
			Payload: core.VectorPayload{
				DocumentID: documentID,
				Page:       c.StartPage,
				Section:    c.Section,
				Text:       c.Text,
				Owners:     owners,
			},
		}
	}
	if err := ix.store.Upsert(ctx, points); err != nil {
		return ix.degrade(documentID, "upsert points", err)
	}
	return Report{Persisted: true, Count: len(points)}, nil
}

// degrade logs and reports not-persisted instead of failing the pipeline.
func (ix *Indexer) degrade(documentID, stage string, err error) (Report, error) {
	ix.log.Warn("indexing degraded",
		zap.String("document_id", documentID),
		zap.String("stage", stage),
		zap.Error(err))
	return Report{}, nil
}
