// Package retrieval answers semantic queries against the vector store:
// ranked in-document search and cross-document discovery.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/core"
	"github.com/paperbase-io/paperbase/internal/models"
)

const snippetRunes = 280

// Discovery pulls a wider net than topK because hits are later collapsed
// to the best chunk per document.
const discoveryOversample = 4

type Retriever struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
	log      *zap.Logger
}

func NewRetriever(embedder core.EmbeddingProvider, store core.VectorStore, log *zap.Logger) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, log: log}
}

// Retrieve returns the topK most similar chunks of one document, scoped to
// the requesting owner.
func (r *Retriever) Retrieve(ctx context.Context, query, documentID, ownerID string, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = 5
	}
	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.Search(ctx, vector, core.VectorFilter{
		DocumentID: documentID,
		Owner:      ownerID,
	}, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.ScoredChunk{
			Text:    h.Payload.Text,
			Page:    h.Payload.Page,
			Section: h.Payload.Section,
			Score:   h.Score,
		})
	}
	return out, nil
}

// RetrieveRelated finds other documents in the owner's library related to
// the query. Abstract chunks are preferred; when no abstract is indexed
// the search falls back to any section. The excluded document never
// appears and each candidate document contributes only its best chunk.
func (r *Retriever) RetrieveRelated(ctx context.Context, query, ownerID, excludeDocumentID string, topK int) ([]models.RelatedDocument, error) {
	if topK <= 0 {
		topK = 5
	}
	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := core.VectorFilter{
		Owner:             ownerID,
		ExcludeDocumentID: excludeDocumentID,
		Section:           "abstract",
	}
	hits, err := r.store.Search(ctx, vector, filter, topK*discoveryOversample)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		filter.Section = ""
		hits, err = r.store.Search(ctx, vector, filter, topK*discoveryOversample)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
	}

	best := make(map[string]core.ScoredPoint)
	for _, h := range hits {
		docID := h.Payload.DocumentID
		if cur, ok := best[docID]; !ok || h.Score > cur.Score {
			best[docID] = h
		}
	}

	out := make([]models.RelatedDocument, 0, len(best))
	for docID, h := range best {
		out = append(out, models.RelatedDocument{
			DocumentID: docID,
			Snippet:    snippet(h.Payload.Text),
			Page:       h.Payload.Page,
			Score:      h.Score,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:snippetRunes]) + "…"
}
