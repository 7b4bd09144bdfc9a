package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-io/paperbase/internal/core"
	memoryvec "github.com/paperbase-io/paperbase/internal/core/vectorstore/memory"
	"github.com/paperbase-io/paperbase/internal/models"
)

type constEmbedder struct {
	err   error
	short bool
}

func (c constEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []float32{1, 0, 0}, nil
}

func (c constEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	n := len(texts)
	if c.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func chunks(n int) []models.Chunk {
	out := make([]models.Chunk, n)
	for i := range out {
		out[i] = models.Chunk{Ordinal: i, Text: "chunk text", StartPage: i + 1, Section: "content"}
	}
	return out
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("doc-1", 3)
	b := PointID("doc-1", 3)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, PointID("doc-1", 4))
	assert.NotEqual(t, a, PointID("doc-2", 3))
}

func TestIndexUpsertsWithOwner(t *testing.T) {
	ctx := context.Background()
	store := memoryvec.New()
	ix := NewIndexer(constEmbedder{}, store, nil)

	report, err := ix.Index(ctx, "doc-1", chunks(3), []string{"alice"})
	require.NoError(t, err)
	assert.True(t, report.Persisted)
	assert.Equal(t, 3, report.Count)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, []string{"alice"}, store.Owners(PointID("doc-1", 0)))
}

func TestIndexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memoryvec.New()
	ix := NewIndexer(constEmbedder{}, store, nil)

	_, err := ix.Index(ctx, "doc-1", chunks(3), []string{"alice"})
	require.NoError(t, err)
	_, err = ix.Index(ctx, "doc-1", chunks(3), []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestIndexUnionsOwners(t *testing.T) {
	ctx := context.Background()
	store := memoryvec.New()
	ix := NewIndexer(constEmbedder{}, store, nil)

	_, err := ix.Index(ctx, "doc-1", chunks(1), []string{"alice"})
	require.NoError(t, err)
	_, err = ix.Index(ctx, "doc-1", chunks(1), []string{"bob"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, store.Owners(PointID("doc-1", 0)))
}

func TestIndexGrantsWholeOwnerSet(t *testing.T) {
	ctx := context.Background()
	store := memoryvec.New()
	ix := NewIndexer(constEmbedder{}, store, nil)

	_, err := ix.Index(ctx, "doc-1", chunks(2), []string{"alice", "bob"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, store.Owners(PointID("doc-1", 0)))
	assert.ElementsMatch(t, []string{"alice", "bob"}, store.Owners(PointID("doc-1", 1)))
}

func TestIndexEmptyChunks(t *testing.T) {
	store := memoryvec.New()
	ix := NewIndexer(constEmbedder{}, store, nil)
	report, err := ix.Index(context.Background(), "doc-1", nil, []string{"alice"})
	require.NoError(t, err)
	assert.True(t, report.Persisted)
	assert.Equal(t, 0, report.Count)
}

func TestIndexDegradesOnEmbedderFailure(t *testing.T) {
	store := memoryvec.New()
	ix := NewIndexer(constEmbedder{err: errors.New("quota exceeded")}, store, nil)
	report, err := ix.Index(context.Background(), "doc-1", chunks(2), []string{"alice"})
	require.NoError(t, err)
	assert.False(t, report.Persisted)
	assert.Equal(t, 0, store.Len())
}

func TestIndexDegradesOnVectorCountMismatch(t *testing.T) {
	store := memoryvec.New()
	ix := NewIndexer(constEmbedder{short: true}, store, nil)
	report, err := ix.Index(context.Background(), "doc-1", chunks(2), []string{"alice"})
	require.NoError(t, err)
	assert.False(t, report.Persisted)
}

func TestIndexDegradesWithoutStore(t *testing.T) {
	ix := NewIndexer(constEmbedder{}, nil, nil)
	report, err := ix.Index(context.Background(), "doc-1", chunks(1), []string{"alice"})
	require.NoError(t, err)
	assert.False(t, report.Persisted)
}

var _ core.EmbeddingProvider = constEmbedder{}
