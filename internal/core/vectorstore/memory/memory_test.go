package memoryvec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-io/paperbase/internal/core"
)

func pt(id, docID, section string, vector []float32, owners ...string) core.VectorPoint {
	return core.VectorPoint{
		ID:     id,
		Vector: vector,
		Payload: core.VectorPayload{
			DocumentID: docID,
			Section:    section,
			Text:       "text of " + id,
			Owners:     owners,
		},
	}
}

func TestUpsertOverwritesByID(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upsert(ctx, []core.VectorPoint{pt("p1", "d1", "content", []float32{1, 0}, "alice")}))
	require.NoError(t, s.Upsert(ctx, []core.VectorPoint{pt("p1", "d1", "method", []float32{0, 1}, "bob")}))

	assert.Equal(t, 1, s.Len())
	// Payload replaced, owners unioned.
	assert.ElementsMatch(t, []string{"alice", "bob"}, s.Owners("p1"))

	hits, err := s.Search(ctx, []float32{0, 1}, core.VectorFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "method", hits[0].Payload.Section)
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []core.VectorPoint{
		pt("p1", "d1", "abstract", []float32{1, 0}, "alice"),
		pt("p2", "d2", "abstract", []float32{1, 0}, "alice"),
		pt("p3", "d2", "method", []float32{1, 0}, "bob"),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, core.VectorFilter{Owner: "alice"}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Search(ctx, []float32{1, 0}, core.VectorFilter{ExcludeDocumentID: "d1"}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Search(ctx, []float32{1, 0}, core.VectorFilter{DocumentID: "d2", Section: "method"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p3", hits[0].ID)
}

func TestSearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []core.VectorPoint{
		pt("far", "d1", "", []float32{0, 1}, "alice"),
		pt("near", "d1", "", []float32{1, 0.1}, "alice"),
	}))

	hits, err := s.Search(ctx, []float32{1, 0}, core.VectorFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestRemoveOwnerDropsOrphanedPoints(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []core.VectorPoint{
		pt("p1", "d1", "", []float32{1}, "alice", "bob"),
		pt("p2", "d1", "", []float32{1}, "alice"),
	}))

	require.NoError(t, s.RemoveOwner(ctx, "d1", "alice"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"bob"}, s.Owners("p1"))
	assert.Nil(t, s.Owners("p2"))
}

func TestAddOwnerGrantsAllDocumentPoints(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []core.VectorPoint{
		pt("p1", "d1", "", []float32{1}, "alice"),
		pt("p2", "d2", "", []float32{1}, "alice"),
	}))

	require.NoError(t, s.AddOwner(ctx, "d1", "bob"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, s.Owners("p1"))
	assert.Equal(t, []string{"alice"}, s.Owners("p2"))
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Upsert(ctx, []core.VectorPoint{
		pt("p1", "d1", "", []float32{1}, "alice"),
		pt("p2", "d1", "", []float32{1}, "bob"),
	}))
	n, err := s.Count(ctx, core.VectorFilter{DocumentID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.Count(ctx, core.VectorFilter{Owner: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
