package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paperbase-io/paperbase/internal/core"
)

func TestBuildFilterEmpty(t *testing.T) {
	var args []any
	where := buildFilter(core.VectorFilter{}, &args)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestBuildFilterNumbersAfterExistingArgs(t *testing.T) {
	args := []any{"vector-placeholder"}
	where := buildFilter(core.VectorFilter{DocumentID: "d1", Owner: "alice"}, &args)
	assert.Equal(t,
		" WHERE p.document_id = $2 AND EXISTS (SELECT 1 FROM chunk_point_owners o WHERE o.point_id = p.id AND o.owner_id = $3)",
		where)
	assert.Equal(t, []any{"vector-placeholder", "d1", "alice"}, args)
}

func TestBuildFilterAllConditions(t *testing.T) {
	var args []any
	where := buildFilter(core.VectorFilter{
		DocumentID:        "d1",
		ExcludeDocumentID: "d2",
		Section:           "abstract",
		Owner:             "alice",
	}, &args)
	assert.Contains(t, where, "p.document_id = $1")
	assert.Contains(t, where, "p.document_id <> $2")
	assert.Contains(t, where, "p.section = $3")
	assert.Contains(t, where, "o.owner_id = $4")
	assert.Len(t, args, 4)
}

func TestEnsureFieldIndexRejectsUnknownField(t *testing.T) {
	s := NewPgVectorStore(nil)
	err := s.EnsureFieldIndex(context.Background(), "owner_id; DROP TABLE chunk_points")
	assert.Error(t, err)
}

func TestEnsureCollectionRejectsBadDimension(t *testing.T) {
	s := NewPgVectorStore(nil)
	assert.Error(t, s.EnsureCollection(context.Background(), 0))
}
