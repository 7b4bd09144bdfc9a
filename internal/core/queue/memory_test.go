package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbase-io/paperbase/internal/core"
)

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)

	require.NoError(t, q.Enqueue(ctx, core.ExtractionJob{JobID: "a"}))
	require.NoError(t, q.Enqueue(ctx, core.ExtractionJob{JobID: "b"}))
	assert.Equal(t, 2, q.Len())

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.JobID)
	assert.Equal(t, "b", second.JobID)
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueEnqueueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, core.ExtractionJob{JobID: "fills"}))

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(full, core.ExtractionJob{JobID: "blocked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
