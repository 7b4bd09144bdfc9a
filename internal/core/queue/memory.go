package queue

import (
	"context"

	"github.com/paperbase-io/paperbase/internal/core"
)

// MemoryQueue is a bounded in-process queue with the same contract as the
// Redis queue minus durability.
type MemoryQueue struct {
	jobs chan core.ExtractionJob
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{jobs: make(chan core.ExtractionJob, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job core.ExtractionJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (core.ExtractionJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return core.ExtractionJob{}, ctx.Err()
	}
}

// Len is a test helper reporting queued jobs.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

var _ core.JobQueue = (*MemoryQueue)(nil)
