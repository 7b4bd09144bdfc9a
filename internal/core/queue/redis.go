// Package queue provides the extraction task queue. The Redis variant is
// durable across process restarts; the memory variant backs tests.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/paperbase-io/paperbase/internal/core"
)

const defaultKey = "paperbase:extraction_jobs"

type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(ctx context.Context, addr string, db int) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisQueue{client: client, key: defaultKey}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job core.ExtractionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks until a job arrives or ctx is done. BRPOP is bounded so
// cancellation is observed within a second.
func (q *RedisQueue) Dequeue(ctx context.Context) (core.ExtractionJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.ExtractionJob{}, err
		}
		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return core.ExtractionJob{}, fmt.Errorf("dequeue job: %w", err)
		}
		// BRPOP returns [key, value].
		var job core.ExtractionJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return core.ExtractionJob{}, fmt.Errorf("unmarshal job: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var _ core.JobQueue = (*RedisQueue)(nil)
