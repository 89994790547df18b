package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

// RedisConfig configures the Redis-backed queue
type RedisConfig struct {
	QueueKey     string
	StatusPrefix string
	StatusTTL    time.Duration
	PollTimeout  time.Duration
}

// RedisQueue keeps pending tasks in a Redis list and each task's status in a
// hash that expires after StatusTTL
type RedisQueue struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisQueue creates a queue on an existing client
func NewRedisQueue(client *redis.Client, cfg RedisConfig) *RedisQueue {
	if cfg.QueueKey == "" {
		cfg.QueueKey = "ledger:refresh:queue"
	}
	if cfg.StatusPrefix == "" {
		cfg.StatusPrefix = "ledger:refresh:task:"
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, cfg: cfg}
}

func (q *RedisQueue) statusKey(taskID string) string {
	return q.cfg.StatusPrefix + taskID
}

// Enqueue records the task as queued and pushes it in one round trip
func (q *RedisQueue) Enqueue(ctx context.Context, task RefreshTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := q.statusKey(task.ID)
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, statusFields(TaskStatus{
			TaskID:    task.ID,
			UserID:    task.UserID,
			Status:    StatusQueued,
			UpdatedAt: task.EnqueuedAt,
		}))
		pipe.Expire(ctx, key, q.cfg.StatusTTL)
		pipe.LPush(ctx, q.cfg.QueueKey, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue pops the oldest task, polling so ctx cancellation is noticed
func (q *RedisQueue) Dequeue(ctx context.Context) (RefreshTask, error) {
	for {
		if err := ctx.Err(); err != nil {
			return RefreshTask{}, err
		}

		res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, q.cfg.QueueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return RefreshTask{}, ctx.Err()
			}
			return RefreshTask{}, fmt.Errorf("failed to pop task: %w", err)
		}

		// res is [key, value]
		var task RefreshTask
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return RefreshTask{}, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		return task, nil
	}
}

func (q *RedisQueue) SetStatus(ctx context.Context, status TaskStatus) error {
	key := q.statusKey(status.TaskID)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, statusFields(status))
		pipe.Expire(ctx, key, q.cfg.StatusTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set task status: %w", err)
	}
	return nil
}

func (q *RedisQueue) GetStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	fields, err := q.client.HGetAll(ctx, q.statusKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrTaskNotFound
	}

	status := &TaskStatus{
		TaskID:    taskID,
		Status:    fields["status"],
		LastError: fields["last_error"],
	}
	status.UserID, _ = strconv.Atoi(fields["user_id"])
	status.Attempts, _ = strconv.Atoi(fields["attempts"])
	status.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if raw := fields["result"]; raw != "" {
		var result ledger.RefreshResult
		if err := json.Unmarshal([]byte(raw), &result); err == nil {
			status.Result = &result
		}
	}
	return status, nil
}

func statusFields(s TaskStatus) map[string]any {
	fields := map[string]any{
		"user_id":    s.UserID,
		"status":     s.Status,
		"attempts":   s.Attempts,
		"last_error": s.LastError,
		"updated_at": s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if s.Result != nil {
		if raw, err := json.Marshal(s.Result); err == nil {
			fields["result"] = string(raw)
		}
	}
	return fields
}
