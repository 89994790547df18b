package tasks

import (
	"context"
	"sync"
)

// LocalQueue is an in-process Queue for running without Redis
type LocalQueue struct {
	ch chan RefreshTask

	mu       sync.RWMutex
	statuses map[string]TaskStatus
}

// NewLocalQueue creates a queue holding up to size pending tasks
func NewLocalQueue(size int) *LocalQueue {
	if size <= 0 {
		size = 1024
	}
	return &LocalQueue{
		ch:       make(chan RefreshTask, size),
		statuses: make(map[string]TaskStatus),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, task RefreshTask) error {
	if err := q.SetStatus(ctx, TaskStatus{
		TaskID:    task.ID,
		UserID:    task.UserID,
		Status:    StatusQueued,
		UpdatedAt: task.EnqueuedAt,
	}); err != nil {
		return err
	}

	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) Dequeue(ctx context.Context) (RefreshTask, error) {
	select {
	case task := <-q.ch:
		return task, nil
	case <-ctx.Done():
		return RefreshTask{}, ctx.Err()
	}
}

func (q *LocalQueue) SetStatus(_ context.Context, status TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = status
	return nil
}

func (q *LocalQueue) GetStatus(_ context.Context, taskID string) (*TaskStatus, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	status, ok := q.statuses[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &status, nil
}
