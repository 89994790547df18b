package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

// Task lifecycle states
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrTaskNotFound is returned for unknown or expired task ids
var ErrTaskNotFound = errors.New("task not found")

// RefreshTask asks a worker to revalue every active position of a user
type RefreshTask struct {
	ID         string    `json:"id"`
	UserID     int       `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRefreshTask creates a task with a fresh id
func NewRefreshTask(userID int) RefreshTask {
	return RefreshTask{
		ID:         uuid.NewString(),
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// TaskStatus is the observable progress of a task
type TaskStatus struct {
	TaskID    string                `json:"task_id"`
	UserID    int                   `json:"user_id"`
	Status    string                `json:"status"`
	Attempts  int                   `json:"attempts"`
	LastError string                `json:"last_error,omitempty"`
	Result    *ledger.RefreshResult `json:"result,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Queue moves refresh tasks from the API to the workers and tracks their status
type Queue interface {
	Enqueue(ctx context.Context, task RefreshTask) error
	// Dequeue blocks until a task is available or ctx is done
	Dequeue(ctx context.Context) (RefreshTask, error)
	SetStatus(ctx context.Context, status TaskStatus) error
	GetStatus(ctx context.Context, taskID string) (*TaskStatus, error)
}
