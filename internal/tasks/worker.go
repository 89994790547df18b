package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
)

// Refresher is the part of the ledger engine a worker drives
type Refresher interface {
	RefreshPositions(ctx context.Context, userID int) (*ledger.RefreshResult, error)
}

// WorkerConfig tunes the worker pool and its retry policy
type WorkerConfig struct {
	Shards      int
	MaxAttempts int           // total tries including the first
	BaseDelay   time.Duration // first retry delay, doubled on each retry
	MaxDelay    time.Duration
}

// Worker pulls refresh tasks off a Queue and runs them with retries. Tasks for
// the same user are processed one at a time.
type Worker struct {
	queue      Queue
	refresher  Refresher
	cfg        WorkerConfig
	log        logrus.FieldLogger
	newBackOff func() backoff.BackOff
}

// NewWorker creates a worker; zero config fields take the defaults
func NewWorker(queue Queue, refresher Refresher, cfg WorkerConfig, log logrus.FieldLogger) *Worker {
	if cfg.Shards <= 0 {
		cfg.Shards = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 10 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Minute
	}

	w := &Worker{queue: queue, refresher: refresher, cfg: cfg, log: log}
	w.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.BaseDelay
		b.Multiplier = 2
		b.MaxInterval = cfg.MaxDelay
		b.MaxElapsedTime = 0
		return b
	}
	return w
}

// Run consumes tasks until ctx is cancelled, then waits for in-flight tasks.
// Cancelling ctx only stops dequeuing; a dispatched task keeps retrying until
// it succeeds or runs out of attempts.
func (w *Worker) Run(ctx context.Context) error {
	dispatcher := NewDispatcher(w.cfg.Shards, 0)
	defer dispatcher.Close()

	taskCtx := context.WithoutCancel(ctx)

	w.log.WithField("shards", w.cfg.Shards).Info("refresh worker started")

	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("refresh worker stopping")
				return nil
			}
			w.log.WithError(err).Error("failed to dequeue refresh task")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		dispatcher.Dispatch(int64(task.UserID), func() {
			w.Process(taskCtx, task)
		})
	}
}

// Process runs one task to completion and records its final status
func (w *Worker) Process(ctx context.Context, task RefreshTask) *TaskStatus {
	log := w.log.WithFields(logrus.Fields{
		"task_id": task.ID,
		"user_id": task.UserID,
	})

	status := TaskStatus{TaskID: task.ID, UserID: task.UserID, Status: StatusRunning}
	w.saveStatus(ctx, log, &status)

	var result *ledger.RefreshResult
	op := func() error {
		status.Attempts++
		res, err := w.refresher.RefreshPositions(ctx, task.UserID)
		if err != nil {
			return err
		}
		result = res
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt":  status.Attempts,
			"retry_in": next.String(),
		}).Warn("refresh attempt failed, retrying")
		status.LastError = err.Error()
		w.saveStatus(ctx, log, &status)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(w.newBackOff(), uint64(w.cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, notify)

	if err != nil {
		status.Status = StatusFailed
		status.LastError = err.Error()
		log.WithError(err).WithField("attempts", status.Attempts).Error("refresh task failed after retries")
	} else {
		status.Status = StatusSucceeded
		status.LastError = ""
		status.Result = result
		log.WithFields(logrus.Fields{
			"attempts":  status.Attempts,
			"refreshed": len(result.Refreshed),
			"failed":    len(result.Failed),
		}).Info("refresh task completed")
	}

	w.saveStatus(context.WithoutCancel(ctx), log, &status)
	return &status
}

func (w *Worker) saveStatus(ctx context.Context, log logrus.FieldLogger, status *TaskStatus) {
	status.UpdatedAt = time.Now().UTC()
	if err := w.queue.SetStatus(ctx, *status); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("failed to record task status")
	}
}
