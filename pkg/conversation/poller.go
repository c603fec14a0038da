package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/MkDev11/OpenHands/pkg/appclient"
)

const (
	// DefaultPollInterval is the pause before each follow-up status fetch.
	DefaultPollInterval = time.Second
	// DefaultMaxAttempts caps the number of status fetches, bounding the
	// wait at roughly a minute of wall clock.
	DefaultMaxAttempts = 60

	// DefaultFailureReason is reported when a start task ends without a
	// usable conversation and carries no detail of its own. Timeouts share
	// this message with terminal failures.
	DefaultFailureReason = "Failed to create new conversation in sandbox"
)

// StartTaskFetcher fetches the current snapshot of a start task.
type StartTaskFetcher interface {
	GetStartTask(ctx context.Context, taskID string) (*appclient.StartTask, error)
}

// StartTaskError is a task-level failure: the task reached ERROR, reported
// READY without a conversation ID, or never went terminal within the attempt
// budget. Transport errors are returned as-is, never as StartTaskError.
type StartTaskError struct {
	Reason string
}

func (e *StartTaskError) Error() string { return e.Reason }

// StartTaskPoller observes a start task until it reaches a terminal state or
// the attempt budget runs out. Polling is serial: one fetch in flight per
// task, with a sleep before every fetch after the first.
type StartTaskPoller struct {
	Fetcher     StartTaskFetcher
	Interval    time.Duration // defaults to DefaultPollInterval
	MaxAttempts int           // defaults to DefaultMaxAttempts
	Log         logr.Logger

	// sleep is injected by tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Poll fetches the task until it is terminal and classifies the outcome.
// On success it returns the ID of the conversation the task brought up.
// Task-level failures come back as *StartTaskError; errors from the fetcher
// abort polling and propagate.
func (p *StartTaskPoller) Poll(ctx context.Context, taskID string) (string, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	task, err := p.Fetcher.GetStartTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("fetching start task %s: %w", taskID, err)
	}
	attempts := 1

	for task != nil && !task.Status.Terminal() && attempts < maxAttempts {
		if err := sleep(ctx, interval); err != nil {
			return "", err
		}
		task, err = p.Fetcher.GetStartTask(ctx, taskID)
		if err != nil {
			return "", fmt.Errorf("fetching start task %s: %w", taskID, err)
		}
		attempts++
		p.Log.V(1).Info("polled start task", "task", taskID, "status", task.Status, "attempt", attempts)
	}

	if task == nil || task.Status != appclient.StartTaskReady || task.AppConversationID == "" {
		reason := DefaultFailureReason
		if task != nil && task.Detail != "" {
			reason = task.Detail
		}
		p.Log.Info("start task did not produce a conversation", "task", taskID, "reason", reason, "attempts", attempts)
		return "", &StartTaskError{Reason: reason}
	}

	return task.AppConversationID, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
