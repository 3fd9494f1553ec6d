package dispatch

import (
	"context"
	"fmt"
	"time"

	"jira-mcp-server/internal/catalog"
)

// TaskState is the poller's canonical view of a remote task. Pending and
// Running are the only non-terminal states.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether the state ends a polling session.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskHandle identifies a remote long-running task and how to poll it.
// The status vocabulary differs per operation family (bulk delete vs.
// archive), so the mapping table travels with the handle rather than being
// hard-coded.
type TaskHandle struct {
	TaskID      string
	StatusTool  string
	TaskIDParam string
	StatusField string
	StatusMap   map[string]string
}

// TaskHandle extracts the task handle from an initiating call's response.
func (d *Dispatcher) TaskHandle(desc *catalog.Descriptor, env *Envelope) (*TaskHandle, error) {
	a := desc.Async
	if a == nil {
		return nil, &Failure{Kind: KindDecode, Message: fmt.Sprintf("tool %q is not an async operation", desc.Name)}
	}
	v, ok := env.Field(a.TaskIDField)
	if !ok {
		return nil, &Failure{Kind: KindDecode,
			Message: fmt.Sprintf("response for %q is missing task field %q", desc.Name, a.TaskIDField)}
	}
	taskID := ""
	switch id := v.(type) {
	case string:
		taskID = id
	case float64:
		taskID = fmt.Sprintf("%.0f", id)
	}
	if taskID == "" {
		return nil, &Failure{Kind: KindDecode,
			Message: fmt.Sprintf("response for %q has empty task field %q", desc.Name, a.TaskIDField)}
	}
	return &TaskHandle{
		TaskID:      taskID,
		StatusTool:  a.StatusTool,
		TaskIDParam: a.TaskIDParam,
		StatusField: a.StatusField,
		StatusMap:   a.StatusMap,
	}, nil
}

// AwaitTask polls the handle's status tool once per interval until the task
// reaches a terminal state. Status polls are strictly sequential. If maxWait
// elapses while still non-terminal the result is a retryable Timeout — the
// task may still complete remotely, and the caller can re-poll with the same
// handle. Cancellation surfaces within one tick. Zero interval/maxWait pick
// conservative defaults.
func (d *Dispatcher) AwaitTask(ctx context.Context, h *TaskHandle, pollInterval, maxWait time.Duration) (*Envelope, error) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}

	log := d.logger.WithCorrelationId(shortID())
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, cancelledFailure(fmt.Sprintf("polling task %s cancelled", h.TaskID))
		case <-deadline.C:
			return nil, &Failure{
				Kind:      KindTimeout,
				Retryable: true,
				Message:   fmt.Sprintf("task %s still not terminal after %s", h.TaskID, maxWait),
			}
		case <-tick.C:
		}

		env, err := d.Invoke(ctx, h.StatusTool, map[string]any{h.TaskIDParam: h.TaskID})
		if err != nil {
			return nil, err
		}

		state, raw, err := h.stateOf(env)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("task_id", h.TaskID).Str("status", raw).Str("state", string(state)).Msg("task poll")

		switch state {
		case TaskSucceeded:
			return env, nil
		case TaskFailed:
			return nil, &Failure{Kind: KindServer,
				Message: fmt.Sprintf("task %s failed (status %q)", h.TaskID, raw)}
		case TaskCancelled:
			return nil, cancelledFailure(fmt.Sprintf("task %s was cancelled remotely (status %q)", h.TaskID, raw))
		}
		// pending/running: keep polling
	}
}

// stateOf maps the service-reported status string through the handle's
// vocabulary table.
func (h *TaskHandle) stateOf(env *Envelope) (TaskState, string, error) {
	v, ok := env.Field(h.StatusField)
	if !ok {
		return "", "", &Failure{Kind: KindDecode,
			Message: fmt.Sprintf("task status response is missing field %q", h.StatusField)}
	}
	raw, ok := v.(string)
	if !ok {
		return "", "", &Failure{Kind: KindDecode,
			Message: fmt.Sprintf("task status field %q is not a string", h.StatusField)}
	}
	mapped, ok := h.StatusMap[raw]
	if !ok {
		return "", raw, &Failure{Kind: KindDecode,
			Message: fmt.Sprintf("unmapped task status %q", raw)}
	}
	return TaskState(mapped), raw, nil
}
