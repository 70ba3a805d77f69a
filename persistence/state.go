// Package persistence defines the durable execution-state contract and the
// backend implementations (redispersist, mongopersist) that fulfill it.
// Adapted from the session/run metadata store pattern used for durable
// workflow tracking: a Session is the durable conversational container, and
// ExecutionState is the durable snapshot of one execution's COM (§6
// persistence hooks: persistExecutionState/loadExecutionState).
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/fiberloom/engine/com"
)

type (
	// Session captures durable session lifecycle state: the conversational
	// container an execution belongs to, independent of any single
	// execution's lifecycle.
	Session struct {
		ID        string
		Status    SessionStatus
		CreatedAt time.Time
		EndedAt   *time.Time
	}

	// ExecutionMeta captures persistent metadata about one execution.
	ExecutionMeta struct {
		PID       string
		RootPID   string
		SessionID string
		Status    ExecutionStatus
		StartedAt time.Time
		UpdatedAt time.Time
		Labels    map[string]string
		Metadata  map[string]any
	}

	// ExecutionState is the durable snapshot of a COM, sufficient to resume
	// an execution after a process restart (§6: persistExecutionState /
	// loadExecutionState).
	ExecutionState struct {
		PID       string
		Tick      int
		State     map[string]any
		Metadata  map[string]any
		Timeline  []com.TimelineEntry
		UpdatedAt time.Time
	}

	// Store persists session lifecycle state, execution metadata, and
	// execution state snapshots. Implementations must be durable: failures
	// are surfaced rather than silently dropped, so the tick orchestrator
	// can fail a tick rather than run ahead of unsynced state.
	Store interface {
		CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (Session, error)
		LoadSession(ctx context.Context, sessionID string) (Session, error)
		EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error)

		UpsertExecution(ctx context.Context, exec ExecutionMeta) error
		LoadExecution(ctx context.Context, pid string) (ExecutionMeta, error)
		ListExecutionsBySession(ctx context.Context, sessionID string, statuses []ExecutionStatus) ([]ExecutionMeta, error)

		SaveState(ctx context.Context, state ExecutionState) error
		LoadState(ctx context.Context, pid string) (ExecutionState, error)
	}

	// SessionStatus is a session's lifecycle state.
	SessionStatus string

	// ExecutionStatus mirrors exec.Status for persisted records, kept as a
	// separate type so the persistence package has no compile-time
	// dependency on the exec package.
	ExecutionStatus string
)

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"

	ExecPending   ExecutionStatus = "pending"
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecCancelled ExecutionStatus = "cancelled"
)

var (
	ErrSessionNotFound = errors.New("persistence: session not found")
	ErrSessionEnded    = errors.New("persistence: session ended")
	ErrExecutionNotFound = errors.New("persistence: execution not found")
	ErrStateNotFound   = errors.New("persistence: execution state not found")
)

// Snapshot captures the durably-relevant parts of c into an ExecutionState
// ready for Store.SaveState.
func Snapshot(pid string, tick int, c *com.COM) ExecutionState {
	return ExecutionState{
		PID:       pid,
		Tick:      tick,
		State:     c.StateSnapshot(),
		Metadata:  c.Metadata(),
		Timeline:  c.Timeline(),
		UpdatedAt: time.Now(),
	}
}

// Restore replays a previously saved ExecutionState back into a fresh COM.
func Restore(c *com.COM, s ExecutionState) {
	for k, v := range s.State {
		c.SetState(k, v)
	}
	for k, v := range s.Metadata {
		c.AddMetadata(k, v)
	}
	for _, entry := range s.Timeline {
		c.AddTimelineEntry(entry)
	}
}
