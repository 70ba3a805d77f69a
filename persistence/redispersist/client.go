// Package redispersist implements persistence.Store on top of Redis,
// storing each record as a JSON blob under a namespaced key, in the same
// spirit as the registry's tool_use_id-to-stream_id Redis mappings: simple
// string keys, JSON payloads, TTL-free durable records for session/
// execution/state data (the registry's result-stream mappings use a TTL
// because they are transient; these are not).
package redispersist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fiberloom/engine/persistence"
)

func sessionKey(id string) string   { return fmt.Sprintf("engine:session:%s", id) }
func execKey(pid string) string     { return fmt.Sprintf("engine:exec:%s", pid) }
func stateKey(pid string) string    { return fmt.Sprintf("engine:run:%s", pid) }
func sessionExecsKey(id string) string { return fmt.Sprintf("engine:session:%s:execs", id) }

type store struct {
	rdb *redis.Client
}

// New returns a persistence.Store backed by rdb.
func New(rdb *redis.Client) persistence.Store {
	return &store{rdb: rdb}
}

func (s *store) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (persistence.Session, error) {
	existing, err := s.LoadSession(ctx, sessionID)
	if err == nil {
		if existing.Status == persistence.StatusEnded {
			return persistence.Session{}, persistence.ErrSessionEnded
		}
		return existing, nil
	}
	if !errors.Is(err, persistence.ErrSessionNotFound) {
		return persistence.Session{}, err
	}

	sess := persistence.Session{ID: sessionID, Status: persistence.StatusActive, CreatedAt: createdAt.UTC()}
	if err := s.putJSON(ctx, sessionKey(sessionID), sess); err != nil {
		return persistence.Session{}, err
	}
	return sess, nil
}

func (s *store) LoadSession(ctx context.Context, sessionID string) (persistence.Session, error) {
	var sess persistence.Session
	if err := s.getJSON(ctx, sessionKey(sessionID), &sess); err != nil {
		if errors.Is(err, redis.Nil) {
			return persistence.Session{}, persistence.ErrSessionNotFound
		}
		return persistence.Session{}, err
	}
	return sess, nil
}

func (s *store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (persistence.Session, error) {
	sess, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return persistence.Session{}, err
	}
	t := endedAt.UTC()
	sess.Status = persistence.StatusEnded
	sess.EndedAt = &t
	if err := s.putJSON(ctx, sessionKey(sessionID), sess); err != nil {
		return persistence.Session{}, err
	}
	return sess, nil
}

func (s *store) UpsertExecution(ctx context.Context, exec persistence.ExecutionMeta) error {
	exec.UpdatedAt = time.Now().UTC()
	if err := s.putJSON(ctx, execKey(exec.PID), exec); err != nil {
		return err
	}
	if exec.SessionID != "" {
		if err := s.rdb.SAdd(ctx, sessionExecsKey(exec.SessionID), exec.PID).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) LoadExecution(ctx context.Context, pid string) (persistence.ExecutionMeta, error) {
	var m persistence.ExecutionMeta
	if err := s.getJSON(ctx, execKey(pid), &m); err != nil {
		if errors.Is(err, redis.Nil) {
			return persistence.ExecutionMeta{}, persistence.ErrExecutionNotFound
		}
		return persistence.ExecutionMeta{}, err
	}
	return m, nil
}

func (s *store) ListExecutionsBySession(ctx context.Context, sessionID string, statuses []persistence.ExecutionStatus) ([]persistence.ExecutionMeta, error) {
	pids, err := s.rdb.SMembers(ctx, sessionExecsKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	wanted := make(map[persistence.ExecutionStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	var out []persistence.ExecutionMeta
	for _, pid := range pids {
		m, err := s.LoadExecution(ctx, pid)
		if errors.Is(err, persistence.ErrExecutionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(wanted) > 0 && !wanted[m.Status] {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *store) SaveState(ctx context.Context, state persistence.ExecutionState) error {
	state.UpdatedAt = time.Now().UTC()
	return s.putJSON(ctx, stateKey(state.PID), state)
}

func (s *store) LoadState(ctx context.Context, pid string) (persistence.ExecutionState, error) {
	var st persistence.ExecutionState
	if err := s.getJSON(ctx, stateKey(pid), &st); err != nil {
		if errors.Is(err, redis.Nil) {
			return persistence.ExecutionState{}, persistence.ErrStateNotFound
		}
		return persistence.ExecutionState{}, err
	}
	return st, nil
}

func (s *store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redispersist: marshal %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, data, 0).Err()
}

func (s *store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
