// Package mongopersist implements persistence.Store on top of MongoDB,
// adapted from the session/run metadata store pattern used for durable
// conversational containers, generalized to store full execution-state
// snapshots alongside session/execution metadata (§6 persistence hooks).
package mongopersist

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/fiberloom/engine/com"
	"github.com/fiberloom/engine/persistence"
)

const (
	defaultSessionsCollection   = "engine_sessions"
	defaultExecutionsCollection = "engine_executions"
	defaultStatesCollection     = "engine_states"
	defaultOpTimeout            = 5 * time.Second
)

// Options configures the Mongo-backed store.
type Options struct {
	Client              *mongodriver.Client
	Database            string
	SessionsCollection   string
	ExecutionsCollection string
	StatesCollection     string
	Timeout              time.Duration
}

type store struct {
	sessions   *mongodriver.Collection
	executions *mongodriver.Collection
	states     *mongodriver.Collection
	timeout    time.Duration
}

// New returns a persistence.Store backed by MongoDB.
func New(opts Options) (persistence.Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongopersist: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongopersist: database name is required")
	}
	sessionsColl := firstNonEmpty(opts.SessionsCollection, defaultSessionsCollection)
	execsColl := firstNonEmpty(opts.ExecutionsCollection, defaultExecutionsCollection)
	statesColl := firstNonEmpty(opts.StatesCollection, defaultStatesCollection)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &store{
		sessions:   db.Collection(sessionsColl),
		executions: db.Collection(execsColl),
		states:     db.Collection(statesColl),
		timeout:    timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *store) ensureIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil && !isIndexExistsErr(err) {
		return err
	}
	_, err = s.executions.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}},
	})
	if err != nil && !isIndexExistsErr(err) {
		return err
	}
	return nil
}

// isIndexExistsErr reports whether err is Mongo's "index already exists
// with different options" response, safe to ignore on repeated startup.
func isIndexExistsErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

type sessionDoc struct {
	ID        string     `bson:"_id"`
	Status    string     `bson:"status"`
	CreatedAt time.Time  `bson:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
}

func (s *store) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (persistence.Session, error) {
	if sessionID == "" {
		return persistence.Session{}, errors.New("mongopersist: session id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

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

	doc := sessionDoc{ID: sessionID, Status: string(persistence.StatusActive), CreatedAt: createdAt.UTC()}
	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return persistence.Session{}, err
	}
	return persistence.Session{ID: sessionID, Status: persistence.StatusActive, CreatedAt: doc.CreatedAt}, nil
}

func (s *store) LoadSession(ctx context.Context, sessionID string) (persistence.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: sessionID}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return persistence.Session{}, persistence.ErrSessionNotFound
	}
	if err != nil {
		return persistence.Session{}, err
	}
	return persistence.Session{ID: doc.ID, Status: persistence.SessionStatus(doc.Status), CreatedAt: doc.CreatedAt, EndedAt: doc.EndedAt}, nil
}

func (s *store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (persistence.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	endedAt = endedAt.UTC()
	_, err := s.sessions.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: sessionID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "status", Value: string(persistence.StatusEnded)}, {Key: "ended_at", Value: endedAt}}}},
	)
	if err != nil {
		return persistence.Session{}, err
	}
	return s.LoadSession(ctx, sessionID)
}

type executionDoc struct {
	PID       string         `bson:"_id"`
	RootPID   string         `bson:"root_pid"`
	SessionID string         `bson:"session_id"`
	Status    string         `bson:"status"`
	StartedAt time.Time      `bson:"started_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
	Labels    map[string]string `bson:"labels,omitempty"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
}

func (s *store) UpsertExecution(ctx context.Context, exec persistence.ExecutionMeta) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc := executionDoc{
		PID: exec.PID, RootPID: exec.RootPID, SessionID: exec.SessionID,
		Status: string(exec.Status), StartedAt: exec.StartedAt.UTC(), UpdatedAt: time.Now().UTC(),
		Labels: exec.Labels, Metadata: exec.Metadata,
	}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.executions.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: exec.PID}},
		bson.D{{Key: "$set", Value: doc}},
		opts,
	)
	return err
}

func (s *store) LoadExecution(ctx context.Context, pid string) (persistence.ExecutionMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc executionDoc
	err := s.executions.FindOne(ctx, bson.D{{Key: "_id", Value: pid}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return persistence.ExecutionMeta{}, persistence.ErrExecutionNotFound
	}
	if err != nil {
		return persistence.ExecutionMeta{}, err
	}
	return persistence.ExecutionMeta{
		PID: doc.PID, RootPID: doc.RootPID, SessionID: doc.SessionID,
		Status: persistence.ExecutionStatus(doc.Status), StartedAt: doc.StartedAt, UpdatedAt: doc.UpdatedAt,
		Labels: doc.Labels, Metadata: doc.Metadata,
	}, nil
}

func (s *store) ListExecutionsBySession(ctx context.Context, sessionID string, statuses []persistence.ExecutionStatus) ([]persistence.ExecutionMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.D{{Key: "session_id", Value: sessionID}}
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, st := range statuses {
			vals[i] = string(st)
		}
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$in", Value: vals}}})
	}
	cur, err := s.executions.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []persistence.ExecutionMeta
	for cur.Next(ctx) {
		var doc executionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, persistence.ExecutionMeta{
			PID: doc.PID, RootPID: doc.RootPID, SessionID: doc.SessionID,
			Status: persistence.ExecutionStatus(doc.Status), StartedAt: doc.StartedAt, UpdatedAt: doc.UpdatedAt,
			Labels: doc.Labels, Metadata: doc.Metadata,
		})
	}
	return out, cur.Err()
}

type stateDoc struct {
	PID       string         `bson:"_id"`
	Tick      int            `bson:"tick"`
	State     map[string]any `bson:"state"`
	Timeline  []com.TimelineEntry `bson:"timeline"`
	Metadata  map[string]any `bson:"metadata"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func (s *store) SaveState(ctx context.Context, state persistence.ExecutionState) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc := stateDoc{PID: state.PID, Tick: state.Tick, State: state.State, Timeline: state.Timeline, Metadata: state.Metadata, UpdatedAt: time.Now().UTC()}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.states.UpdateOne(ctx, bson.D{{Key: "_id", Value: state.PID}}, bson.D{{Key: "$set", Value: doc}}, opts)
	return err
}

func (s *store) LoadState(ctx context.Context, pid string) (persistence.ExecutionState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc stateDoc
	err := s.states.FindOne(ctx, bson.D{{Key: "_id", Value: pid}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return persistence.ExecutionState{}, persistence.ErrStateNotFound
	}
	if err != nil {
		return persistence.ExecutionState{}, err
	}
	return persistence.ExecutionState{PID: doc.PID, Tick: doc.Tick, State: doc.State, Timeline: doc.Timeline, Metadata: doc.Metadata, UpdatedAt: doc.UpdatedAt}, nil
}
