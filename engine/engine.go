package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/graph"
	"github.com/hupe1980/reportgraph/logging"
	"github.com/hupe1980/reportgraph/session"
	"github.com/hupe1980/reportgraph/telemetry"
)

// Config defines tuning parameters for the Engine.
type Config struct {
	// CacheSize bounds the compiled-graph LRU cache.
	CacheSize int
	// SessionTTL is how long finished sessions stay queryable.
	SessionTTL time.Duration
	// MaxSessions caps the session table.
	MaxSessions int
	// MaxNodeExecutions limits node executions per session. Zero means
	// unlimited.
	MaxNodeExecutions int
	// MaxConcurrentSessions bounds sessions running at the same time. Zero
	// means unlimited.
	MaxConcurrentSessions int
}

// DefaultConfig holds the defaults used by New.
var DefaultConfig = Config{
	CacheSize:   128,
	SessionTTL:  session.DefaultTTL,
	MaxSessions: session.DefaultMaxSessions,
}

// Options configures an Engine.
type Options struct {
	Config Config

	// Registry resolves node types of declarative specs. Required to execute
	// or compile specs; prebuilt graphs do not need it.
	Registry graph.Resolver

	// Sessions defaults to a table built from Config.
	Sessions *session.Table

	// Checkpoints, when set, receives the state after every node.
	Checkpoints core.CheckpointStore

	Logger    logging.Logger
	Telemetry *telemetry.Telemetry
}

// Request describes one execution. Exactly one of Spec, GraphKey and Graph
// selects the graph. GraphKey only finds graphs compiled from a spec; a
// prebuilt Graph is never cached.
type Request struct {
	Spec     *core.GraphSpec
	GraphKey string
	Graph    *graph.CompiledGraph

	Input   map[string]any
	Context map[string]any

	// SessionID is generated when empty.
	SessionID string
	// Resume continues the session from its last checkpoint.
	Resume bool
}

// Result is the outcome of an execution.
type Result struct {
	Status    core.SessionStatus  `json:"status"`
	Data      map[string]any      `json:"result"`
	SessionID string              `json:"session_id"`
	GraphKey  string              `json:"graph_key"`
	Timestamp time.Time           `json:"timestamp"`
	Error     string              `json:"error,omitempty"`
	History   []core.HistoryEntry `json:"execution_history"`
}

// SessionInfo is the queryable view of a session.
type SessionInfo struct {
	Session *core.Session       `json:"session"`
	History []core.HistoryEntry `json:"execution_history"`
}

// Engine compiles graphs, caches them by content key and executes them as
// sessions. It is safe for concurrent use.
type Engine struct {
	config      Config
	resolver    graph.Resolver
	cache       *lru.Cache[string, *graph.CompiledGraph]
	sessions    *session.Table
	checkpoints core.CheckpointStore
	sem         *semaphore.Weighted
	logger      logging.Logger
	telemetry   *telemetry.Telemetry
}

// New creates an Engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.CacheSize <= 0 {
		opts.Config.CacheSize = DefaultConfig.CacheSize
	}

	if opts.Sessions == nil {
		opts.Sessions = session.NewTable(func(o *session.Options) {
			o.TTL = opts.Config.SessionTTL
			o.MaxSessions = opts.Config.MaxSessions
			o.Logger = opts.Logger
		})
	}

	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop()
	}

	// only fails for a non-positive size
	cache, _ := lru.New[string, *graph.CompiledGraph](opts.Config.CacheSize)

	e := &Engine{
		config:      opts.Config,
		resolver:    opts.Registry,
		cache:       cache,
		sessions:    opts.Sessions,
		checkpoints: opts.Checkpoints,
		logger:      logging.OrNoOp(opts.Logger),
		telemetry:   opts.Telemetry,
	}

	if opts.Config.MaxConcurrentSessions > 0 {
		e.sem = semaphore.NewWeighted(int64(opts.Config.MaxConcurrentSessions))
	}

	return e
}

// Compile validates a spec and returns its content key and compiled graph.
// A graph with the same key is served from the cache.
func (e *Engine) Compile(spec core.GraphSpec) (string, *graph.CompiledGraph, error) {
	key := graph.Key(spec)

	if g, ok := e.cache.Get(key); ok {
		e.logger.Debug("engine.cache.hit", "graph_key", key)
		return key, g, nil
	}

	if e.resolver == nil {
		return "", nil, errors.New("engine: no registry configured")
	}

	g, err := graph.FromSpec(spec, e.resolver, func(o *graph.Options) { o.Logger = e.logger })
	if err != nil {
		return "", nil, err
	}

	e.cache.Add(key, g)
	e.logger.Debug("engine.cache.stored", "graph_key", key, "nodes", len(spec.Nodes))

	return key, g, nil
}

// CachedGraphs returns the number of compiled graphs in the cache.
func (e *Engine) CachedGraphs() int { return e.cache.Len() }

// Execute runs a graph to completion as one session. Node failures are
// reported in the Result; only invalid graphs, unknown graph keys or
// checkpoints, and a full session table are returned as errors.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	key, g, err := e.resolve(req)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state, err := e.initialState(ctx, req, sessionID, g)
	if err != nil {
		return nil, err
	}

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("engine: wait for session slot: %w", err)
		}
		defer e.sem.Release(1)
	}

	sess, err := e.sessions.Create(sessionID, key)
	if err != nil {
		return nil, fmt.Errorf("engine: create session: %w", err)
	}

	if err := sess.Start(); err != nil {
		return nil, err
	}

	e.update(sess, state)

	logger := e.logger
	if gl, ok := logger.(*logging.GraphLogger); ok {
		logger = gl.WithComponent("engine").WithSession(sessionID)
	}

	logger.Info("engine.session.start", "session_id", sessionID, "graph_key", key, "resume", req.Resume)

	ctx, span := e.telemetry.StartSession(ctx, sessionID, key)
	start := time.Now()

	runErr := e.walk(ctx, sessionID, g, state)

	if runErr != nil {
		_ = sess.Fail(state.Snapshot(), runErr)
	} else {
		_ = sess.Complete(state.Snapshot())
	}

	logSession(logger, sessionID, key, len(state.History), time.Since(start), runErr)

	e.update(sess, state)
	e.saveCheckpoint(ctx, sessionID, state)
	e.telemetry.EndSession(ctx, span, string(sess.Status), time.Since(start), runErr)

	return &Result{
		Status:    sess.Status,
		Data:      sess.Result,
		SessionID: sessionID,
		GraphKey:  key,
		Timestamp: time.Now().UTC(),
		Error:     sess.Error,
		History:   append([]core.HistoryEntry(nil), state.History...),
	}, nil
}

// GetSession returns the session record and history of a session.
func (e *Engine) GetSession(id string) (*SessionInfo, error) {
	rec, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	return &SessionInfo{Session: rec.Session, History: rec.History}, nil
}

// PurgeSessions removes expired finished sessions and returns how many were
// removed.
func (e *Engine) PurgeSessions() int { return e.sessions.Purge() }

func (e *Engine) resolve(req Request) (string, *graph.CompiledGraph, error) {
	switch {
	case req.Graph != nil:
		// prebuilt graphs stay out of the cache: their key cannot tell
		// handlers apart
		return req.Graph.Key(), req.Graph, nil
	case req.Spec != nil:
		return e.Compile(*req.Spec)
	case req.GraphKey != "":
		g, ok := e.cache.Get(req.GraphKey)
		if !ok {
			return "", nil, &core.NotFoundError{Kind: "graph", Name: req.GraphKey}
		}

		return req.GraphKey, g, nil
	default:
		return "", nil, core.NewGraphValidationError("request names no graph")
	}
}

func (e *Engine) initialState(ctx context.Context, req Request, sessionID string, g *graph.CompiledGraph) (*core.ExecutionState, error) {
	if !req.Resume {
		state := core.NewExecutionState(req.Input)
		for k, v := range req.Context {
			state.Context[k] = v
		}

		state.Next = []string{g.Entry()}

		return state, nil
	}

	if e.checkpoints == nil {
		return nil, errors.New("engine: resume requires a checkpoint store")
	}

	state, err := e.checkpoints.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, core.ErrCheckpointNotFound) {
			return nil, fmt.Errorf("%w: %w", &core.NotFoundError{Kind: "checkpoint", Name: sessionID}, err)
		}

		return nil, fmt.Errorf("engine: load checkpoint: %w", err)
	}

	// a resumed run retries the node whose failure stopped it
	history := state.History[:0]
	for _, h := range state.History {
		if h.Status == core.StatusSuccess || h.Recovered {
			history = append(history, h)
		}
	}

	state.History = history
	state.ErrorState = nil
	state.Merge(req.Input)

	return state, nil
}

// walk executes the graph serially from state.Next. Nodes already in the
// history are never queued again, so a node runs at most once per session.
// An executed node left in state.Next is a router whose routing failed; its
// edges are evaluated again before anything else runs.
func (e *Engine) walk(ctx context.Context, sessionID string, g *graph.CompiledGraph, state *core.ExecutionState) error {
	budget := core.NewStepBudget(e.config.MaxNodeExecutions)

	var frontier []string

	enqueue := func(names ...string) {
		for _, n := range names {
			if !state.Executed(n) && !slices.Contains(frontier, n) {
				frontier = append(frontier, n)
			}
		}
	}

	pending := append([]string(nil), state.Next...)
	for i, name := range pending {
		if !state.Executed(name) {
			enqueue(name)
			continue
		}

		next, err := g.Next(name, state)
		if err != nil {
			return routeFailed(state, name, append(frontier, pending[i+1:]...), err)
		}

		enqueue(next...)
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			state.Next = append([]string(nil), frontier...)
			return fmt.Errorf("engine: cancelled before %s: %w", frontier[0], err)
		}

		name := frontier[0]
		frontier = frontier[1:]

		if err := budget.Spend(name); err != nil {
			state.Next = append([]string{name}, frontier...)
			return err
		}

		nctx, span := e.telemetry.StartNode(ctx, name)
		start := time.Now()
		err := g.ExecuteNode(nctx, name, state)
		e.telemetry.EndNode(nctx, span, name, time.Since(start), err)

		if err != nil {
			state.Next = append([]string{name}, frontier...)
			return err
		}

		if name == g.Finish() {
			state.Next = nil
			return nil
		}

		next, err := g.Next(name, state)
		if err != nil {
			return routeFailed(state, name, frontier, err)
		}

		enqueue(next...)
		state.Next = append([]string(nil), frontier...)

		e.saveCheckpoint(ctx, sessionID, state)
	}

	state.Next = nil

	return nil
}

// routeFailed keeps router at the head of state.Next so a resumed session
// evaluates its edges again.
func routeFailed(state *core.ExecutionState, router string, rest []string, err error) error {
	state.ErrorState = &core.ErrorState{Node: router, Error: err.Error(), Timestamp: time.Now().UTC()}
	state.Next = append([]string{router}, rest...)

	return err
}

func logSession(logger logging.Logger, sessionID, key string, steps int, dur time.Duration, err error) {
	if gl, ok := logger.(*logging.GraphLogger); ok {
		gl.LogGraphExecution(key, steps, dur, err == nil, err)
		return
	}

	if err != nil {
		logger.Error("engine.session.failed", "session_id", sessionID, "error", err.Error(), "steps", steps)
		return
	}

	logger.Info("engine.session.completed", "session_id", sessionID, "steps", steps, "duration_ms", dur.Milliseconds())
}

func (e *Engine) update(sess *core.Session, state *core.ExecutionState) {
	if err := e.sessions.Update(sess, state.History); err != nil {
		e.logger.Warn("engine.session.update_failed", "session_id", sess.ID, "error", err.Error())
	}
}

// saveCheckpoint persists the state; a failing store is logged and the
// session continues.
func (e *Engine) saveCheckpoint(ctx context.Context, sessionID string, state *core.ExecutionState) {
	if e.checkpoints == nil {
		return
	}

	if err := e.checkpoints.Save(context.WithoutCancel(ctx), sessionID, state); err != nil {
		e.logger.Warn("engine.checkpoint.error", "session_id", sessionID, "error", err.Error())
	}
}
