package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportgraph/checkpoint"
	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/graph"
	"github.com/hupe1980/reportgraph/internal/testutil"
	"github.com/hupe1980/reportgraph/registry"
)

func set(key string, value any) core.StateFunc {
	return func(context.Context, *core.ExecutionState) (map[string]any, error) {
		return map[string]any{key: value}, nil
	}
}

func fail(msg string) core.StateFunc {
	return func(context.Context, *core.ExecutionState) (map[string]any, error) {
		return nil, errors.New(msg)
	}
}

// increment reads an int at from and writes its successor to to.
func increment(from, to string) core.StateFunc {
	return func(_ context.Context, s *core.ExecutionState) (map[string]any, error) {
		x, ok := s.Data[from].(int)
		if !ok {
			return nil, fmt.Errorf("%s is %T, want int", from, s.Data[from])
		}

		return map[string]any{to: x + 1}, nil
	}
}

func historyNodes(h []core.HistoryEntry) []string {
	out := make([]string, 0, len(h))
	for _, e := range h {
		out = append(out, e.Node)
	}

	return out
}

func TestEngine_Execute_Chain(t *testing.T) {
	g, err := graph.NewBuilder().
		AddNode("A", set("x", 1), nil).
		AddNode("B", increment("x", "y"), nil).
		AddEdge("A", "B").
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	eng := New()

	res, err := eng.Execute(context.Background(), Request{Graph: g})
	require.NoError(t, err)

	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, res.Data)
	assert.Equal(t, []string{"A", "B"}, historyNodes(res.History))
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, g.Key(), res.GraphKey)

	info, err := eng.GetSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, core.SessionCompleted, info.Session.Status)
	assert.Len(t, info.History, 2)
}

func TestEngine_Execute_FailureWithoutHandler(t *testing.T) {
	g, err := graph.NewBuilder().
		AddNode("A", set("x", 1), nil).
		AddNode("B", fail("ledger unavailable"), nil).
		AddNode("C", set("z", 3), nil).
		AddEdge("A", "B").
		AddEdge("B", "C").
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	eng := New()

	res, err := eng.Execute(context.Background(), Request{Graph: g, SessionID: "s-fail"})
	require.NoError(t, err)

	assert.Equal(t, core.SessionFailed, res.Status)
	assert.Contains(t, res.Error, "ledger unavailable")
	assert.Equal(t, map[string]any{"x": 1}, res.Data)
	require.Len(t, res.History, 2)
	assert.Equal(t, core.StatusError, res.History[1].Status)

	info, err := eng.GetSession("s-fail")
	require.NoError(t, err)
	assert.Equal(t, core.SessionFailed, info.Session.Status)
}

func TestEngine_Execute_RecoveryHandler(t *testing.T) {
	g, err := graph.NewBuilder().
		AddNode("A", fail("boom"), nil).
		AddNode("B", increment("x", "y"), nil).
		AddEdge("A", "B").
		SetEntry("A").
		SetErrorHandler("A", func(*core.ExecutionState, error) map[string]any {
			return map[string]any{"x": -1}
		}).
		Compile()
	require.NoError(t, err)

	res, err := New().Execute(context.Background(), Request{Graph: g})
	require.NoError(t, err)

	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Equal(t, map[string]any{"x": -1, "y": 0}, res.Data)
	require.Len(t, res.History, 2)
	assert.True(t, res.History[0].Recovered)
	assert.Equal(t, core.StatusSuccess, res.History[1].Status)
}

func TestEngine_Execute_DiamondRunsJoinOnce(t *testing.T) {
	var joins atomic.Int32

	g, err := graph.NewBuilder().
		AddNode("A", set("a", true), nil).
		AddNode("B", set("b", true), nil).
		AddNode("C", set("c", true), nil).
		AddNode("D", core.StateFunc(func(context.Context, *core.ExecutionState) (map[string]any, error) {
			joins.Add(1)
			return nil, nil
		}), nil).
		AddEdge("A", "B").
		AddEdge("A", "C").
		AddEdge("B", "D").
		AddEdge("C", "D").
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	res, err := New().Execute(context.Background(), Request{Graph: g})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C", "D"}, historyNodes(res.History))
	assert.Equal(t, int32(1), joins.Load())
}

func TestEngine_Execute_FinishStopsWalk(t *testing.T) {
	g, err := graph.NewBuilder().
		AddNode("A", set("x", 1), nil).
		AddNode("B", set("y", 2), nil).
		AddNode("C", set("z", 3), nil).
		AddEdge("A", "B").
		AddEdge("B", "C").
		SetEntry("A").
		SetFinish("B").
		Compile()
	require.NoError(t, err)

	res, err := New().Execute(context.Background(), Request{Graph: g})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, historyNodes(res.History))
	assert.NotContains(t, res.Data, "z")
}

func TestEngine_Execute_ConditionalRouting(t *testing.T) {
	build := func(route string) *graph.CompiledGraph {
		g, err := graph.NewBuilder().
			AddNode("classify", set("route", route), nil).
			AddNode("aging", set("aging", true), nil).
			AddNode("register", set("register", true), nil).
			AddEdge("classify", "register").
			AddConditionalEdge("classify", func(s *core.ExecutionState) (any, error) {
				return s.Data["route"], nil
			}, map[string]string{"aging": "aging", "done": graph.End}).
			SetEntry("classify").
			Compile()
		require.NoError(t, err)

		return g
	}

	res, err := New().Execute(context.Background(), Request{Graph: build("aging")})
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "aging"}, historyNodes(res.History))

	res, err = New().Execute(context.Background(), Request{Graph: build("done")})
	require.NoError(t, err)
	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Equal(t, []string{"classify"}, historyNodes(res.History))

	res, err = New().Execute(context.Background(), Request{Graph: build("unknown")})
	require.NoError(t, err)
	assert.Equal(t, core.SessionFailed, res.Status)
	assert.Contains(t, res.Error, "classify")
	assert.Contains(t, res.Error, `no route for "unknown"`)
}

func TestEngine_Execute_StepLimit(t *testing.T) {
	g, err := graph.NewBuilder().
		AddNode("A", set("x", 1), nil).
		AddNode("B", set("y", 2), nil).
		AddEdge("A", "B").
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	eng := New(func(o *Options) { o.Config.MaxNodeExecutions = 1 })

	res, err := eng.Execute(context.Background(), Request{Graph: g})
	require.NoError(t, err)
	assert.Equal(t, core.SessionFailed, res.Status)
	assert.Contains(t, res.Error, core.ErrStepLimit.Error())
	assert.Contains(t, res.Error, "B refused after 1 of 1 executions")
	assert.Equal(t, []string{"A"}, historyNodes(res.History))
}

func TestEngine_Execute_Cancelled(t *testing.T) {
	g, err := graph.NewBuilder().AddNode("A", set("x", 1), nil).SetEntry("A").Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New().Execute(ctx, Request{Graph: g})
	require.NoError(t, err)
	assert.Equal(t, core.SessionFailed, res.Status)
	assert.Empty(t, res.History)
}

func newTestRegistry(t *testing.T, builds *atomic.Int32) *registry.Registry {
	t.Helper()

	reg := registry.New()

	for typ, key := range map[string]string{"fetch": "invoices", "calc": "totals"} {
		require.NoError(t, reg.RegisterNode(typ, func(map[string]any) (core.Handler, error) {
			builds.Add(1)
			return set(key, true), nil
		}, registry.Metadata{Capabilities: []string{typ}}))
	}

	return reg
}

func testSpec() core.GraphSpec {
	return testutil.NewSpecBuilder().
		Node("fetch", "fetch", nil).
		Node("calc", "calc", nil).
		Chain("fetch", "calc").
		Build()
}

func TestEngine_Execute_ExpressionRoute(t *testing.T) {
	var builds atomic.Int32

	eng := New(func(o *Options) { o.Registry = newTestRegistry(t, &builds) })

	spec := testutil.NewSpecBuilder().
		Node("fetch", "fetch", nil).
		Node("calc", "calc", nil).
		Conditional("fetch", "amount > 100", map[string]string{"true": "calc", "false": graph.End}).
		Build()

	res, err := eng.Execute(context.Background(), Request{Spec: &spec, Input: map[string]any{"amount": 250.0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "calc"}, historyNodes(res.History))

	res, err = eng.Execute(context.Background(), Request{Spec: &spec, Input: map[string]any{"amount": 50.0}})
	require.NoError(t, err)
	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Equal(t, []string{"fetch"}, historyNodes(res.History))
}

func TestEngine_Compile_CachesByContent(t *testing.T) {
	var builds atomic.Int32

	eng := New(func(o *Options) { o.Registry = newTestRegistry(t, &builds) })

	spec := testSpec()
	key, g, err := eng.Compile(spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "calc"}, g.Nodes())

	reordered := spec
	reordered.Nodes = []core.NodeSpec{spec.Nodes[1], spec.Nodes[0]}

	key2, g2, err := eng.Compile(reordered)
	require.NoError(t, err)
	assert.Equal(t, key, key2)
	assert.Same(t, g, g2)
	assert.Equal(t, int32(2), builds.Load())
	assert.Equal(t, 1, eng.CachedGraphs())

	res, err := eng.Execute(context.Background(), Request{GraphKey: key, Input: map[string]any{"company_id": "c1"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"company_id": "c1", "invoices": true, "totals": true}, res.Data)
}

func TestEngine_Execute_PrebuiltGraphsAreNotCached(t *testing.T) {
	build := func(who string) *graph.CompiledGraph {
		g, err := graph.NewBuilder().
			AddNode("A", set("who", who), nil).
			SetEntry("A").
			Compile()
		require.NoError(t, err)

		return g
	}

	first, second := build("first"), build("second")
	require.Equal(t, first.Key(), second.Key())

	eng := New()

	res, err := eng.Execute(context.Background(), Request{Graph: first})
	require.NoError(t, err)
	assert.Equal(t, "first", res.Data["who"])

	res, err = eng.Execute(context.Background(), Request{Graph: second})
	require.NoError(t, err)
	assert.Equal(t, "second", res.Data["who"])

	assert.Equal(t, 0, eng.CachedGraphs())

	_, err = eng.Execute(context.Background(), Request{GraphKey: first.Key()})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEngine_Execute_Errors(t *testing.T) {
	var builds atomic.Int32

	eng := New(func(o *Options) { o.Registry = newTestRegistry(t, &builds) })

	bad := testSpec()
	bad.Edges = append(bad.Edges, core.EdgeSpec{Source: "calc", Target: "ghost"})

	_, err := eng.Execute(context.Background(), Request{Spec: &bad})
	assert.ErrorIs(t, err, core.ErrGraphValidation)

	cyclic := testSpec()
	cyclic.Edges = append(cyclic.Edges, core.EdgeSpec{Source: "calc", Target: "fetch"})

	_, err = eng.Execute(context.Background(), Request{Spec: &cyclic})
	assert.ErrorIs(t, err, core.ErrGraphValidation)

	_, err = eng.Execute(context.Background(), Request{GraphKey: "nope"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = eng.Execute(context.Background(), Request{})
	assert.ErrorIs(t, err, core.ErrGraphValidation)

	_, err = eng.GetSession("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, _, err = New().Compile(testSpec())
	assert.Error(t, err)
}

func TestEngine_Execute_CheckpointResume(t *testing.T) {
	var (
		fetches atomic.Int32
		broken  atomic.Bool
	)

	broken.Store(true)

	g, err := graph.NewBuilder().
		AddNode("fetch", core.StateFunc(func(context.Context, *core.ExecutionState) (map[string]any, error) {
			fetches.Add(1)
			return map[string]any{"invoices": 3}, nil
		}), nil).
		AddNode("calc", core.StateFunc(func(_ context.Context, s *core.ExecutionState) (map[string]any, error) {
			if broken.Load() {
				return nil, errors.New("rates unavailable")
			}

			return map[string]any{"total": s.Data["invoices"]}, nil
		}), nil).
		AddEdge("fetch", "calc").
		SetEntry("fetch").
		Compile()
	require.NoError(t, err)

	store := checkpoint.NewMemory()
	eng := New(func(o *Options) { o.Checkpoints = store })

	res, err := eng.Execute(context.Background(), Request{Graph: g, SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, core.SessionFailed, res.Status)

	saved, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"calc"}, saved.Next)

	broken.Store(false)

	res, err = eng.Execute(context.Background(), Request{Graph: g, SessionID: "s1", Resume: true})
	require.NoError(t, err)

	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.EqualValues(t, 3, res.Data["total"])
	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, []string{"fetch", "calc"}, historyNodes(res.History))
}

func TestEngine_Execute_ResumeReevaluatesFailedRoute(t *testing.T) {
	var classified atomic.Int32

	g, err := graph.NewBuilder().
		AddNode("classify", core.StateFunc(func(context.Context, *core.ExecutionState) (map[string]any, error) {
			classified.Add(1)
			return map[string]any{"classified": true}, nil
		}), nil).
		AddNode("approve", set("approved", true), nil).
		AddConditionalEdge("classify", func(s *core.ExecutionState) (any, error) {
			return s.Data["route"], nil
		}, map[string]string{"yes": "approve"}).
		SetEntry("classify").
		Compile()
	require.NoError(t, err)

	store := checkpoint.NewMemory()
	eng := New(func(o *Options) { o.Checkpoints = store })

	res, err := eng.Execute(context.Background(), Request{Graph: g, SessionID: "s1", Input: map[string]any{"route": "nope"}})
	require.NoError(t, err)
	require.Equal(t, core.SessionFailed, res.Status)
	assert.Contains(t, res.Error, `no route for "nope"`)

	saved, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"classify"}, saved.Next)

	// the route is still unresolved
	res, err = eng.Execute(context.Background(), Request{Graph: g, SessionID: "s1", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, core.SessionFailed, res.Status)
	assert.Contains(t, res.Error, `no route for "nope"`)

	res, err = eng.Execute(context.Background(), Request{Graph: g, SessionID: "s1", Resume: true, Input: map[string]any{"route": "yes"}})
	require.NoError(t, err)
	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Equal(t, []string{"classify", "approve"}, historyNodes(res.History))
	assert.Equal(t, true, res.Data["approved"])
	assert.Equal(t, int32(1), classified.Load())
}

func TestEngine_Execute_ResumeErrors(t *testing.T) {
	g, err := graph.NewBuilder().AddNode("A", set("x", 1), nil).SetEntry("A").Compile()
	require.NoError(t, err)

	_, err = New().Execute(context.Background(), Request{Graph: g, SessionID: "s1", Resume: true})
	assert.ErrorContains(t, err, "checkpoint store")

	eng := New(func(o *Options) { o.Checkpoints = checkpoint.NewMemory() })

	_, err = eng.Execute(context.Background(), Request{Graph: g, SessionID: "s1", Resume: true})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, err, core.ErrCheckpointNotFound)
}

func TestEngine_Execute_ConcurrentSessions(t *testing.T) {
	var (
		running atomic.Int32
		peak    atomic.Int32
	)

	g, err := graph.NewBuilder().
		AddNode("A", core.StateFunc(func(context.Context, *core.ExecutionState) (map[string]any, error) {
			n := running.Add(1)
			defer running.Add(-1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			return map[string]any{"ok": true}, nil
		}), nil).
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	eng := New(func(o *Options) { o.Config.MaxConcurrentSessions = 2 })

	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			res, err := eng.Execute(context.Background(), Request{Graph: g, SessionID: fmt.Sprintf("s%d", i)})
			if assert.NoError(t, err) {
				assert.Equal(t, core.SessionCompleted, res.Status)
			}
		}(i)
	}

	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 0, eng.PurgeSessions())
}

type mockCheckpointStore struct {
	mock.Mock
}

var _ core.CheckpointStore = (*mockCheckpointStore)(nil)

func (m *mockCheckpointStore) Save(ctx context.Context, sessionID string, state *core.ExecutionState) error {
	return m.Called(ctx, sessionID, state).Error(0)
}

func (m *mockCheckpointStore) Load(ctx context.Context, sessionID string) (*core.ExecutionState, error) {
	args := m.Called(ctx, sessionID)
	state, _ := args.Get(0).(*core.ExecutionState)

	return state, args.Error(1)
}

func (m *mockCheckpointStore) Delete(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func TestEngine_Execute_CheckpointSaveFailureIsNotFatal(t *testing.T) {
	store := new(mockCheckpointStore)
	store.On("Save", mock.Anything, "s-ckpt", mock.Anything).Return(errors.New("redis: connection refused"))

	g, err := graph.NewBuilder().
		AddNode("A", set("x", 1), nil).
		AddNode("B", set("y", 2), nil).
		AddEdge("A", "B").
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	eng := New(func(o *Options) { o.Checkpoints = store })

	res, err := eng.Execute(context.Background(), Request{Graph: g, SessionID: "s-ckpt"})
	require.NoError(t, err)

	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, res.Data)
	store.AssertCalled(t, "Save", mock.Anything, "s-ckpt", mock.Anything)
	store.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestEngine_Execute_ResumeLoadsFromStore(t *testing.T) {
	saved := core.NewExecutionState(map[string]any{"x": 1.0})
	saved.RecordSuccess("A", "")
	saved.Next = []string{"B"}

	store := new(mockCheckpointStore)
	store.On("Load", mock.Anything, "s-resume").Return(saved, nil).Once()
	store.On("Save", mock.Anything, "s-resume", mock.Anything).Return(nil)

	g, err := graph.NewBuilder().
		AddNode("A", fail("must not run again"), nil).
		AddNode("B", set("y", 2), nil).
		AddEdge("A", "B").
		SetEntry("A").
		Compile()
	require.NoError(t, err)

	eng := New(func(o *Options) { o.Checkpoints = store })

	res, err := eng.Execute(context.Background(), Request{Graph: g, SessionID: "s-resume", Resume: true})
	require.NoError(t, err)

	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Equal(t, []string{"A", "B"}, historyNodes(res.History))
	assert.Equal(t, 2, res.Data["y"])
	store.AssertExpectations(t)
}
