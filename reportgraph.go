// Package reportgraph provides a high-level façade that turns a natural
// language report request into a workflow graph and executes it. Most
// applications interact with this package by:
//  1. Creating a ReportGraph via New() (optionally supplying an LLM client,
//     data sources and a checkpoint store)
//  2. Calling Run with the query, an agent-type hint such as "ap_aging" and
//     the request input
//
// Run synthesizes an ordered plan with the planner, builds a linear graph
// spec from it, and executes that graph through the engine. The registry,
// planner and engine stay reachable for callers that need lower level
// control.
package reportgraph

import (
	"context"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/engine"
	"github.com/hupe1980/reportgraph/internal/util"
	"github.com/hupe1980/reportgraph/logging"
	"github.com/hupe1980/reportgraph/model"
	"github.com/hupe1980/reportgraph/nodes"
	"github.com/hupe1980/reportgraph/planner"
	"github.com/hupe1980/reportgraph/registry"
	"github.com/hupe1980/reportgraph/telemetry"
)

// Options configures the ReportGraph instance.
type Options struct {
	// Client is the planner's LLM. Without one the deterministic strategies
	// plan alone.
	Client      model.Client
	Temperature float64

	// Engine configuration (cache, sessions, limits).
	EngineConfig engine.Config

	// Sources of the built-in nodes (defaults to empty in-memory sources).
	Dependencies nodes.Dependencies

	// Checkpoints enables state checkpoints per session.
	Checkpoints core.CheckpointStore

	// Logger (defaults to NoOp logger if nil)
	Logger    logging.Logger
	Telemetry *telemetry.Telemetry
}

// ReportGraph is the high-level façade aggregating registry, planner and engine.
type ReportGraph struct {
	registry *registry.Registry
	planner  *planner.Planner
	engine   *engine.Engine
	logger   logging.Logger
}

// RunResult is an engine result plus the plan it executed.
type RunResult struct {
	*engine.Result
	Steps          []string      `json:"steps"`
	Strategy       string        `json:"strategy"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// New creates a ReportGraph with the built-in nodes registered.
func New(optFns ...func(o *Options)) (*ReportGraph, error) {
	opts := Options{
		Temperature:  0.1,
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	if opts.Dependencies.Logger == nil {
		opts.Dependencies.Logger = logger
	}

	reg := registry.New(func(o *registry.Options) { o.Logger = logger })
	if err := nodes.RegisterBuiltins(reg, opts.Dependencies); err != nil {
		return nil, err
	}

	p := planner.New(func(o *planner.Options) {
		o.Client = opts.Client
		o.Temperature = opts.Temperature
		o.Known = func(step string) bool { return reg.Has(nodes.StepTypes[step]) }
		o.Logger = logger
	})

	eng := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Registry = reg
		o.Checkpoints = opts.Checkpoints
		o.Logger = logger
		o.Telemetry = opts.Telemetry
	})

	return &ReportGraph{registry: reg, planner: p, engine: eng, logger: logger}, nil
}

// Registry returns the node registry.
func (r *ReportGraph) Registry() *registry.Registry { return r.registry }

// Planner returns the plan synthesizer.
func (r *ReportGraph) Planner() *planner.Planner { return r.planner }

// Engine returns the execution engine.
func (r *ReportGraph) Engine() *engine.Engine { return r.engine }

// Run plans and executes a report request. The input keys company_id,
// user_id, as_of_date and document_id become node params; the whole input
// also seeds the shared data.
func (r *ReportGraph) Run(ctx context.Context, query, hint string, input map[string]any) (*RunResult, error) {
	start := time.Now()

	plan := r.planner.SynthesizePlan(ctx, query, hint)

	spec, err := planner.BuildSpec(plan.Steps, hint, planner.BuildOptions{
		Query:      query,
		CompanyID:  util.ToString(input["company_id"]),
		UserID:     util.ToString(input["user_id"]),
		AsOfDate:   util.ToString(input["as_of_date"]),
		DocumentID: util.ToString(input["document_id"]),
	})
	if err != nil {
		return nil, err
	}

	res, err := r.engine.Execute(ctx, engine.Request{
		Spec:    &spec,
		Input:   input,
		Context: map[string]any{"query": query, "hint": hint, "strategy": plan.Strategy},
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)

	r.logger.Info("reportgraph.run.finished", "session_id", res.SessionID, "status", string(res.Status), "strategy", plan.Strategy, "duration_ms", elapsed.Milliseconds())

	return &RunResult{
		Result:         res,
		Steps:          plan.Steps,
		Strategy:       plan.Strategy,
		ProcessingTime: elapsed,
	}, nil
}
