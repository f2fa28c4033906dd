package planner

import (
	"context"
	"time"

	"github.com/hupe1980/reportgraph/logging"
	"github.com/hupe1980/reportgraph/model"
	"github.com/hupe1980/reportgraph/nodes"
)

// Strategy names, in the order they are attempted.
const (
	StrategyLLMJSON     = "llm_json"
	StrategyLLMRepaired = "llm_json_repaired"
	StrategyRegex       = "regex"
	StrategyTable       = "table"
	StrategyKeywords    = "keywords"
	StrategyDefault     = "default"
)

// Options configures a Planner.
type Options struct {
	// Client is the LLM used by the first strategies. Without a client they
	// are skipped.
	Client      model.Client
	Temperature float64
	// Vocabulary is the closed set of step names a plan may contain.
	Vocabulary []string
	// Known optionally restricts LLM-proposed steps further, e.g. to steps
	// whose node type is registered.
	Known  func(step string) bool
	Logger logging.Logger
}

// Plan is the result of a synthesis.
type Plan struct {
	Steps    []string          `json:"steps"`
	Strategy string            `json:"strategy"`
	Failures []*PlanParseError `json:"-"`
}

// Planner synthesizes plans. It is safe for concurrent use.
type Planner struct {
	client      model.Client
	temperature float64
	vocabulary  []string
	inVocab     map[string]struct{}
	known       func(string) bool
	logger      logging.Logger
	strategies  []strategy
}

// New creates a Planner.
func New(optFns ...func(o *Options)) *Planner {
	opts := Options{
		Temperature: 0.1,
		Vocabulary:  nodes.Vocabulary,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	p := &Planner{
		client:      opts.Client,
		temperature: opts.Temperature,
		vocabulary:  append([]string(nil), opts.Vocabulary...),
		inVocab:     make(map[string]struct{}, len(opts.Vocabulary)),
		known:       opts.Known,
		logger:      logging.OrNoOp(opts.Logger),
	}

	for _, s := range p.vocabulary {
		p.inVocab[s] = struct{}{}
	}

	p.strategies = []strategy{
		{StrategyLLMJSON, p.llmJSON},
		{StrategyLLMRepaired, p.llmRepaired},
		{StrategyRegex, p.regexExtract},
		{StrategyTable, p.table},
		{StrategyKeywords, p.keywords},
		{StrategyDefault, p.defaults},
	}

	return p
}

// Synthesize returns the ordered steps for a task. It never fails: when every
// other strategy fails the default plan is returned.
func (p *Planner) Synthesize(ctx context.Context, text, hint string) []string {
	return p.SynthesizePlan(ctx, text, hint).Steps
}

// SynthesizePlan is Synthesize plus the name of the strategy that produced
// the steps and the failures of the strategies attempted before it.
func (p *Planner) SynthesizePlan(ctx context.Context, text, hint string) Plan {
	req := &request{text: text, hint: hint}
	p.askLLM(ctx, req)

	var failures []*PlanParseError

	for _, s := range p.strategies {
		steps, perr := s.run(ctx, req)
		if perr != nil {
			failures = append(failures, perr)
			p.logger.Debug("planner.strategy.failed", "strategy", s.name, "reason", perr.Reason)

			continue
		}

		p.logger.Info("planner.plan.selected", "strategy", s.name, "steps", steps, "hint", hint)

		return Plan{Steps: steps, Strategy: s.name, Failures: failures}
	}

	// unreachable: the default strategy always succeeds
	return Plan{Steps: defaultSteps(), Strategy: StrategyDefault, Failures: failures}
}

// askLLM calls the client once; every LLM strategy reads the same answer.
func (p *Planner) askLLM(ctx context.Context, req *request) {
	if p.client == nil {
		return
	}

	prompt, err := p.renderPrompt(req.text, req.hint)
	if err != nil {
		req.llmErr = err
		return
	}

	start := time.Now()

	resp, err := p.client.Generate(ctx, model.Request{
		Prompt:      prompt,
		System:      systemPrompt,
		Temperature: p.temperature,
		JSONMode:    true,
	})
	p.logCall(time.Since(start), err)

	if err != nil {
		req.llmErr = err
		return
	}

	req.raw = resp.Text
	req.asked = true
}

func (p *Planner) logCall(dur time.Duration, err error) {
	info := p.client.Info()

	if gl, ok := p.logger.(*logging.GraphLogger); ok {
		gl.WithComponent("planner").LogLLMCall(info.Name, dur, err == nil, err)
		return
	}

	if err != nil {
		p.logger.Warn("planner.llm.error", "provider", info.Provider, "error", err.Error(), "duration_ms", dur.Milliseconds())
		return
	}

	p.logger.Debug("planner.llm.response", "provider", info.Provider, "duration_ms", dur.Milliseconds())
}

// filter keeps the vocabulary steps accepted by Known, without duplicates,
// in the order given.
func (p *Planner) filter(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))

	for _, n := range names {
		step := normalizeStep(n)
		if _, ok := p.inVocab[step]; !ok {
			continue
		}

		if p.known != nil && !p.known(step) {
			continue
		}

		if _, dup := seen[step]; dup {
			continue
		}

		seen[step] = struct{}{}
		out = append(out, step)
	}

	return out
}
