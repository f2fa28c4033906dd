package agent

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/internal/util"
	"github.com/hupe1980/reportgraph/logging"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// maxHistory bounds the step records kept per agent.
const maxHistory = 512

// StepRecord is the outcome of one micro-step.
type StepRecord struct {
	Step      string        `json:"step"`
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Result is returned by DynamicAgent.Execute.
type Result struct {
	Status    string       `json:"status"`
	AgentName string       `json:"agent_name"`
	Result    any          `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	History   []StepRecord `json:"execution_history"`
	Timestamp time.Time    `json:"timestamp"`
}

// Metadata describes the current configuration and state of an agent.
type Metadata struct {
	Name          string          `json:"agent_name"`
	Description   string          `json:"description"`
	Capabilities  []Capability    `json:"capabilities"`
	BehaviorRules map[string]Rule `json:"behavior_rules"`
	State         map[string]any  `json:"state"`
	Executions    int             `json:"execution_count"`
}

// Options configures a DynamicAgent.
type Options struct {
	Logger logging.Logger
}

// DynamicAgent is an agent configured at runtime through capabilities and
// behaviour rules. It is safe for concurrent Execute calls; micro-steps of a
// single call run sequentially.
type DynamicAgent struct {
	BaseAgent

	capabilities []Capability
	rules        map[string]Rule
	initialState map[string]any
	state        map[string]any
	history      []StepRecord
	steps        map[string]StepFunc
	logger       logging.Logger
}

// New validates cfg and creates a DynamicAgent.
func New(cfg Config, optFns ...func(o *Options)) (*DynamicAgent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &DynamicAgent{
		BaseAgent:    NewBaseAgent(cfg.Name),
		capabilities: cloneCapabilities(cfg.Capabilities),
		rules:        cloneRules(cfg.BehaviorRules),
		initialState: core.CloneMap(cfg.InitialState),
		state:        core.CloneMap(cfg.InitialState),
		steps:        defaultSteps(),
		logger:       logging.OrNoOp(opts.Logger),
	}

	if a.state == nil {
		a.state = map[string]any{}
	}

	a.SetDescription(cfg.Description)

	a.logger.Debug("agent.created", "agent", cfg.Name, "capabilities", cfg.CapabilityTypes())

	return a, nil
}

// WithStep replaces the implementation of a micro-step.
func (a *DynamicAgent) WithStep(name string, fn StepFunc) *DynamicAgent {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.steps[name] = fn

	return a
}

// Execute classifies input, runs the micro-plan of the matching rule and
// returns the final data. A failing step stops the plan; the returned Result
// then has status "error" and err wraps the step failure.
func (a *DynamicAgent) Execute(ctx context.Context, input any, params map[string]any) (*Result, error) {
	a.mu.RLock()
	name := a.name
	class := classify(input)
	rule := a.ruleFor(class)
	steps := make(map[string]StepFunc, len(a.steps))
	for k, v := range a.steps {
		steps[k] = v
	}
	a.mu.RUnlock()

	plan := rule.Steps()

	a.logger.Debug("agent.execute.start", "agent", name, "input_class", class, "plan", plan)

	current := input
	records := make([]StepRecord, 0, len(plan))

	for _, step := range plan {
		if err := ctx.Err(); err != nil {
			return a.finish(name, records, nil, err)
		}

		start := time.Now()
		record := StepRecord{Step: step, Status: StatusSuccess, Timestamp: start.UTC()}

		fn, ok := steps[step]
		if !ok || fn == nil {
			record.Status = StatusError
			record.Error = "no implementation"
			records = append(records, record)

			return a.finish(name, records, nil, fmt.Errorf("agent %q step %s: no implementation", name, step))
		}

		out, err := fn(ctx, current, stepParams(rule, step, params))
		record.Duration = time.Since(start)

		if err != nil {
			record.Status = StatusError
			record.Error = err.Error()
			records = append(records, record)

			return a.finish(name, records, nil, fmt.Errorf("agent %q step %s: %w", name, step, err))
		}

		records = append(records, record)
		current = out
	}

	return a.finish(name, records, current, nil)
}

func (a *DynamicAgent) finish(name string, records []StepRecord, out any, err error) (*Result, error) {
	now := time.Now().UTC()

	a.mu.Lock()
	a.history = append(a.history, records...)
	if len(a.history) > maxHistory {
		a.history = append([]StepRecord(nil), a.history[len(a.history)-maxHistory:]...)
	}
	count, _ := util.ToFloat(a.state["execution_count"])
	a.state["execution_count"] = int(count) + 1
	a.state["last_execution"] = now.Format(time.RFC3339)
	a.mu.Unlock()

	res := &Result{
		Status:    StatusSuccess,
		AgentName: name,
		Result:    out,
		History:   records,
		Timestamp: now,
	}

	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()

		a.logger.Warn("agent.execute.failed", "agent", name, "error", err.Error())

		return res, err
	}

	a.logger.Debug("agent.execute.completed", "agent", name, "steps", len(records))

	return res, nil
}

// Handler adapts the agent to an Agent node. The node update is the final
// data of the micro-plan.
func (a *DynamicAgent) Handler() core.AgentFunc {
	return func(ctx context.Context, data map[string]any, params map[string]any) (any, error) {
		res, err := a.Execute(ctx, data, params)
		if err != nil {
			return nil, err
		}

		return res.Result, nil
	}
}

// OptimizeForReportType merges the capabilities and behaviour rules of a
// predefined report profile into the agent.
func (a *DynamicAgent) OptimizeForReportType(reportType string) error {
	profile, ok := lookupProfile(reportType)
	if !ok {
		return &core.NotFoundError{Kind: "report profile", Name: reportType}
	}

	a.mu.Lock()
	a.capabilities = mergeCapabilities(a.capabilities, profile.Capabilities)
	for k, r := range cloneRules(profile.BehaviorRules) {
		a.rules[k] = r
	}
	a.state["report_type"] = reportType
	name := a.name
	a.mu.Unlock()

	a.logger.Info("agent.optimized", "agent", name, "report_type", reportType)

	return nil
}

// UpdateCapabilities merges capabilities into the agent; a capability with an
// existing type replaces the old one.
func (a *DynamicAgent) UpdateCapabilities(capabilities ...Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.capabilities = mergeCapabilities(a.capabilities, capabilities)
}

// UpdateBehaviorRules overlays rules onto the existing ones.
func (a *DynamicAgent) UpdateBehaviorRules(rules map[string]Rule) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, r := range cloneRules(rules) {
		a.rules[k] = r
	}
}

// UpdateState merges values into the agent state.
func (a *DynamicAgent) UpdateState(values map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k, v := range values {
		a.state[k] = v
	}
}

// State returns a copy of the agent state.
func (a *DynamicAgent) State() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return core.CloneMap(a.state)
}

// Capabilities returns a copy of the agent capabilities.
func (a *DynamicAgent) Capabilities() []Capability {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return cloneCapabilities(a.capabilities)
}

// CapabilityTypes returns the distinct capability types of the agent.
func (a *DynamicAgent) CapabilityTypes() []string {
	return a.Config().CapabilityTypes()
}

// Config returns the current configuration of the agent.
func (a *DynamicAgent) Config() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Config{
		Name:          a.name,
		Description:   a.description,
		Capabilities:  cloneCapabilities(a.capabilities),
		BehaviorRules: cloneRules(a.rules),
		InitialState:  core.CloneMap(a.initialState),
	}
}

// History returns the step records of past executions, oldest first.
func (a *DynamicAgent) History() []StepRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return append([]StepRecord(nil), a.history...)
}

// Metadata describes the agent.
func (a *DynamicAgent) Metadata() Metadata {
	a.mu.RLock()
	defer a.mu.RUnlock()

	count, _ := util.ToFloat(a.state["execution_count"])

	return Metadata{
		Name:          a.name,
		Description:   a.description,
		Capabilities:  cloneCapabilities(a.capabilities),
		BehaviorRules: cloneRules(a.rules),
		State:         core.CloneMap(a.state),
		Executions:    int(count),
	}
}

// Reset restores the initial state and clears the history.
func (a *DynamicAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = core.CloneMap(a.initialState)
	if a.state == nil {
		a.state = map[string]any{}
	}

	a.history = nil
}

// Clone returns a deep copy of the agent, including state, history and
// custom steps.
func (a *DynamicAgent) Clone() *DynamicAgent {
	a.mu.RLock()
	defer a.mu.RUnlock()

	steps := make(map[string]StepFunc, len(a.steps))
	for k, v := range a.steps {
		steps[k] = v
	}

	return &DynamicAgent{
		BaseAgent:    BaseAgent{name: a.name, description: a.description},
		capabilities: cloneCapabilities(a.capabilities),
		rules:        cloneRules(a.rules),
		initialState: core.CloneMap(a.initialState),
		state:        core.CloneMap(a.state),
		history:      append([]StepRecord(nil), a.history...),
		steps:        steps,
		logger:       a.logger,
	}
}

func (a *DynamicAgent) ruleFor(class string) Rule {
	if r, ok := a.rules[class]; ok {
		return r
	}

	return a.rules[InputDefault]
}

// classify maps an input value to a behaviour rule key.
func classify(input any) string {
	if input == nil {
		return InputDefault
	}

	switch reflect.TypeOf(input).Kind() {
	case reflect.Map, reflect.Struct:
		return InputMap
	case reflect.Slice, reflect.Array:
		return InputList
	case reflect.String:
		return InputString
	default:
		return InputDefault
	}
}

// stepParams merges the rule parameters of a step with the call parameters
// found under "<step>_params".
func stepParams(rule Rule, step string, params map[string]any) map[string]any {
	out := core.CloneMap(rule.StepParams[step])
	if out == nil {
		out = map[string]any{}
	}

	if extra, ok := params[step+"_params"].(map[string]any); ok {
		for k, v := range extra {
			out[k] = v
		}
	}

	return out
}

func cloneMap(m map[string]any) map[string]any { return core.CloneMap(m) }
