package agent

import (
	"errors"
	"fmt"
)

// Micro-step names, in execution order.
const (
	StepDataFetching = "data_fetching"
	StepCalculation  = "calculation"
	StepAnalysis     = "analysis"
	StepReporting    = "reporting"
)

// Input classes used to select a behaviour rule.
const (
	InputMap     = "map"
	InputList    = "list"
	InputString  = "string"
	InputDefault = "default"
)

// Capability describes something an agent can do. Type is indexed by the
// node registry for capability lookups.
type Capability struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Rule selects the micro-steps to run for one input class. StepParams holds
// per-step parameters keyed by step name.
type Rule struct {
	RequiresDataFetching bool                      `json:"requires_data_fetching" yaml:"requires_data_fetching"`
	RequiresCalculation  bool                      `json:"requires_calculation" yaml:"requires_calculation"`
	RequiresAnalysis     bool                      `json:"requires_analysis" yaml:"requires_analysis"`
	RequiresReporting    bool                      `json:"requires_reporting" yaml:"requires_reporting"`
	StepParams           map[string]map[string]any `json:"step_params,omitempty" yaml:"step_params,omitempty"`
}

// Steps returns the micro-plan implied by the rule.
func (r Rule) Steps() []string {
	var steps []string

	if r.RequiresDataFetching {
		steps = append(steps, StepDataFetching)
	}

	if r.RequiresCalculation {
		steps = append(steps, StepCalculation)
	}

	if r.RequiresAnalysis {
		steps = append(steps, StepAnalysis)
	}

	if r.RequiresReporting {
		steps = append(steps, StepReporting)
	}

	return steps
}

// Config is the declarative description of a DynamicAgent.
type Config struct {
	Name          string          `json:"name" yaml:"name"`
	Description   string          `json:"description,omitempty" yaml:"description,omitempty"`
	Capabilities  []Capability    `json:"capabilities" yaml:"capabilities"`
	BehaviorRules map[string]Rule `json:"behavior_rules,omitempty" yaml:"behavior_rules,omitempty"`
	InitialState  map[string]any  `json:"initial_state,omitempty" yaml:"initial_state,omitempty"`
}

// ErrInvalidConfig is matched by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid agent config")

// Validate checks that the config has a name, at least one capability and a
// type for every capability.
func (c Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if len(c.Capabilities) == 0 {
		errs = append(errs, errors.New("at least one capability is required"))
	}

	for i, capability := range c.Capabilities {
		if capability.Type == "" {
			errs = append(errs, fmt.Errorf("capability %d is missing a type", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// CapabilityTypes returns the distinct capability types in declaration order.
func (c Config) CapabilityTypes() []string {
	seen := make(map[string]bool, len(c.Capabilities))
	out := make([]string, 0, len(c.Capabilities))

	for _, capability := range c.Capabilities {
		if capability.Type == "" || seen[capability.Type] {
			continue
		}

		seen[capability.Type] = true
		out = append(out, capability.Type)
	}

	return out
}

func cloneCapabilities(in []Capability) []Capability {
	if in == nil {
		return nil
	}

	out := make([]Capability, len(in))
	for i, c := range in {
		out[i] = Capability{Type: c.Type, Config: cloneMap(c.Config)}
	}

	return out
}

func cloneRules(in map[string]Rule) map[string]Rule {
	out := make(map[string]Rule, len(in))

	for k, r := range in {
		if r.StepParams != nil {
			params := make(map[string]map[string]any, len(r.StepParams))
			for step, p := range r.StepParams {
				params[step] = cloneMap(p)
			}
			r.StepParams = params
		}

		out[k] = r
	}

	return out
}

// mergeCapabilities replaces capabilities of the same type and appends new ones.
func mergeCapabilities(base, extra []Capability) []Capability {
	out := cloneCapabilities(base)

	for _, c := range extra {
		replaced := false

		for i := range out {
			if out[i].Type == c.Type {
				out[i] = Capability{Type: c.Type, Config: cloneMap(c.Config)}
				replaced = true

				break
			}
		}

		if !replaced {
			out = append(out, Capability{Type: c.Type, Config: cloneMap(c.Config)})
		}
	}

	return out
}
