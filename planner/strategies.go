package planner

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"

	"github.com/hupe1980/reportgraph/internal/util"
	"github.com/hupe1980/reportgraph/nodes"
)

type request struct {
	text   string
	hint   string
	raw    string
	asked  bool
	llmErr error
}

type strategy struct {
	name string
	run  func(ctx context.Context, req *request) ([]string, *PlanParseError)
}

// planSchema accepts a bare step array, {"steps": [...]} or {"nodes": [...]}
// where nodes are names or objects with a name.
var planSchema = map[string]any{
	"anyOf": []any{
		map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		map[string]any{
			"type":     "object",
			"required": []any{"steps"},
			"properties": map[string]any{
				"steps": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		map[string]any{
			"type":     "object",
			"required": []any{"nodes"},
			"properties": map[string]any{
				"nodes": map[string]any{
					"type": "array",
					"items": map[string]any{
						"anyOf": []any{
							map[string]any{"type": "string"},
							map[string]any{
								"type":       "object",
								"required":   []any{"name"},
								"properties": map[string]any{"name": map[string]any{"type": "string"}},
							},
						},
					},
				},
			},
		},
	},
}

var (
	schemaOnce     sync.Once
	compiledSchema *util.Schema
	errSchema      error
)

func planValidator() (*util.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, errSchema = util.CompileSchema(planSchema)
	})

	return compiledSchema, errSchema
}

// nodeAliases maps node class names LLMs tend to answer with onto steps.
var nodeAliases = map[string]string{
	"brandingloadernode":        nodes.StepBrandingLoader,
	"invoicefetchnode":          nodes.StepDataFetch,
	"agingcalculatornode":       nodes.StepCalculation,
	"calculationnode":           nodes.StepCalculation,
	"outstandingcalculatornode": nodes.StepCalculation,
	"apagingreportnode":         nodes.StepReportGeneration,
	"arcollectionreportnode":    nodes.StepReportGeneration,
	"reportgenerationnode":      nodes.StepReportGeneration,
	"brandingnode":              nodes.StepBranding,
	"documentprocessingnode":    nodes.StepDocumentProcessing,
	"dataextractionnode":        nodes.StepDataExtraction,
	"validationnode":            nodes.StepValidation,
}

func normalizeStep(name string) string {
	step := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := nodeAliases[step]; ok {
		return alias
	}

	return strings.NewReplacer(" ", "_", "-", "_").Replace(step)
}

func (p *Planner) llmJSON(_ context.Context, req *request) ([]string, *PlanParseError) {
	if perr := llmUnavailable(StrategyLLMJSON, req); perr != nil {
		return nil, perr
	}

	return p.decode(StrategyLLMJSON, req.raw)
}

func (p *Planner) llmRepaired(_ context.Context, req *request) ([]string, *PlanParseError) {
	if perr := llmUnavailable(StrategyLLMRepaired, req); perr != nil {
		return nil, perr
	}

	repaired, err := jsonrepair.JSONRepair(req.raw)
	if err != nil {
		return nil, parseError(StrategyLLMRepaired, "repair failed", err)
	}

	return p.decode(StrategyLLMRepaired, repaired)
}

func llmUnavailable(name string, req *request) *PlanParseError {
	if req.llmErr != nil {
		return parseError(name, "llm unavailable", req.llmErr)
	}

	if !req.asked {
		return parseError(name, "no llm configured", nil)
	}

	return nil
}

// decode strictly decodes and validates raw, then filters the step names.
func (p *Planner) decode(name, raw string) ([]string, *PlanParseError) {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return nil, parseError(name, "invalid json", err)
	}

	schema, err := planValidator()
	if err != nil {
		return nil, parseError(name, "plan schema", err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, parseError(name, "unexpected plan structure", err)
	}

	steps := p.filter(stepNames(doc))
	if len(steps) == 0 {
		return nil, parseError(name, "no known steps", nil)
	}

	return steps, nil
}

func stepNames(doc any) []string {
	var list []any

	switch v := doc.(type) {
	case []any:
		list = v
	case map[string]any:
		if steps, ok := v["steps"].([]any); ok {
			list = steps
		} else {
			list, _ = v["nodes"].([]any)
		}
	}

	names := make([]string, 0, len(list))

	for _, item := range list {
		switch e := item.(type) {
		case string:
			names = append(names, e)
		case map[string]any:
			names = append(names, util.ToString(e["name"]))
		}
	}

	return names
}

var (
	nodesFragment = regexp.MustCompile(`(?s)"(?:nodes|steps)"\s*:\s*\[(.*?)\]`)
	nameField     = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)
	quoted        = regexp.MustCompile(`"([^"]+)"`)
)

// regexExtract reads a nodes or steps fragment out of the raw answer, or
// else scans it for vocabulary words in order of appearance.
func (p *Planner) regexExtract(_ context.Context, req *request) ([]string, *PlanParseError) {
	if perr := llmUnavailable(StrategyRegex, req); perr != nil {
		return nil, perr
	}

	if m := nodesFragment.FindStringSubmatch(req.raw); m != nil {
		matches := nameField.FindAllStringSubmatch(m[1], -1)
		if len(matches) == 0 {
			matches = quoted.FindAllStringSubmatch(m[1], -1)
		}

		names := make([]string, 0, len(matches))
		for _, mm := range matches {
			names = append(names, mm[1])
		}

		if steps := p.filter(names); len(steps) > 0 {
			return steps, nil
		}
	}

	if steps := p.filter(p.scanWords(req.raw)); len(steps) > 0 {
		return steps, nil
	}

	return nil, parseError(StrategyRegex, "no step names in response", nil)
}

func (p *Planner) scanWords(text string) []string {
	alternatives := make([]string, 0, len(p.vocabulary)+len(nodeAliases))
	for _, s := range p.vocabulary {
		alternatives = append(alternatives, regexp.QuoteMeta(s))
	}

	for alias := range nodeAliases {
		alternatives = append(alternatives, regexp.QuoteMeta(alias))
	}

	// longest first so branding_loader wins over branding
	sort.SliceStable(alternatives, func(i, j int) bool { return len(alternatives[i]) > len(alternatives[j]) })

	re := regexp.MustCompile(`\b(` + strings.Join(alternatives, "|") + `)\b`)

	return re.FindAllString(strings.ToLower(text), -1)
}

var reportSteps = []string{
	nodes.StepBrandingLoader,
	nodes.StepDataFetch,
	nodes.StepCalculation,
	nodes.StepReportGeneration,
	nodes.StepBranding,
}

var documentSteps = []string{
	nodes.StepDocumentProcessing,
	nodes.StepDataExtraction,
	nodes.StepValidation,
}

// planTable is the deterministic plan per agent-type hint.
var planTable = map[string][]string{
	"ap_aging":            reportSteps,
	"ar_aging":            reportSteps,
	"ap_register":         reportSteps,
	"ar_register":         reportSteps,
	"document_processing": documentSteps,
}

func (p *Planner) table(_ context.Context, req *request) ([]string, *PlanParseError) {
	steps, ok := planTable[strings.ToLower(strings.TrimSpace(req.hint))]
	if !ok {
		return nil, parseError(StrategyTable, "no table entry for hint "+req.hint, nil)
	}

	return append([]string(nil), steps...), nil
}

var (
	fetchWords     = []string{"fetch", "get", "retrieve", "invoice", "data"}
	calcWords      = []string{"calculate", "aging", "total", "sum"}
	reportWords    = []string{"generate", "report", "excel", "output"}
	documentWords  = []string{"process", "extract", "parse", "document", "upload"}
	brandedReports = map[string]struct{}{"ap_aging": {}, "ar_aging": {}, "ap_register": {}, "ar_register": {}}
)

// keywords derives steps from words in the task and emits them in
// vocabulary order.
func (p *Planner) keywords(_ context.Context, req *request) ([]string, *PlanParseError) {
	text := strings.ToLower(req.text)
	selected := map[string]bool{}

	_, branded := brandedReports[strings.ToLower(req.hint)]
	if branded || strings.Contains(text, "report") {
		selected[nodes.StepBrandingLoader] = true
		selected[nodes.StepBranding] = true
	}

	if containsAny(text, fetchWords) {
		selected[nodes.StepDataFetch] = true
	}

	if containsAny(text, calcWords) {
		selected[nodes.StepCalculation] = true
	}

	if containsAny(text, reportWords) {
		selected[nodes.StepReportGeneration] = true
	}

	if containsAny(text, documentWords) {
		for _, s := range documentSteps {
			selected[s] = true
		}
	}

	var steps []string

	for _, s := range nodes.Vocabulary {
		if selected[s] {
			steps = append(steps, s)
		}
	}

	if len(steps) == 0 {
		return nil, parseError(StrategyKeywords, "no keywords matched", nil)
	}

	return steps, nil
}

func (p *Planner) defaults(context.Context, *request) ([]string, *PlanParseError) {
	return defaultSteps(), nil
}

func defaultSteps() []string {
	return []string{nodes.StepDataFetch, nodes.StepCalculation, nodes.StepReportGeneration}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}

	return false
}
