package planner

import (
	"github.com/hupe1980/reportgraph/internal/util"
	"github.com/hupe1980/reportgraph/nodes"
)

const systemPrompt = "You are a workflow planner for financial reporting. You answer with JSON only."

const planTemplate = `You plan report workflows using the ReACT (Reasoning and Acting) pattern.

User Query: "{{.query}}"
Agent Type: {{default "generic" .hint}}

Available workflow steps:
{{range $i, $s := .steps}}{{$s.name}} - {{$s.description}}
{{end}}
Instructions:
- Think step by step: PLAN what is needed, SEARCH the steps above, BUILD the workflow, VALIDATE it.
- Include branding_loader and branding whenever a report is generated.
- Use the exact step names listed above, in execution order.

Examples:
Query: "Generate AP aging report" -> {"steps": ["branding_loader", "data_fetch", "calculation", "report_generation", "branding"]}
Query: "Process uploaded invoice" -> {"steps": ["document_processing", "data_extraction", "validation"]}
Query: "Calculate outstanding amounts" -> {"steps": ["data_fetch", "calculation"]}

Allowed step names: {{join ", " .names}}
Final Answer as JSON: {"steps": ["step1", "step2", ...]}
`

var stepDescriptions = map[string]string{
	nodes.StepBrandingLoader:     "Load company branding configuration (colors, logo, currency)",
	nodes.StepDataFetch:          "Fetch invoices from the database",
	nodes.StepCalculation:        "Calculate outstanding amounts, aging buckets and totals",
	nodes.StepReportGeneration:   "Generate the report",
	nodes.StepBranding:           "Apply company branding to the report",
	nodes.StepDocumentProcessing: "Load an uploaded document",
	nodes.StepDataExtraction:     "Extract fields from the loaded document",
	nodes.StepValidation:         "Validate the extracted fields",
}

func (p *Planner) renderPrompt(text, hint string) (string, error) {
	steps := make([]any, 0, len(p.vocabulary))

	for _, s := range p.vocabulary {
		steps = append(steps, map[string]any{"name": s, "description": stepDescriptions[s]})
	}

	return util.RenderTemplate(planTemplate, map[string]any{
		"query": text,
		"hint":  hint,
		"steps": steps,
		"names": p.vocabulary,
	})
}
