package planner

import (
	"fmt"
	"strings"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/nodes"
)

// BuildOptions supplies the request details turned into node params.
type BuildOptions struct {
	Query      string
	CompanyID  string
	UserID     string
	AsOfDate   string
	DocumentID string
}

// BuildSpec turns ordered steps into a linear graph spec: one node per step,
// named after the step and typed through nodes.StepType, chained by plain
// edges from the first step to the last.
func BuildSpec(steps []string, hint string, opts BuildOptions) (core.GraphSpec, error) {
	if len(steps) == 0 {
		return core.GraphSpec{}, core.NewGraphValidationError("plan has no steps")
	}

	spec := core.GraphSpec{
		Nodes: make([]core.NodeSpec, 0, len(steps)),
		Edges: make([]core.EdgeSpec, 0, len(steps)-1),
		Entry: steps[0],
	}

	for i, step := range steps {
		typ, ok := nodes.StepType(step, hint)
		if !ok {
			return core.GraphSpec{}, core.NewGraphValidationError(fmt.Sprintf("unknown plan step %q", step), step)
		}

		spec.Nodes = append(spec.Nodes, core.NodeSpec{
			Name:   step,
			Type:   typ,
			Params: stepParams(step, hint, opts),
		})

		if i > 0 {
			spec.Edges = append(spec.Edges, core.EdgeSpec{Source: steps[i-1], Target: step})
		}
	}

	spec.Finish = steps[len(steps)-1]

	return spec, nil
}

func stepParams(step, hint string, opts BuildOptions) map[string]any {
	params := map[string]any{}

	switch step {
	case nodes.StepBrandingLoader:
		setIf(params, "company_id", opts.CompanyID)
	case nodes.StepDataFetch:
		filters := map[string]any{"category": categoryFor(hint)}
		setIf(filters, "company_id", opts.CompanyID)
		params["filters"] = filters
	case nodes.StepCalculation:
		setIf(params, "as_of_date", opts.AsOfDate)
	case nodes.StepReportGeneration:
		params["report_type"] = reportTypeFor(hint)
		setIf(params, "query", opts.Query)
	case nodes.StepDocumentProcessing:
		setIf(params, "document_id", opts.DocumentID)
	}

	setIf(params, "user_id", opts.UserID)

	if len(params) == 0 {
		return nil
	}

	return params
}

// categoryFor maps receivable hints to sales invoices and everything else
// to purchase invoices.
func categoryFor(hint string) string {
	if strings.HasPrefix(strings.ToLower(hint), "ar_") {
		return nodes.CategorySales
	}

	return nodes.CategoryPurchase
}

func reportTypeFor(hint string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" || h == "document_processing" {
		return "ap_aging"
	}

	return h
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
