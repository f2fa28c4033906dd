package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/internal/util"
)

// StepFunc is one micro-step of a dynamic agent. It receives the output of the
// previous step and returns the input of the next one.
type StepFunc func(ctx context.Context, input any, params map[string]any) (any, error)

func defaultSteps() map[string]StepFunc {
	return map[string]StepFunc{
		StepDataFetching: fetchStep,
		StepCalculation:  calculationStep,
		StepAnalysis:     analysisStep,
		StepReporting:    reportingStep,
	}
}

// fetchStep merges params["data"] into map inputs.
func fetchStep(_ context.Context, input any, params map[string]any) (any, error) {
	extra, _ := params["data"].(map[string]any)

	in, ok := input.(map[string]any)
	if !ok {
		if len(extra) == 0 {
			return input, nil
		}
		out := core.CloneMap(extra)
		out["input"] = input
		return out, nil
	}

	out := core.CloneMap(in)
	for k, v := range extra {
		out[k] = v
	}

	return out, nil
}

// calculationStep totals the invoices of a map input.
func calculationStep(_ context.Context, input any, params map[string]any) (any, error) {
	in, ok := input.(map[string]any)
	if !ok {
		return input, nil
	}

	key := "invoices"
	if k, ok := params["records_key"].(string); ok && k != "" {
		key = k
	}

	var total, paid float64

	records := util.Records(in[key])
	for _, r := range records {
		amount, _ := util.ToFloat(r["amount"])
		p, _ := util.ToFloat(r["paid_amount"])
		total += amount
		paid += p
	}

	out := core.CloneMap(in)
	out["calculations"] = map[string]any{
		"invoice_count":      len(records),
		"total_amount":       total,
		"total_paid":         paid,
		"total_outstanding":  total - paid,
		"calculation_source": key,
	}

	return out, nil
}

// analysisStep derives counts and averages from the calculation output.
func analysisStep(_ context.Context, input any, _ map[string]any) (any, error) {
	in, ok := input.(map[string]any)
	if !ok {
		return input, nil
	}

	calc, _ := in["calculations"].(map[string]any)
	count, _ := util.ToFloat(calc["invoice_count"])
	total, _ := util.ToFloat(calc["total_amount"])
	outstanding, _ := util.ToFloat(calc["total_outstanding"])

	analysis := map[string]any{
		"record_count":        int(count),
		"average_amount":      0.0,
		"average_outstanding": 0.0,
	}

	if count > 0 {
		analysis["average_amount"] = total / count
		analysis["average_outstanding"] = outstanding / count
	}

	out := core.CloneMap(in)
	out["analysis"] = analysis

	return out, nil
}

// reportingStep attaches a textual summary.
func reportingStep(_ context.Context, input any, params map[string]any) (any, error) {
	in, ok := input.(map[string]any)
	if !ok {
		return map[string]any{
			"summary": fmt.Sprintf("processed %v", input),
		}, nil
	}

	calc, _ := in["calculations"].(map[string]any)
	count, _ := util.ToFloat(calc["invoice_count"])
	outstanding, _ := util.ToFloat(calc["total_outstanding"])

	reportType := util.ToString(params["report_type"])
	if reportType == "" {
		reportType = "summary"
	}

	out := core.CloneMap(in)
	out["report"] = map[string]any{
		"report_type":  reportType,
		"summary":      fmt.Sprintf("%d invoices, %.2f outstanding", int(count), outstanding),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}

	return out, nil
}
