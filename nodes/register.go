package nodes

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/internal/util"
)

// Payment states assigned by the outstanding calculator.
const (
	PaymentPaid    = "paid"
	PaymentPartial = "partially_paid"
	PaymentUnpaid  = "unpaid"
)

const defaultRegister = "ap_register"

// IsRegisterReport reports whether a report type or hint names an invoice
// register.
func IsRegisterReport(reportType string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(reportType)), "_register")
}

// PaymentStatus classifies an invoice by its outstanding amount.
func PaymentStatus(amount, outstanding float64) string {
	switch {
	case outstanding <= 0:
		return PaymentPaid
	case outstanding < amount:
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// outstandingCalculator keeps the invoices that still carry an open amount
// and summarizes them. Paid invoices are counted but dropped unless
// include_paid is set.
func (l *Library) outstandingCalculator(_ context.Context, data, params map[string]any) (any, error) {
	includePaid, _ := params["include_paid"].(bool)

	records := util.Records(data["invoices"])
	out := make([]any, 0, len(records))
	counts := map[string]int{}

	var amount, paid, outstanding float64

	for _, r := range records {
		inv := core.CloneMap(r)
		owed := outstandingOf(inv)
		gross, _ := util.ToFloat(inv["amount"])

		status := PaymentStatus(gross, owed)
		counts[status]++

		if status == PaymentPaid && !includePaid {
			continue
		}

		settled, _ := util.ToFloat(inv["paid_amount"])

		inv["outstanding"] = round(owed)
		inv["payment_status"] = status

		amount += gross
		paid += settled
		outstanding += owed

		out = append(out, inv)
	}

	l.logger.Debug("nodes.outstanding.calculated", "invoices", len(records), "listed", len(out))

	return map[string]any{
		"invoices": out,
		"register_summary": map[string]any{
			"total_invoices":    len(records),
			"listed_invoices":   len(out),
			"total_amount":      round(amount),
			"total_paid":        round(paid),
			"total_outstanding": round(outstanding),
			"paid_count":        counts[PaymentPaid],
			"partial_count":     counts[PaymentPartial],
			"unpaid_count":      counts[PaymentUnpaid],
		},
		"total_outstanding": round(outstanding),
	}, nil
}

var registerColumns = []string{
	"invoice_number", "party", "invoice_date", "due_date",
	"amount", "paid_amount", "outstanding", "payment_status",
}

// registerReport lists the calculated invoices one row each, oldest first.
func (l *Library) registerReport(_ context.Context, data, params map[string]any) (any, error) {
	reportType := util.ToString(params["report_type"])
	if reportType == "" {
		reportType = defaultRegister
	}

	records := util.Records(data["invoices"])
	rows := make([]map[string]any, 0, len(records))

	var grand float64

	for _, inv := range records {
		if _, ok := inv["payment_status"]; !ok {
			return nil, errors.New("invoices have no payment status; run the outstanding calculator first")
		}

		row := map[string]any{}
		for _, c := range registerColumns {
			if v, ok := inv[c]; ok {
				row[c] = v
			}
		}

		grand += outstandingOf(inv)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := util.ToString(rows[i]["invoice_date"]), util.ToString(rows[j]["invoice_date"])
		if di != dj {
			return di < dj
		}

		return util.ToString(rows[i]["invoice_number"]) < util.ToString(rows[j]["invoice_number"])
	})

	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}

	report := map[string]any{
		"report_type":  reportType,
		"title":        reportTitle(reportType),
		"columns":      append([]string(nil), registerColumns...),
		"rows":         out,
		"grand_total":  round(grand),
		"generated_at": l.now().UTC().Format(time.RFC3339),
	}

	if summary, ok := data["register_summary"].(map[string]any); ok {
		report["summary"] = core.CloneMap(summary)
	}

	if asOf, ok := data["as_of_date"]; ok {
		report["as_of_date"] = asOf
	}

	l.logger.Debug("nodes.report.generated", "report_type", reportType, "rows", len(out))

	return map[string]any{"report": report}, nil
}
