package nodes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/internal/util"
)

// Aging buckets, in report column order.
const (
	Bucket0To30   = "0-30"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	BucketOver90  = "90+"
	BucketUnknown = "Unknown"
)

const (
	defaultReport  = "ap_aging"
	hoursPerDay    = 24
	roundingFactor = 100
)

// Buckets lists the dated aging buckets in order.
var Buckets = []string{Bucket0To30, Bucket31To60, Bucket61To90, BucketOver90}

// BucketFor returns the aging bucket for an age in days.
func BucketFor(days int) string {
	switch {
	case days <= 30:
		return Bucket0To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

func (l *Library) brandingLoader(ctx context.Context, data, params map[string]any) (any, error) {
	companyID := util.ToString(params["company_id"])
	if companyID == "" {
		companyID = util.ToString(data["company_id"])
	}

	if companyID == "" {
		return nil, errors.New("company_id is required")
	}

	b, err := l.branding.Branding(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load branding: %w", err)
	}

	l.logger.Debug("nodes.branding.loaded", "company_id", companyID, "company_name", b.CompanyName)

	return map[string]any{
		"branding":     b.Record(),
		"company_name": b.CompanyName,
		"currency":     b.Currency,
	}, nil
}

func (l *Library) invoiceFetch(ctx context.Context, data, params map[string]any) (any, error) {
	filters, _ := params["filters"].(map[string]any)

	filter, err := FilterFromParams(filters)
	if err != nil {
		return nil, fmt.Errorf("invalid filters: %w", err)
	}

	if filter.CompanyID == "" {
		filter.CompanyID = util.ToString(data["company_id"])
	}

	invoices, err := l.invoices.Invoices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch invoices: %w", err)
	}

	records := make([]any, len(invoices))
	for i, inv := range invoices {
		records[i] = inv.Record()
	}

	l.logger.Debug("nodes.invoices.fetched", "category", filter.Category, "count", len(records))

	return map[string]any{
		"invoices":      records,
		"invoice_count": len(records),
	}, nil
}

func (l *Library) asOfDate(data, params map[string]any) (time.Time, error) {
	v, ok := params["as_of_date"]
	if !ok || v == "" {
		v, ok = data["as_of_date"]
	}

	if !ok || v == nil || v == "" {
		return truncateDay(l.now()), nil
	}

	d, err := util.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as_of_date: %w", err)
	}

	return truncateDay(d), nil
}

func (l *Library) agingCalculator(_ context.Context, data, params map[string]any) (any, error) {
	asOf, err := l.asOfDate(data, params)
	if err != nil {
		return nil, err
	}

	summary := map[string]any{}
	for _, b := range Buckets {
		summary[b] = 0.0
	}

	records := util.Records(data["invoices"])
	out := make([]any, 0, len(records))

	var total float64

	for _, r := range records {
		inv := core.CloneMap(r)
		outstanding := outstandingOf(inv)
		inv["outstanding"] = round(outstanding)

		bucket := BucketUnknown
		inv["aging_days"] = 0
		inv["overdue_days"] = 0

		if date, ok := invoiceDate(inv); ok {
			days := daysBetween(date, asOf)
			bucket = BucketFor(days)
			inv["aging_days"] = days

			if due, err := util.ParseDate(inv["due_date"]); err == nil {
				if overdue := daysBetween(truncateDay(due), asOf); overdue > 0 {
					inv["overdue_days"] = overdue
				}
			}
		}

		inv["aging_bucket"] = bucket

		current, _ := util.ToFloat(summary[bucket])
		summary[bucket] = round(current + outstanding)
		total += outstanding

		out = append(out, inv)
	}

	return map[string]any{
		"invoices":          out,
		"aging_summary":     summary,
		"total_outstanding": round(total),
		"as_of_date":        asOf.Format(time.DateOnly),
	}, nil
}

func (l *Library) agingReport(_ context.Context, data, params map[string]any) (any, error) {
	reportType := util.ToString(params["report_type"])
	if reportType == "" {
		reportType = defaultReport
	}

	type row struct {
		buckets map[string]float64
		count   int
	}

	rows := map[string]*row{}
	bucketTotals := map[string]float64{}

	for _, inv := range util.Records(data["invoices"]) {
		party := util.ToString(inv["party"])
		if party == "" {
			party = "Unassigned"
		}

		bucket := util.ToString(inv["aging_bucket"])
		if bucket == "" {
			return nil, errors.New("invoices are not aged; run the aging calculator first")
		}

		amount := outstandingOf(inv)

		r, ok := rows[party]
		if !ok {
			r = &row{buckets: map[string]float64{}}
			rows[party] = r
		}

		r.buckets[bucket] += amount
		r.count++
		bucketTotals[bucket] += amount
	}

	parties := make([]string, 0, len(rows))
	for p := range rows {
		parties = append(parties, p)
	}

	sort.Strings(parties)

	columns := append(append([]string(nil), Buckets...), BucketUnknown)
	out := make([]any, 0, len(parties))

	var grand float64

	for _, p := range parties {
		r := rows[p]
		entry := map[string]any{"party": p, "invoice_count": r.count}

		var sum float64
		for _, b := range columns {
			if b == BucketUnknown && r.buckets[b] == 0 {
				continue
			}
			entry[b] = round(r.buckets[b])
			sum += r.buckets[b]
		}

		entry["total"] = round(sum)
		grand += sum
		out = append(out, entry)
	}

	totals := map[string]any{}
	for _, b := range columns {
		if b == BucketUnknown && bucketTotals[b] == 0 {
			continue
		}
		totals[b] = round(bucketTotals[b])
	}

	report := map[string]any{
		"report_type":   reportType,
		"title":         reportTitle(reportType),
		"rows":          out,
		"bucket_totals": totals,
		"grand_total":   round(grand),
		"generated_at":  l.now().UTC().Format(time.RFC3339),
	}

	if asOf, ok := data["as_of_date"]; ok {
		report["as_of_date"] = asOf
	}

	l.logger.Debug("nodes.report.generated", "report_type", reportType, "rows", len(out))

	return map[string]any{"report": report}, nil
}

func (l *Library) brandingApplier(_ context.Context, state *core.ExecutionState) (map[string]any, error) {
	report, ok := state.Data["report"].(map[string]any)
	if !ok {
		return nil, errors.New("no report to brand")
	}

	branded := core.CloneMap(report)

	branding, ok := state.Data["branding"].(map[string]any)
	if !ok {
		branded["branding"] = map[string]any{}
		return map[string]any{"report": branded, "branded": false}, nil
	}

	branded["branding"] = core.CloneMap(branding)

	title := util.ToString(report["title"])
	if name := util.ToString(branding["company_name"]); name != "" {
		title = name + " - " + title
	}

	branded["header"] = title

	if currency := util.ToString(branding["currency"]); currency != "" {
		branded["currency"] = currency
	}

	return map[string]any{"report": branded, "branded": true}, nil
}

func reportTitle(reportType string) string {
	switch reportType {
	case "ap_aging":
		return "Accounts Payable Aging"
	case "ar_aging":
		return "Accounts Receivable Aging"
	case "ap_register":
		return "Accounts Payable Register"
	case "ar_register":
		return "Accounts Receivable Register"
	default:
		words := strings.Fields(strings.ReplaceAll(reportType, "_", " "))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
		return strings.Join(words, " ")
	}
}

func outstandingOf(inv map[string]any) float64 {
	if v, ok := util.ToFloat(inv["outstanding"]); ok {
		return v
	}

	amount, _ := util.ToFloat(inv["amount"])
	paid, _ := util.ToFloat(inv["paid_amount"])

	return amount - paid
}

func invoiceDate(inv map[string]any) (time.Time, bool) {
	for _, key := range []string{"invoice_date", "document_date", "date"} {
		v, ok := inv[key]
		if !ok || v == nil || v == "" {
			continue
		}

		d, err := util.ParseDate(v)
		if err != nil {
			return time.Time{}, false
		}

		return truncateDay(d), true
	}

	return time.Time{}, false
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / hoursPerDay))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round(v float64) float64 {
	return math.Round(v*roundingFactor) / roundingFactor
}
