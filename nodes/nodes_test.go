package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/graph"
	"github.com/hupe1980/reportgraph/registry"
	"github.com/hupe1980/reportgraph/tool"
)

func date(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func sampleInvoices() *MemoryInvoices {
	return NewMemoryInvoices(
		Invoice{ID: "1", Number: "P-001", Party: "Globex", Category: CategoryPurchase, CompanyID: "c1",
			Date: date("2024-06-10"), DueDate: date("2024-07-10"), Amount: 1000, PaidAmount: 200, Currency: "EUR"},
		Invoice{ID: "2", Number: "P-002", Party: "Acme", Category: CategoryPurchase, CompanyID: "c1",
			Date: date("2024-04-20"), DueDate: date("2024-05-20"), Amount: 500, Currency: "EUR"},
		Invoice{ID: "3", Number: "P-003", Party: "Acme", Category: CategoryPurchase, CompanyID: "c1",
			Date: date("2024-01-15"), Amount: 300, Currency: "EUR"},
		Invoice{ID: "4", Number: "S-001", Party: "Initech", Category: CategorySales, CompanyID: "c1",
			Date: date("2024-06-01"), Amount: 999, Currency: "EUR"},
		Invoice{ID: "5", Number: "P-900", Party: "Other", Category: CategoryPurchase, CompanyID: "c2",
			Date: date("2024-06-01"), Amount: 50, Currency: "USD"},
	)
}

func newTestLibrary() *Library {
	branding := NewMemoryBranding()
	branding.Set("c1", Branding{CompanyName: "Acme Holdings", Currency: "EUR", Colors: map[string]string{"primary": "#003366"}})

	return New(Dependencies{
		Invoices: sampleInvoices(),
		Branding: branding,
		Documents: NewMemoryDocuments(Document{
			ID:          "d1",
			Name:        "invoice.txt",
			ContentType: "text/plain",
			Text:        "Invoice No: INV-9\nDate: 2024-05-01\nTotal: 1,250.50\nVendor: Globex\nnot a field line\n",
		}),
		Now: func() time.Time { return date("2024-06-30") },
	})
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, Bucket0To30},
		{30, Bucket0To30},
		{31, Bucket31To60},
		{60, Bucket31To60},
		{61, Bucket61To90},
		{90, Bucket61To90},
		{91, BucketOver90},
		{400, BucketOver90},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketFor(tt.days), "days=%d", tt.days)
	}
}

func TestMemoryInvoices_Filter(t *testing.T) {
	src := sampleInvoices()

	got, err := src.Invoices(context.Background(), InvoiceFilter{CompanyID: "c1", Category: "PURCHASE"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "P-003", got[0].Number)
	assert.Equal(t, "P-001", got[2].Number)

	got, err = src.Invoices(context.Background(), InvoiceFilter{From: date("2024-06-01"), To: date("2024-06-05")})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFilterFromParams_InvalidDate(t *testing.T) {
	_, err := FilterFromParams(map[string]any{"from": "yesterday"})
	assert.Error(t, err)
}

func TestLibrary_InvoiceFetch(t *testing.T) {
	l := newTestLibrary()

	out, err := l.invoiceFetch(context.Background(), map[string]any{"company_id": "c1"}, map[string]any{
		"filters": map[string]any{"category": CategorySales},
	})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, 1, m["invoice_count"])

	invoices := m["invoices"].([]any)
	assert.Equal(t, "S-001", invoices[0].(map[string]any)["invoice_number"])
	assert.Equal(t, "2024-06-01", invoices[0].(map[string]any)["invoice_date"])
}

func TestLibrary_AgingCalculator(t *testing.T) {
	l := newTestLibrary()

	fetched, err := l.invoiceFetch(context.Background(), map[string]any{}, map[string]any{
		"filters": map[string]any{"category": CategoryPurchase, "company_id": "c1"},
	})
	require.NoError(t, err)

	out, err := l.agingCalculator(context.Background(), fetched.(map[string]any), map[string]any{"as_of_date": "2024-06-30"})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "2024-06-30", m["as_of_date"])
	assert.Equal(t, 1600.0, m["total_outstanding"])
	assert.Equal(t, map[string]any{
		Bucket0To30:  800.0,
		Bucket31To60: 0.0,
		Bucket61To90: 500.0,
		BucketOver90: 300.0,
	}, m["aging_summary"])

	invoices := m["invoices"].([]any)
	require.Len(t, invoices, 3)

	byNumber := map[string]map[string]any{}
	for _, inv := range invoices {
		r := inv.(map[string]any)
		byNumber[r["invoice_number"].(string)] = r
	}

	assert.Equal(t, 20, byNumber["P-001"]["aging_days"])
	assert.Equal(t, 0, byNumber["P-001"]["overdue_days"])
	assert.Equal(t, 71, byNumber["P-002"]["aging_days"])
	assert.Equal(t, 41, byNumber["P-002"]["overdue_days"])
	assert.Equal(t, 167, byNumber["P-003"]["aging_days"])
	assert.Equal(t, BucketOver90, byNumber["P-003"]["aging_bucket"])
}

func TestLibrary_AgingCalculator_DefaultsToNow(t *testing.T) {
	l := newTestLibrary()

	out, err := l.agingCalculator(context.Background(), map[string]any{
		"invoices": []any{map[string]any{"invoice_number": "X", "amount": 10.0}},
	}, nil)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "2024-06-30", m["as_of_date"])
	assert.Equal(t, BucketUnknown, m["invoices"].([]any)[0].(map[string]any)["aging_bucket"])
	assert.Equal(t, 10.0, m["aging_summary"].(map[string]any)[BucketUnknown])
}

func TestLibrary_AgingCalculator_InvalidAsOf(t *testing.T) {
	_, err := newTestLibrary().agingCalculator(context.Background(), map[string]any{}, map[string]any{"as_of_date": "soon"})
	assert.ErrorContains(t, err, "invalid as_of_date")
}

func TestLibrary_AgingReport(t *testing.T) {
	l := newTestLibrary()

	data := map[string]any{
		"as_of_date": "2024-06-30",
		"invoices": []any{
			map[string]any{"party": "Globex", "outstanding": 800.0, "aging_bucket": Bucket0To30},
			map[string]any{"party": "Acme", "outstanding": 500.0, "aging_bucket": Bucket61To90},
			map[string]any{"party": "Acme", "outstanding": 300.0, "aging_bucket": BucketOver90},
		},
	}

	out, err := l.agingReport(context.Background(), data, map[string]any{"report_type": "ap_aging"})
	require.NoError(t, err)

	report := out.(map[string]any)["report"].(map[string]any)
	assert.Equal(t, "Accounts Payable Aging", report["title"])
	assert.Equal(t, 1600.0, report["grand_total"])
	assert.Equal(t, "2024-06-30", report["as_of_date"])
	assert.Equal(t, "2024-06-30T00:00:00Z", report["generated_at"])

	rows := report["rows"].([]any)
	require.Len(t, rows, 2)

	acme := rows[0].(map[string]any)
	assert.Equal(t, "Acme", acme["party"])
	assert.Equal(t, 2, acme["invoice_count"])
	assert.Equal(t, 800.0, acme["total"])
	assert.Equal(t, 0.0, acme[Bucket0To30])
	assert.NotContains(t, acme, BucketUnknown)

	assert.Equal(t, map[string]any{
		Bucket0To30:  800.0,
		Bucket31To60: 0.0,
		Bucket61To90: 500.0,
		BucketOver90: 300.0,
	}, report["bucket_totals"])
}

func TestLibrary_AgingReport_RequiresAgedInvoices(t *testing.T) {
	_, err := newTestLibrary().agingReport(context.Background(), map[string]any{
		"invoices": []any{map[string]any{"party": "Acme", "amount": 1.0}},
	}, nil)
	assert.ErrorContains(t, err, "not aged")
}

func TestReportTitle_Generic(t *testing.T) {
	assert.Equal(t, "Accounts Receivable Aging", reportTitle("ar_aging"))
	assert.Equal(t, "Cash Flow Summary", reportTitle("cash_flow_summary"))
}

func TestLibrary_BrandingLoader(t *testing.T) {
	l := newTestLibrary()

	out, err := l.brandingLoader(context.Background(), map[string]any{"company_id": "c1"}, nil)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "Acme Holdings", m["company_name"])
	assert.Equal(t, "EUR", m["currency"])

	_, err = l.brandingLoader(context.Background(), map[string]any{}, nil)
	assert.ErrorContains(t, err, "company_id is required")

	_, err = l.brandingLoader(context.Background(), map[string]any{}, map[string]any{"company_id": "nope"})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestLibrary_BrandingApplier(t *testing.T) {
	l := newTestLibrary()

	state := core.NewExecutionState(map[string]any{
		"report":   map[string]any{"title": "Accounts Payable Aging"},
		"branding": map[string]any{"company_name": "Acme Holdings", "currency": "EUR"},
	})

	update, err := l.brandingApplier(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, true, update["branded"])

	report := update["report"].(map[string]any)
	assert.Equal(t, "Acme Holdings - Accounts Payable Aging", report["header"])
	assert.Equal(t, "EUR", report["currency"])
	assert.NotContains(t, state.Data["report"], "header")
}

func TestLibrary_BrandingApplier_WithoutBranding(t *testing.T) {
	l := newTestLibrary()

	update, err := l.brandingApplier(context.Background(), core.NewExecutionState(map[string]any{
		"report": map[string]any{"title": "x"},
	}))
	require.NoError(t, err)
	assert.Equal(t, false, update["branded"])

	_, err = l.brandingApplier(context.Background(), core.NewExecutionState(nil))
	assert.ErrorContains(t, err, "no report to brand")
}

func TestLibrary_DocumentPipeline(t *testing.T) {
	l := newTestLibrary()

	loaded, err := l.documentTool().Call(context.Background(), core.ToolCall{Input: map[string]any{"document_id": "d1"}})
	require.NoError(t, err)

	extracted, err := l.dataExtraction(context.Background(), loaded.(map[string]any), nil)
	require.NoError(t, err)

	fields := extracted.(map[string]any)["extracted"].(map[string]any)
	assert.Equal(t, map[string]any{
		"invoice_number": "INV-9",
		"invoice_date":   "2024-05-01",
		"amount":         1250.5,
		"party":          "Globex",
	}, fields)

	validated, err := l.invoiceValidation(context.Background(), extracted.(map[string]any), nil)
	require.NoError(t, err)

	v := validated.(map[string]any)["validation"].(map[string]any)
	assert.Equal(t, true, v["valid"])
	assert.Empty(t, v["errors"])
}

func TestLibrary_DocumentTool_Errors(t *testing.T) {
	l := newTestLibrary()

	_, err := l.documentTool().Call(context.Background(), core.ToolCall{Arguments: map[string]any{"document_id": "missing"}})

	var toolErr *tool.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, tool.CodeExecution, toolErr.Code)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = l.documentTool().Call(context.Background(), core.ToolCall{})
	assert.ErrorContains(t, err, "document_id is required")
}

func TestLibrary_InvoiceValidation_MissingFields(t *testing.T) {
	l := newTestLibrary()

	out, err := l.invoiceValidation(context.Background(), map[string]any{
		"extracted": map[string]any{"invoice_number": "INV-1", "invoice_date": "tomorrow"},
	}, map[string]any{"required_fields": []any{"invoice_number", "amount"}})
	require.NoError(t, err)

	v := out.(map[string]any)["validation"].(map[string]any)
	assert.Equal(t, false, v["valid"])

	errs := v["errors"].([]any)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "amount")
	assert.Contains(t, errs[1], "invoice_date")

	_, err = l.invoiceValidation(context.Background(), map[string]any{}, nil)
	assert.ErrorContains(t, err, "no extracted data")
}

func TestRegisterBuiltins(t *testing.T) {
	r := registry.New()
	require.NoError(t, RegisterBuiltins(r, Dependencies{}))

	for _, step := range Vocabulary {
		assert.True(t, r.Has(StepTypes[step]), step)
	}

	assert.Equal(t, []string{TypeBrandingApplier, TypeBrandingLoader}, r.FindByCapability("branding"))
	assert.Equal(t, []string{TypeAgingCalculator}, r.FindByCapabilities("calculation", "aging"))

	h, err := r.Build(TypeDocumentProcessing, nil)
	require.NoError(t, err)
	assert.Equal(t, core.KindTool, h.Kind())

	h, err = r.Build(TypeBrandingApplier, nil)
	require.NoError(t, err)
	assert.Equal(t, core.KindFunction, h.Kind())

	h, err = r.Build(TypeState, nil)
	require.NoError(t, err)
	assert.Equal(t, core.KindTool, h.Kind())
	assert.Equal(t, []string{TypeState}, r.FindByCapability("state"))

	assert.False(t, IsStep("summarize"))
}

func TestBuiltins_AgingGraph(t *testing.T) {
	r := registry.New()
	require.NoError(t, newTestLibrary().Register(r))

	spec := core.GraphSpec{
		Nodes: []core.NodeSpec{
			{Name: StepBrandingLoader, Type: TypeBrandingLoader},
			{Name: StepDataFetch, Type: TypeInvoiceFetch, Params: map[string]any{"filters": map[string]any{"category": CategoryPurchase}}},
			{Name: StepCalculation, Type: TypeAgingCalculator, Params: map[string]any{"as_of_date": "2024-06-30"}},
			{Name: StepReportGeneration, Type: TypeAgingReport, Params: map[string]any{"report_type": "ap_aging"}},
			{Name: StepBranding, Type: TypeBrandingApplier},
		},
		Edges: []core.EdgeSpec{
			{Source: StepBrandingLoader, Target: StepDataFetch},
			{Source: StepDataFetch, Target: StepCalculation},
			{Source: StepCalculation, Target: StepReportGeneration},
			{Source: StepReportGeneration, Target: StepBranding},
		},
		Entry:  StepBrandingLoader,
		Finish: StepBranding,
	}

	g, err := graph.FromSpec(spec, r)
	require.NoError(t, err)

	state := core.NewExecutionState(map[string]any{"company_id": "c1"})
	for _, name := range g.Nodes() {
		require.NoError(t, g.ExecuteNode(context.Background(), name, state))
	}

	assert.Len(t, state.History, 5)
	assert.Equal(t, true, state.Data["branded"])

	report := state.Data["report"].(map[string]any)
	assert.Equal(t, "Acme Holdings - Accounts Payable Aging", report["header"])
	assert.Equal(t, 1600.0, report["grand_total"])
}
