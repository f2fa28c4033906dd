package reportgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportgraph/checkpoint"
	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/internal/testutil"
	"github.com/hupe1980/reportgraph/model"
	"github.com/hupe1980/reportgraph/planner"
)

func newTestReportGraph(t *testing.T, optFns ...func(o *Options)) *ReportGraph {
	t.Helper()

	rg, err := New(append([]func(o *Options){func(o *Options) { o.Dependencies = testutil.Dependencies() }}, optFns...)...)
	require.NoError(t, err)

	return rg
}

func TestReportGraph_Run_APAgingWithUnreachableLLM(t *testing.T) {
	client := model.NewMockClient("planner")
	client.SetError(errors.New("dial tcp: connection refused"))

	rg := newTestReportGraph(t, func(o *Options) { o.Client = client })

	res, err := rg.Run(context.Background(), "Generate AP aging report", "ap_aging", map[string]any{
		"company_id": "c1",
		"as_of_date": "2024-06-30",
	})
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyTable, res.Strategy)
	assert.Equal(t, []string{"branding_loader", "data_fetch", "calculation", "report_generation", "branding"}, res.Steps)
	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Len(t, res.History, 5)
	assert.Positive(t, res.ProcessingTime)

	report, ok := res.Data["report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Acme Holdings - Accounts Payable Aging", report["header"])
	assert.Equal(t, 1600.0, report["grand_total"])
	assert.Equal(t, true, res.Data["branded"])

	info, err := rg.Engine().GetSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, core.SessionCompleted, info.Session.Status)
}

func TestReportGraph_Run_APRegister(t *testing.T) {
	rg := newTestReportGraph(t)

	res, err := rg.Run(context.Background(), "List open payables", "ap_register", map[string]any{"company_id": "c1"})
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyTable, res.Strategy)
	assert.Equal(t, core.SessionCompleted, res.Status)

	report := res.Data["report"].(map[string]any)
	assert.Equal(t, "Acme Holdings - Accounts Payable Register", report["header"])
	assert.Equal(t, 1600.0, report["grand_total"])

	rows := report["rows"].([]any)
	require.Len(t, rows, 3)
	assert.Equal(t, "P-003", rows[0].(map[string]any)["invoice_number"])

	summary := report["summary"].(map[string]any)
	assert.Equal(t, 1, summary["partial_count"])
	assert.Equal(t, 2, summary["unpaid_count"])
}

func TestReportGraph_Run_DocumentProcessing(t *testing.T) {
	rg := newTestReportGraph(t)

	res, err := rg.Run(context.Background(), "Process uploaded invoice", "document_processing", map[string]any{"document_id": "d1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"document_processing", "data_extraction", "validation"}, res.Steps)
	assert.Equal(t, core.SessionCompleted, res.Status)

	validation := res.Data["validation"].(map[string]any)
	assert.Equal(t, true, validation["valid"])

	extracted := res.Data["extracted"].(map[string]any)
	assert.Equal(t, "INV-9", extracted["invoice_number"])
}

func TestReportGraph_Run_NodeFailureIsReported(t *testing.T) {
	rg := newTestReportGraph(t)

	res, err := rg.Run(context.Background(), "Generate AP aging report", "ap_aging", map[string]any{"company_id": "unknown"})
	require.NoError(t, err)

	assert.Equal(t, core.SessionFailed, res.Status)
	assert.Contains(t, res.Error, "branding_loader")
	require.Len(t, res.History, 1)
}

func TestReportGraph_Run_LLMPlanWithCheckpoints(t *testing.T) {
	client := model.NewMockClient("planner")
	client.SetDefault(`{"steps": ["data_fetch", "calculation"]}`)

	store := checkpoint.NewMemory()
	rg := newTestReportGraph(t, func(o *Options) {
		o.Client = client
		o.Checkpoints = store
	})

	res, err := rg.Run(context.Background(), "Age the payables", "", map[string]any{"company_id": "c1"})
	require.NoError(t, err)

	assert.Equal(t, planner.StrategyLLMJSON, res.Strategy)
	assert.Equal(t, core.SessionCompleted, res.Status)
	assert.Contains(t, res.Data, "aging_summary")

	saved, err := store.Load(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.History, 2)
	assert.Empty(t, saved.Next)
}

func TestReportGraph_Registry(t *testing.T) {
	rg := newTestReportGraph(t)

	assert.NotEmpty(t, rg.Registry().FindByCapability("reporting"))
	assert.NotNil(t, rg.Planner())
}
