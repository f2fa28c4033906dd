package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reportgraph/checkpoint"
	"github.com/hupe1980/reportgraph/config"
	"github.com/hupe1980/reportgraph/model"
	"github.com/hupe1980/reportgraph/nodes"
)

const testDataset = `
invoices:
  - id: "1"
    invoice_number: P-001
    party: Globex
    category: purchase
    company_id: c1
    invoice_date: "2024-06-10"
    due_date: "2024-07-10"
    amount: 1000
    paid_amount: 200
    currency: EUR
  - id: "2"
    invoice_number: S-001
    party: Initech
    category: sales
    company_id: c1
    invoice_date: "2024-06-01"
    amount: 999
branding:
  c1:
    company_name: Acme Holdings
    currency: EUR
    colors:
      primary: "#003366"
documents:
  - id: d1
    name: invoice.txt
    content_type: text/plain
    text: "Invoice No: INV-9"
`

func TestNewClient(t *testing.T) {
	client, err := newClient(config.LLMConfig{Provider: config.ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, client)

	client, err = newClient(config.LLMConfig{Provider: config.ProviderMock})
	require.NoError(t, err)
	assert.Equal(t, "mock", client.Info().Provider)

	client, err = newClient(config.LLMConfig{Provider: "OpenAI", Model: "gpt-4o-mini", OpenAIAPIKey: "sk-test", RatePerMinute: 30})
	require.NoError(t, err)
	assert.IsType(t, &model.RateLimited{}, client)
	assert.Equal(t, model.Info{Name: "gpt-4o-mini", Provider: "openai"}, client.Info())

	client, err = newClient(config.LLMConfig{Provider: config.ProviderAnthropic, AnthropicAPIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", client.Info().Provider)

	client, err = newClient(config.LLMConfig{Provider: config.ProviderOllama, Model: "llama3", OllamaURL: "http://127.0.0.1:11434"})
	require.NoError(t, err)
	assert.Equal(t, model.Info{Name: "llama3", Provider: "ollama"}, client.Info())

	_, err = newClient(config.LLMConfig{Provider: "bard"})
	assert.ErrorContains(t, err, `unknown llm provider "bard"`)
}

func TestNewCheckpointStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := newCheckpointStore(ctx, config.CheckpointConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, store)
	closeFn()

	store, closeFn, err = newCheckpointStore(ctx, config.CheckpointConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &checkpoint.Memory{}, store)
	closeFn()

	_, _, err = newCheckpointStore(ctx, config.CheckpointConfig{Backend: "etcd"})
	assert.ErrorContains(t, err, `unknown checkpoint backend "etcd"`)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(config.LogConfig{Level: "debug", Format: "JSON"}, &buf)
	require.NoError(t, err)

	logger.Info("cli.test", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"cli.test"`)

	_, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestEngineConfig(t *testing.T) {
	cfg := engineConfig(config.EngineConfig{CacheSize: 8, SessionTTL: time.Minute, MaxSessions: 3, MaxNodeExecutions: 50, MaxConcurrentSessions: 2})
	assert.Equal(t, 8, cfg.CacheSize)
	assert.Equal(t, time.Minute, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.MaxSessions)
	assert.Equal(t, 50, cfg.MaxNodeExecutions)
	assert.Equal(t, 2, cfg.MaxConcurrentSessions)
}

func TestNewTelemetry(t *testing.T) {
	tel := newTelemetry()
	require.NotNil(t, tel)

	ctx, span := tel.StartSession(context.Background(), "s1", "key")
	require.NotNil(t, span)

	nctx, nspan := tel.StartNode(ctx, "data_fetch")
	tel.EndNode(nctx, nspan, "data_fetch", time.Millisecond, nil)
	tel.EndSession(ctx, span, "completed", time.Millisecond, nil)
}

func TestLoadDataset(t *testing.T) {
	ctx := context.Background()

	deps, err := loadDataset(strings.NewReader(testDataset))
	require.NoError(t, err)

	invoices, err := deps.Invoices.Invoices(ctx, nodes.InvoiceFilter{Category: nodes.CategoryPurchase, CompanyID: "c1"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "P-001", invoices[0].Number)
	assert.Equal(t, time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC), invoices[0].DueDate)
	assert.InDelta(t, 800.0, invoices[0].Outstanding(), 1e-9)

	branding, err := deps.Branding.Branding(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", branding.CompanyName)
	assert.Equal(t, "#003366", branding.Colors["primary"])

	doc, err := deps.Documents.Document(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", doc.ContentType)
}

func TestLoadDataset_Errors(t *testing.T) {
	_, err := loadDataset(strings.NewReader("invoices: [{invoice_number: X, invoice_date: 10/06/2024}]"))
	assert.ErrorContains(t, err, "invoice X")

	_, err = loadDataset(strings.NewReader("invoices: {"))
	assert.ErrorContains(t, err, "decode dataset")

	deps, err := loadDataset(strings.NewReader(""))
	require.NoError(t, err)
	assert.NotNil(t, deps.Invoices)

	_, err = loadDatasetFile("does-not-exist.yaml")
	assert.Error(t, err)
}
