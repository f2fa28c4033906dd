package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/reportgraph/checkpoint"
	"github.com/hupe1980/reportgraph/config"
	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/engine"
	"github.com/hupe1980/reportgraph/logging"
	"github.com/hupe1980/reportgraph/model"
	"github.com/hupe1980/reportgraph/model/anthropic"
	"github.com/hupe1980/reportgraph/model/ollama"
	"github.com/hupe1980/reportgraph/model/openai"
	"github.com/hupe1980/reportgraph/nodes"
	"github.com/hupe1980/reportgraph/telemetry"
)

// newLogger writes to out. Without a configured format it logs text to a
// terminal and JSON otherwise.
func newLogger(cfg config.LogConfig, out io.Writer) (*logging.GraphLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
		if isTerminal(out) {
			format = "text"
		}
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    out,
		Component: "reportgraph",
	}), nil
}

// newClient returns nil for provider none.
func newClient(cfg config.LLMConfig) (model.Client, error) {
	var client model.Client

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderMock:
		client = model.NewMockClient("mock")
	case config.ProviderOpenAI:
		client = openai.NewClient(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
	case config.ProviderAnthropic:
		client = anthropic.NewClient(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		})
	case config.ProviderOllama:
		c, err := ollama.NewClient(func(o *ollama.Options) {
			o.ServerURL = cfg.OllamaURL
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
		if err != nil {
			return nil, err
		}

		client = c
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return model.WithRateLimit(client, cfg.RatePerMinute), nil
}

// newCheckpointStore opens the configured backend. The returned close
// function releases its connections.
func newCheckpointStore(ctx context.Context, cfg config.CheckpointConfig) (core.CheckpointStore, func(), error) {
	noop := func() {}

	switch strings.ToLower(cfg.Backend) {
	case config.BackendNone, "":
		return nil, noop, nil
	case config.BackendMemory:
		return checkpoint.NewMemory(), noop, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}

		store := checkpoint.NewRedis(client, func(o *checkpoint.RedisOptions) { o.TTL = cfg.TTL })

		return store, func() { _ = client.Close() }, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres connect: %w", err)
		}

		store := checkpoint.NewPostgres(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}

		return store, pool.Close, nil
	case config.BackendMongo:
		client, err := checkpoint.ConnectMongo(cfg.MongoURI)
		if err != nil {
			return nil, noop, err
		}

		store := checkpoint.NewMongo(client.Database(cfg.MongoDatabase))

		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		return nil, noop, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newTelemetry reports to the global otel providers, which stay no-ops
// unless an SDK is installed.
func newTelemetry() *telemetry.Telemetry {
	return telemetry.New(func(o *telemetry.Options) {
		o.TracerProvider = otel.GetTracerProvider()
		o.MeterProvider = otel.GetMeterProvider()
	})
}

func engineConfig(cfg config.EngineConfig) engine.Config {
	return engine.Config{
		CacheSize:             cfg.CacheSize,
		SessionTTL:            cfg.SessionTTL,
		MaxSessions:           cfg.MaxSessions,
		MaxNodeExecutions:     cfg.MaxNodeExecutions,
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
	}
}

// dataset is the YAML file of invoices, branding and documents served by
// the in-memory sources.
type dataset struct {
	Invoices []struct {
		ID         string  `yaml:"id"`
		Number     string  `yaml:"invoice_number"`
		Party      string  `yaml:"party"`
		Category   string  `yaml:"category"`
		CompanyID  string  `yaml:"company_id"`
		Date       string  `yaml:"invoice_date"`
		DueDate    string  `yaml:"due_date"`
		Amount     float64 `yaml:"amount"`
		Tax        float64 `yaml:"tax_amount"`
		PaidAmount float64 `yaml:"paid_amount"`
		Currency   string  `yaml:"currency"`
	} `yaml:"invoices"`
	Branding map[string]struct {
		CompanyName string            `yaml:"company_name"`
		LogoPath    string            `yaml:"logo_path"`
		Colors      map[string]string `yaml:"colors"`
		Currency    string            `yaml:"currency"`
	} `yaml:"branding"`
	Documents []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		ContentType string `yaml:"content_type"`
		Text        string `yaml:"text"`
	} `yaml:"documents"`
}

func loadDataset(r io.Reader) (nodes.Dependencies, error) {
	var ds dataset
	if err := yaml.NewDecoder(r).Decode(&ds); err != nil && err != io.EOF {
		return nodes.Dependencies{}, fmt.Errorf("decode dataset: %w", err)
	}

	invoices := nodes.NewMemoryInvoices()

	for _, in := range ds.Invoices {
		date, err := time.Parse(time.DateOnly, in.Date)
		if err != nil {
			return nodes.Dependencies{}, fmt.Errorf("invoice %s: %w", in.Number, err)
		}

		var due time.Time
		if in.DueDate != "" {
			if due, err = time.Parse(time.DateOnly, in.DueDate); err != nil {
				return nodes.Dependencies{}, fmt.Errorf("invoice %s: %w", in.Number, err)
			}
		}

		invoices.Add(nodes.Invoice{
			ID: in.ID, Number: in.Number, Party: in.Party, Category: in.Category, CompanyID: in.CompanyID,
			Date: date, DueDate: due, Amount: in.Amount, Tax: in.Tax, PaidAmount: in.PaidAmount, Currency: in.Currency,
		})
	}

	branding := nodes.NewMemoryBranding()
	for company, b := range ds.Branding {
		branding.Set(company, nodes.Branding{CompanyName: b.CompanyName, LogoPath: b.LogoPath, Colors: b.Colors, Currency: b.Currency})
	}

	documents := nodes.NewMemoryDocuments()
	for _, d := range ds.Documents {
		documents.Put(nodes.Document{ID: d.ID, Name: d.Name, ContentType: d.ContentType, Text: d.Text})
	}

	return nodes.Dependencies{
		Invoices:  invoices,
		Branding:  branding,
		Documents: documents,
	}, nil
}

func loadDatasetFile(path string) (nodes.Dependencies, error) {
	if path == "" {
		return nodes.Dependencies{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nodes.Dependencies{}, err
	}
	defer f.Close()

	return loadDataset(f)
}
