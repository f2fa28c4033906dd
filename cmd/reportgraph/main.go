// Command reportgraph plans and executes a financial report workflow from
// a natural language query.
//
//	reportgraph -query "Generate AP aging report" -type ap_aging -company c1 -data data.yaml
//
// Configuration is read from an optional YAML file, a .env file and
// REPORTGRAPH_* environment variables. With -spec the given graph spec is
// executed instead of a synthesized plan. The result is printed as JSON,
// or as a summary with -format text. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/reportgraph"
	"github.com/hupe1980/reportgraph/agent"
	"github.com/hupe1980/reportgraph/config"
	"github.com/hupe1980/reportgraph/engine"
	"github.com/hupe1980/reportgraph/graph"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "reportgraph:", err)
		}

		os.Exit(1)
	}
}

type cliFlags struct {
	config   string
	query    string
	hint     string
	input    string
	spec     string
	company  string
	user     string
	asOf     string
	document string
	data     string
	format   string
	profiles bool
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, error) {
	var f cliFlags

	fs := flag.NewFlagSet("reportgraph", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "path to a YAML config file")
	fs.StringVar(&f.query, "query", "", "natural language report request")
	fs.StringVar(&f.hint, "type", "", "report type hint, e.g. ap_aging or document_processing")
	fs.StringVar(&f.input, "input", "", "JSON or YAML file with the request input")
	fs.StringVar(&f.spec, "spec", "", "JSON or YAML graph spec to execute instead of a plan")
	fs.StringVar(&f.company, "company", "", "company id")
	fs.StringVar(&f.user, "user", "", "user id")
	fs.StringVar(&f.asOf, "as-of", "", "as-of date (YYYY-MM-DD)")
	fs.StringVar(&f.document, "document", "", "document id for document processing")
	fs.StringVar(&f.data, "data", "", "YAML dataset of invoices, branding and documents")
	fs.StringVar(&f.format, "format", "json", "output format: json or text")
	fs.BoolVar(&f.profiles, "profiles", false, "list the agent profiles and exit")

	if err := fs.Parse(args); err != nil {
		return f, err
	}

	if !f.profiles && f.spec == "" && strings.TrimSpace(f.query) == "" {
		fs.Usage()
		return f, errors.New("-query or -spec is required")
	}

	return f, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if f.profiles {
		return printProfiles(stdout)
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}

	client, err := newClient(cfg.LLM)
	if err != nil {
		return err
	}

	store, closeStore, err := newCheckpointStore(ctx, cfg.Checkpoint)
	if err != nil {
		return err
	}
	defer closeStore()

	deps, err := loadDatasetFile(f.data)
	if err != nil {
		return err
	}

	rg, err := reportgraph.New(func(o *reportgraph.Options) {
		o.Client = client
		o.Temperature = cfg.LLM.Temperature
		o.EngineConfig = engineConfig(cfg.Engine)
		o.Dependencies = deps
		o.Checkpoints = store
		o.Logger = logger
		o.Telemetry = newTelemetry()
	})
	if err != nil {
		return err
	}

	input, err := f.requestInput()
	if err != nil {
		return err
	}

	var res *reportgraph.RunResult
	if f.spec != "" {
		res, err = runSpec(ctx, rg, f.spec, f.query, input)
	} else {
		res, err = rg.Run(ctx, f.query, f.hint, input)
	}

	if err != nil {
		return err
	}

	if err := writeResult(stdout, res, strings.ToLower(f.format)); err != nil {
		return err
	}

	if res.Error != "" {
		return fmt.Errorf("session %s %s: %s", res.SessionID, res.Status, res.Error)
	}

	return nil
}

// requestInput reads the -input file and overlays the id and date flags.
func (f cliFlags) requestInput() (map[string]any, error) {
	input := map[string]any{}

	if f.input != "" {
		raw, err := os.ReadFile(f.input)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(raw, &input); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}

		if input == nil {
			input = map[string]any{}
		}
	}

	for k, v := range map[string]string{
		"company_id":  f.company,
		"user_id":     f.user,
		"as_of_date":  f.asOf,
		"document_id": f.document,
	} {
		if v != "" {
			input[k] = v
		}
	}

	return input, nil
}

// runSpec executes a graph spec file through the engine.
func runSpec(ctx context.Context, rg *reportgraph.ReportGraph, path, query string, input map[string]any) (*reportgraph.RunResult, error) {
	spec, err := graph.LoadSpecFile(path)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	res, err := rg.Engine().Execute(ctx, engine.Request{
		Spec:    &spec,
		Input:   input,
		Context: map[string]any{"query": query, "strategy": strategySpec},
	})
	if err != nil {
		return nil, err
	}

	return &reportgraph.RunResult{
		Result:         res,
		Steps:          spec.NodeNames(),
		Strategy:       strategySpec,
		ProcessingTime: time.Since(start),
	}, nil
}

const strategySpec = "spec"

func writeResult(w io.Writer, res *reportgraph.RunResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(res)
	}

	fmt.Fprintf(w, "session   %s\n", res.SessionID)
	fmt.Fprintf(w, "status    %s\n", res.Status)
	fmt.Fprintf(w, "strategy  %s\n", res.Strategy)
	fmt.Fprintf(w, "steps     %s\n", strings.Join(res.Steps, " -> "))
	fmt.Fprintf(w, "duration  %s\n", res.ProcessingTime.Round(time.Millisecond))

	if res.Error != "" {
		fmt.Fprintf(w, "error     %s\n", res.Error)
	}

	fmt.Fprintln(w, "\nhistory")

	for _, h := range res.History {
		line := fmt.Sprintf("  %-20s %s", h.Node, h.Status)
		if h.Error != "" {
			line += "  " + h.Error
		}

		fmt.Fprintln(w, line)
	}

	keys := make([]string, 0, len(res.Data))
	for k := range res.Data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	fmt.Fprintln(w, "\nresult")

	for _, k := range keys {
		raw, err := json.Marshal(res.Data[k])
		if err != nil {
			raw = []byte(fmt.Sprint(res.Data[k]))
		}

		if len(raw) > 120 {
			raw = append(raw[:117], "..."...)
		}

		fmt.Fprintf(w, "  %-20s %s\n", k, raw)
	}

	return nil
}

func printProfiles(w io.Writer) error {
	for _, name := range agent.ProfileNames() {
		cfg, _ := agent.Profile(name, "")

		types := make([]string, 0, len(cfg.Capabilities))
		for _, c := range cfg.Capabilities {
			types = append(types, c.Type)
		}

		if _, err := fmt.Fprintf(w, "%-16s %s [%s]\n", name, cfg.Description, strings.Join(types, ", ")); err != nil {
			return err
		}
	}

	return nil
}
