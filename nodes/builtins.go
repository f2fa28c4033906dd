package nodes

import (
	"fmt"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/logging"
	"github.com/hupe1980/reportgraph/registry"
	"github.com/hupe1980/reportgraph/tool"
)

// Dependencies are the data sources used by the built-in nodes. Nil sources
// are replaced by empty in-memory ones.
type Dependencies struct {
	Invoices  InvoiceSource
	Branding  BrandingSource
	Documents DocumentSource
	Logger    logging.Logger
	// Now supplies the default as-of date and report timestamps.
	Now func() time.Time
}

// Library holds the built-in financial and document node implementations.
type Library struct {
	invoices  InvoiceSource
	branding  BrandingSource
	documents DocumentSource
	logger    logging.Logger
	now       func() time.Time
}

// New creates a Library over deps.
func New(deps Dependencies) *Library {
	l := &Library{
		invoices:  deps.Invoices,
		branding:  deps.Branding,
		documents: deps.Documents,
		logger:    logging.OrNoOp(deps.Logger),
		now:       deps.Now,
	}

	if l.invoices == nil {
		l.invoices = NewMemoryInvoices()
	}

	if l.branding == nil {
		l.branding = NewMemoryBranding()
	}

	if l.documents == nil {
		l.documents = NewMemoryDocuments()
	}

	if l.now == nil {
		l.now = time.Now
	}

	return l
}

type builtin struct {
	typ      string
	handler  core.Handler
	metadata registry.Metadata
}

func (l *Library) builtins() []builtin {
	return []builtin{
		{TypeBrandingLoader, core.AgentFunc(l.brandingLoader), registry.Metadata{
			Capabilities: []string{"branding", "data_fetching"},
			Description:  "Load company branding into the execution data",
		}},
		{TypeInvoiceFetch, core.AgentFunc(l.invoiceFetch), registry.Metadata{
			Capabilities: []string{"data_fetching"},
			Description:  "Fetch purchase or sales invoices",
		}},
		{TypeAgingCalculator, core.AgentFunc(l.agingCalculator), registry.Metadata{
			Capabilities: []string{"calculation", "aging"},
			Description:  "Compute outstanding amounts and aging buckets",
		}},
		{TypeAgingReport, core.AgentFunc(l.agingReport), registry.Metadata{
			Capabilities: []string{"reporting", "excel_generation"},
			Description:  "Group aged invoices into a report",
		}},
		{TypeOutstandingCalculator, core.AgentFunc(l.outstandingCalculator), registry.Metadata{
			Capabilities: []string{"calculation", "outstanding"},
			Description:  "Keep open invoices and summarize their payment state",
		}},
		{TypeRegisterReport, core.AgentFunc(l.registerReport), registry.Metadata{
			Capabilities: []string{"reporting"},
			Description:  "List open invoices as a register",
		}},
		{TypeBrandingApplier, core.StateFunc(l.brandingApplier), registry.Metadata{
			Capabilities: []string{"branding"},
			Description:  "Apply company branding to the generated report",
		}},
		{TypeDocumentProcessing, l.documentTool().Handler(), registry.Metadata{
			Capabilities: []string{"document_processing"},
			Description:  "Load an uploaded document",
		}},
		{TypeDataExtraction, core.AgentFunc(l.dataExtraction), registry.Metadata{
			Capabilities: []string{"data_extraction"},
			Description:  "Extract labelled fields from a document",
		}},
		{TypeInvoiceValidation, core.AgentFunc(l.invoiceValidation), registry.Metadata{
			Capabilities: []string{"validation"},
			Description:  "Validate extracted invoice fields",
		}},
		{TypeState, tool.NewStateTool().Handler(), registry.Metadata{
			Capabilities: []string{"state"},
			Description:  "Copy, set or default values of the shared data",
		}},
	}
}

// Register adds every built-in node type to r.
func (l *Library) Register(r *registry.Registry) error {
	for _, b := range l.builtins() {
		h := b.handler
		ctor := func(map[string]any) (core.Handler, error) { return h, nil }

		if err := r.RegisterNode(b.typ, ctor, b.metadata); err != nil {
			return fmt.Errorf("register %s: %w", b.typ, err)
		}
	}

	return nil
}

// RegisterBuiltins registers the built-in library over deps with r.
func RegisterBuiltins(r *registry.Registry, deps Dependencies) error {
	return New(deps).Register(r)
}
