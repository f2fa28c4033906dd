package nodes

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/reportgraph/core"
	"github.com/hupe1980/reportgraph/internal/util"
)

// Invoice categories.
const (
	CategoryPurchase = "purchase"
	CategorySales    = "sales"
)

// Invoice is a purchase or sales invoice.
type Invoice struct {
	ID         string    `json:"id"`
	Number     string    `json:"invoice_number"`
	Party      string    `json:"party"`
	Category   string    `json:"category"`
	CompanyID  string    `json:"company_id"`
	Date       time.Time `json:"invoice_date"`
	DueDate    time.Time `json:"due_date"`
	Amount     float64   `json:"amount"`
	Tax        float64   `json:"tax_amount"`
	PaidAmount float64   `json:"paid_amount"`
	Currency   string    `json:"currency"`
}

// Outstanding is the unpaid part of the invoice.
func (i Invoice) Outstanding() float64 { return i.Amount - i.PaidAmount }

// Record returns the invoice as a state record. Dates are ISO dates so the
// record survives JSON checkpoints unchanged.
func (i Invoice) Record() map[string]any {
	r := map[string]any{
		"id":             i.ID,
		"invoice_number": i.Number,
		"party":          i.Party,
		"category":       i.Category,
		"company_id":     i.CompanyID,
		"invoice_date":   i.Date.Format(time.DateOnly),
		"amount":         i.Amount,
		"tax_amount":     i.Tax,
		"paid_amount":    i.PaidAmount,
		"currency":       i.Currency,
	}

	if !i.DueDate.IsZero() {
		r["due_date"] = i.DueDate.Format(time.DateOnly)
	}

	return r
}

// InvoiceFilter selects invoices. Zero fields match everything.
type InvoiceFilter struct {
	CompanyID string
	Category  string
	From      time.Time
	To        time.Time
}

// FilterFromParams builds a filter from a node "filters" param.
func FilterFromParams(filters map[string]any) (InvoiceFilter, error) {
	f := InvoiceFilter{
		CompanyID: util.ToString(filters["company_id"]),
		Category:  util.ToString(filters["category"]),
	}

	if v, ok := filters["from"]; ok {
		d, err := util.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.From = d
	}

	if v, ok := filters["to"]; ok {
		d, err := util.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.To = d
	}

	return f, nil
}

// Match reports whether inv passes the filter.
func (f InvoiceFilter) Match(inv Invoice) bool {
	if f.CompanyID != "" && inv.CompanyID != f.CompanyID {
		return false
	}

	if f.Category != "" && !strings.EqualFold(inv.Category, f.Category) {
		return false
	}

	if !f.From.IsZero() && inv.Date.Before(f.From) {
		return false
	}

	if !f.To.IsZero() && inv.Date.After(f.To) {
		return false
	}

	return true
}

// InvoiceSource loads invoices.
type InvoiceSource interface {
	Invoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
}

// Branding is the visual identity of a company.
type Branding struct {
	CompanyName string            `json:"company_name"`
	LogoPath    string            `json:"logo_path,omitempty"`
	Colors      map[string]string `json:"colors,omitempty"`
	Currency    string            `json:"currency,omitempty"`
}

// Record returns the branding as a state record.
func (b Branding) Record() map[string]any {
	colors := make(map[string]any, len(b.Colors))
	for k, v := range b.Colors {
		colors[k] = v
	}

	return map[string]any{
		"company_name": b.CompanyName,
		"logo_path":    b.LogoPath,
		"colors":       colors,
		"currency":     b.Currency,
	}
}

// BrandingSource loads company branding.
type BrandingSource interface {
	Branding(ctx context.Context, companyID string) (Branding, error)
}

// Document is an uploaded source document.
type Document struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Text        string `json:"text"`
}

// DocumentSource loads uploaded documents.
type DocumentSource interface {
	Document(ctx context.Context, id string) (Document, error)
}

// MemoryInvoices is an in-memory InvoiceSource.
type MemoryInvoices struct {
	mu       sync.RWMutex
	invoices []Invoice
}

// NewMemoryInvoices creates a source holding invoices.
func NewMemoryInvoices(invoices ...Invoice) *MemoryInvoices {
	return &MemoryInvoices{invoices: append([]Invoice(nil), invoices...)}
}

// Add appends invoices.
func (m *MemoryInvoices) Add(invoices ...Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.invoices = append(m.invoices, invoices...)
}

// Invoices returns the matching invoices ordered by date, then number.
func (m *MemoryInvoices) Invoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		if filter.Match(inv) {
			out = append(out, inv)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Number < out[j].Number
	})

	return out, nil
}

// MemoryBranding is an in-memory BrandingSource.
type MemoryBranding struct {
	mu       sync.RWMutex
	branding map[string]Branding
}

// NewMemoryBranding creates an empty branding source.
func NewMemoryBranding() *MemoryBranding {
	return &MemoryBranding{branding: make(map[string]Branding)}
}

// Set stores the branding of a company.
func (m *MemoryBranding) Set(companyID string, b Branding) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.branding[companyID] = b
}

// Branding returns the branding of a company.
func (m *MemoryBranding) Branding(_ context.Context, companyID string) (Branding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.branding[companyID]
	if !ok {
		return Branding{}, &core.NotFoundError{Kind: "company", Name: companyID}
	}

	return b, nil
}

// MemoryDocuments is an in-memory DocumentSource.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryDocuments creates a source holding docs.
func NewMemoryDocuments(docs ...Document) *MemoryDocuments {
	m := &MemoryDocuments{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		m.docs[d.ID] = d
	}

	return m
}

// Put stores a document.
func (m *MemoryDocuments) Put(doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[doc.ID] = doc
}

// Document returns a document by id.
func (m *MemoryDocuments) Document(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[id]
	if !ok {
		return Document{}, &core.NotFoundError{Kind: "document", Name: id}
	}

	return d, nil
}
