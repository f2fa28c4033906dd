package testutil

import (
	"time"

	"github.com/hupe1980/reportgraph/nodes"
)

// AsOf is the reference date of the fixtures.
var AsOf = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}

	return d
}

// Invoices returns the invoice book of company c1: three open purchase
// invoices worth 1600 outstanding and one sales invoice.
func Invoices() *nodes.MemoryInvoices {
	return nodes.NewMemoryInvoices(
		nodes.Invoice{ID: "1", Number: "P-001", Party: "Globex", Category: nodes.CategoryPurchase, CompanyID: "c1",
			Date: day("2024-06-10"), DueDate: day("2024-07-10"), Amount: 1000, PaidAmount: 200, Currency: "EUR"},
		nodes.Invoice{ID: "2", Number: "P-002", Party: "Acme", Category: nodes.CategoryPurchase, CompanyID: "c1",
			Date: day("2024-04-20"), DueDate: day("2024-05-20"), Amount: 500, Currency: "EUR"},
		nodes.Invoice{ID: "3", Number: "P-003", Party: "Acme", Category: nodes.CategoryPurchase, CompanyID: "c1",
			Date: day("2024-01-15"), Amount: 300, Currency: "EUR"},
		nodes.Invoice{ID: "4", Number: "S-001", Party: "Initech", Category: nodes.CategorySales, CompanyID: "c1",
			Date: day("2024-06-01"), Amount: 999, Currency: "EUR"},
	)
}

// Dependencies returns in-memory sources for company c1 with the clock
// fixed at AsOf.
func Dependencies() nodes.Dependencies {
	branding := nodes.NewMemoryBranding()
	branding.Set("c1", nodes.Branding{CompanyName: "Acme Holdings", Currency: "EUR"})

	return nodes.Dependencies{
		Invoices: Invoices(),
		Branding: branding,
		Documents: nodes.NewMemoryDocuments(nodes.Document{
			ID:          "d1",
			Name:        "invoice.txt",
			ContentType: "text/plain",
			Text:        "Invoice No: INV-9\nDate: 2024-05-01\nTotal: 1,250.50\nVendor: Globex\n",
		}),
		Now: func() time.Time { return AsOf },
	}
}
