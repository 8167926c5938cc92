package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/ledger"
)

const (
	// NewVendorName names a vendor created from a candidate without one.
	NewVendorName = "New Vendor"
	// NewVendorContact marks vendors created by extraction.
	NewVendorContact = "AI Identified"
	// DefaultCategory is used for line items the model left uncategorized.
	DefaultCategory = "General"
	// GeneratedNumberPrefix prefixes invoice numbers made up for candidates
	// without one.
	GeneratedNumberPrefix = "BITA-GEN-"
)

// Result is the ledger form of a candidate. When NewVendor is set the
// caller must store Vendor before Invoice.
type Result struct {
	Vendor    ledger.Vendor
	NewVendor bool
	Invoice   ledger.Invoice
}

// Build maps c onto an unpaid invoice.
//
// The vendor is matched by normalized name against vendors, exactly or by
// containment; otherwise a new vendor is proposed. Line subtotals are recomputed from quantity and
// unit price. The invoice total is taken as given and falls back to the
// sum of the lines only when the candidate has none.
func Build(c Candidate, vendors []ledger.Vendor, ids ledger.IDGenerator, clock ledger.Clock) (Result, error) {
	var res Result

	if v, ok := matchVendor(c.VendorName, vendors); ok {
		res.Vendor = v
	} else {
		name := strings.TrimSpace(c.VendorName)
		if name == "" {
			name = NewVendorName
		}
		res.Vendor = ledger.Vendor{ID: ids.Generate(), Name: name, ContactPerson: NewVendorContact}
		res.NewVendor = true
	}

	today := ledger.Today(clock)
	issued := today
	if s := strings.TrimSpace(c.IssueDate); s != "" {
		d, err := ledger.ParseDate(s)
		if err != nil {
			return Result{}, fmt.Errorf("%w: issueDate: %v", ErrSchema, err)
		}
		issued = d
	}

	number := strings.TrimSpace(c.InvoiceNumber)
	if number == "" {
		number = fmt.Sprintf("%s%d", GeneratedNumberPrefix, clock.Now().UnixMilli())
	}

	items := make([]ledger.LineItem, 0, len(c.LineItems))
	for _, line := range c.LineItems {
		category := strings.TrimSpace(line.Category)
		if category == "" {
			category = DefaultCategory
		}
		items = append(items, ledger.LineItem{
			ID:        ids.Generate(),
			Name:      strings.TrimSpace(line.Name),
			Category:  category,
			Quantity:  valueOr(line.Quantity, decimal.Zero),
			UnitPrice: valueOr(line.UnitPrice, decimal.Zero),
		})
	}

	inv := ledger.NewInvoice(ids.Generate(), res.Vendor.ID, number, issued, items)
	if c.TotalAmount.Valid {
		inv.TotalAmount = c.TotalAmount.Decimal
	}
	inv.Normalize(today)
	res.Invoice = inv

	return res, nil
}

// matchVendor prefers a vendor whose normalized name equals name. Failing
// that it takes the first vendor whose name contains name or is contained
// in it.
func matchVendor(name string, vendors []ledger.Vendor) (ledger.Vendor, bool) {
	key := ledger.NormalizeName(name)
	if key == "" {
		return ledger.Vendor{}, false
	}

	partial := -1
	for i, v := range vendors {
		other := ledger.NormalizeName(v.Name)
		if other == "" {
			continue
		}
		if other == key {
			return v, true
		}
		if partial < 0 && (strings.Contains(other, key) || strings.Contains(key, other)) {
			partial = i
		}
	}
	if partial < 0 {
		return ledger.Vendor{}, false
	}
	return vendors[partial], true
}

func valueOr(d decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if !d.Valid {
		return fallback
	}
	return d.Decimal
}
