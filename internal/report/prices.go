package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/ledger"
)

// Trend is the direction of the latest price change of an item.
type Trend string

const (
	TrendIncrease Trend = "Increase"
	TrendDrop     Trend = "Drop"
	TrendStable   Trend = "Stable"
)

// PricePoint is the unit price of an item on one invoice.
type PricePoint struct {
	Date      ledger.Date     `json:"date" yaml:"date"`
	UnitPrice decimal.Decimal `json:"unitPrice" yaml:"unitPrice"`
	Vendor    string          `json:"vendor" yaml:"vendor"`
	InvoiceID string          `json:"invoiceId" yaml:"invoiceId"`
}

// ItemHistory is the price timeline of one purchased item.
type ItemHistory struct {
	// Key is the normalized item name the points are grouped by.
	Key string `json:"key" yaml:"key"`
	// Name is the spelling seen on the earliest point.
	Name     string          `json:"name" yaml:"name"`
	Points   []PricePoint    `json:"points" yaml:"points"`
	Latest   decimal.Decimal `json:"latest" yaml:"latest"`
	Previous decimal.Decimal `json:"previous" yaml:"previous"`
	Change   decimal.Decimal `json:"change" yaml:"change"`
	Trend    Trend           `json:"trend" yaml:"trend"`
}

// PriceHistory groups every line item by normalized name and orders each
// group by invoice issue date. Only items whose key contains the
// normalized filter are returned; an empty filter matches everything.
// Results are sorted by key.
func PriceHistory(vendors []ledger.Vendor, invoices []ledger.Invoice, filter string) []ItemHistory {
	filter = ledger.NormalizeName(filter)

	type group struct {
		names  []string
		points []PricePoint
	}
	groups := make(map[string]*group)

	for _, inv := range invoices {
		vendor := ledger.VendorName(vendors, inv.VendorID)
		for _, item := range inv.LineItems {
			key := ledger.NormalizeName(item.Name)
			if key == "" || !strings.Contains(key, filter) {
				continue
			}
			g, ok := groups[key]
			if !ok {
				g = &group{}
				groups[key] = g
			}
			g.names = append(g.names, strings.TrimSpace(item.Name))
			g.points = append(g.points, PricePoint{
				Date:      inv.IssueDate,
				UnitPrice: item.UnitPrice,
				Vendor:    vendor,
				InvoiceID: inv.ID,
			})
		}
	}

	out := make([]ItemHistory, 0, len(groups))
	for key, g := range groups {
		idx := make([]int, len(g.points))
		for i := range idx {
			idx[i] = i
		}
		slices.SortStableFunc(idx, func(a, b int) int {
			return g.points[a].Date.Time().Compare(g.points[b].Date.Time())
		})

		h := ItemHistory{Key: key, Name: g.names[idx[0]], Points: make([]PricePoint, len(idx))}
		for i, j := range idx {
			h.Points[i] = g.points[j]
		}

		n := len(h.Points)
		h.Latest = h.Points[n-1].UnitPrice
		h.Previous = h.Latest
		if n > 1 {
			h.Previous = h.Points[n-2].UnitPrice
		}
		h.Change = h.Latest.Sub(h.Previous)
		switch h.Change.Sign() {
		case 1:
			h.Trend = TrendIncrease
		case -1:
			h.Trend = TrendDrop
		default:
			h.Trend = TrendStable
		}
		out = append(out, h)
	}

	slices.SortFunc(out, func(a, b ItemHistory) int { return cmp.Compare(a.Key, b.Key) })
	return out
}
