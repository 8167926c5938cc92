package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/ledger"
)

// lineItemRecord is the stored JSON shape of a line item. Numbers are plain
// JSON numbers, as in snapshots written by earlier releases.
type lineItemRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Total     float64 `json:"total"`
}

// marshalLineItems converts line items to the JSON TEXT stored in the
// lineItems column. Order is preserved.
func marshalLineItems(items []ledger.LineItem) (string, error) {
	records := make([]lineItemRecord, len(items))
	for i, item := range items {
		records[i] = lineItemRecord{
			ID:        item.ID,
			Name:      item.Name,
			Category:  item.Category,
			Quantity:  amount(item.Quantity),
			UnitPrice: amount(item.UnitPrice),
			Total:     amount(item.Subtotal),
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal line items: %w", err)
	}
	return string(data), nil
}

// unmarshalLineItems parses the lineItems column. An empty or null column
// yields an empty slice.
func unmarshalLineItems(text string) ([]ledger.LineItem, error) {
	if text == "" || text == "null" {
		return []ledger.LineItem{}, nil
	}

	var records []lineItemRecord
	if err := json.Unmarshal([]byte(text), &records); err != nil {
		return nil, fmt.Errorf("unmarshal line items: %w", err)
	}

	items := make([]ledger.LineItem, len(records))
	for i, r := range records {
		items[i] = ledger.LineItem{
			ID:        r.ID,
			Name:      r.Name,
			Category:  r.Category,
			Quantity:  decimal.NewFromFloat(r.Quantity),
			UnitPrice: decimal.NewFromFloat(r.UnitPrice),
			Subtotal:  decimal.NewFromFloat(r.Total),
		}
	}
	return items, nil
}

// amount converts d for a REAL column.
func amount(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// decimalFrom converts a REAL column value. NULL reads as zero.
func decimalFrom(f sql.NullFloat64) decimal.Decimal {
	if !f.Valid {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f.Float64)
}
