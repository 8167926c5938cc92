package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/localcache"
	"github.com/abm1119/bita/internal/testutil"
)

const testDay = "2024-03-15"

// createTestCache opens an in-memory badger cache wrapped for fault injection.
func createTestCache(t *testing.T) *testutil.FlakyCache {
	t.Helper()
	c, err := localcache.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return testutil.NewFlakyCache(c)
}

// createTestStore creates a store over a fresh cache with a fixed clock.
func createTestStore(t *testing.T, opts ...Option) (*Store, *testutil.FlakyCache) {
	t.Helper()
	cache := createTestCache(t)
	s := openTestStore(t, cache, opts...)
	return s, cache
}

func openTestStore(t *testing.T, cache localcache.Cache, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(testutil.NewFixedClockOn(testDay))}, opts...)
	s, err := Open(context.Background(), cache, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testVendor(id, name string) ledger.Vendor {
	return ledger.Vendor{ID: id, Name: name, ContactPerson: "Sam", Phone: "555-0100", Email: "sam@example.com"}
}

func testInvoice(id, vendorID string, total int64) ledger.Invoice {
	return ledger.Invoice{
		ID:            id,
		VendorID:      vendorID,
		InvoiceNumber: "INV-" + id,
		IssueDate:     ledger.MustParseDate("2024-03-01"),
		TotalAmount:   decimal.NewFromInt(total),
		PaidAmount:    decimal.Zero,
		Status:        ledger.StatusUnpaid,
		LineItems:     []ledger.LineItem{},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = id(item)
	}
	return out
}

func vendorIDs(vs []ledger.Vendor) []string {
	return ids(vs, func(v ledger.Vendor) string { return v.ID })
}

func invoiceIDs(is []ledger.Invoice) []string {
	return ids(is, func(i ledger.Invoice) string { return i.ID })
}
