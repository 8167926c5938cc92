package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/localcache"
)

func TestUpsertVendor_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	require.NoError(t, s.UpsertVendor(ctx, testVendor("v1", "Acme")))
	updated := testVendor("v1", "Acme Flour Co")
	updated.Phone = "555-0199"
	require.NoError(t, s.UpsertVendor(ctx, updated))

	vendors, err := s.ListVendors(ctx)
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, updated, vendors[0])
}

func TestUpsertVendor_ValidationRejectsBeforeWrite(t *testing.T) {
	ctx := context.Background()
	s, cache := createTestStore(t)
	saves := cache.SaveCalls()

	err := s.UpsertVendor(ctx, ledger.Vendor{ID: "v1", Name: "   "})
	require.Error(t, err)
	assert.True(t, ledger.IsValidation(err))
	assert.Equal(t, saves, cache.SaveCalls())

	vendors, _ := s.ListVendors(ctx)
	assert.Empty(t, vendors)
}

func TestUpsertInvoice_NormalizesDerivedFields(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	inv := testInvoice("i1", "v1", 100)
	inv.PaidAmount = dec("40")
	inv.Status = ledger.StatusPaid // wrong, must be re-derived
	paid := ledger.MustParseDate("2024-03-02")
	inv.PaymentDate = &paid
	inv.LineItems = []ledger.LineItem{
		{ID: "l1", Name: "Flour", Category: "Dry", Quantity: dec("2"), UnitPrice: dec("12.5"), Subtotal: dec("999")},
	}

	stored, err := s.UpsertInvoice(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, stored.Status)
	assert.Nil(t, stored.PaymentDate)
	assert.True(t, stored.LineItems[0].Subtotal.Equal(dec("25")))

	// The caller's slice is not modified.
	assert.True(t, inv.LineItems[0].Subtotal.Equal(dec("999")))

	// The total is stored as given, not recomputed from line items.
	got, err := s.Invoice(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("100")))
	assert.Equal(t, ledger.StatusPartial, got.Status)
	assert.True(t, got.LineItems[0].Subtotal.Equal(dec("25")))
}

func TestUpsertInvoice_PaidGetsTodayWhenNoDate(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	inv := testInvoice("i1", "v1", 100)
	inv.PaidAmount = dec("100")

	stored, err := s.UpsertInvoice(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, stored.Status)
	require.NotNil(t, stored.PaymentDate)
	assert.Equal(t, testDay, stored.PaymentDate.String())
}

func TestUpsertInvoice_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	inv := testInvoice("i1", "v1", 100)
	inv.TotalAmount = dec("-1")
	_, err := s.UpsertInvoice(ctx, inv)
	assert.True(t, ledger.IsValidation(err))

	_, err = s.UpsertInvoice(ctx, ledger.Invoice{})
	assert.True(t, ledger.IsValidation(err))
}

func TestDeleteVendor_CascadesInvoices(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	require.NoError(t, s.UpsertVendor(ctx, testVendor("v1", "Acme")))
	require.NoError(t, s.UpsertVendor(ctx, testVendor("v2", "Globex")))
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.UpsertInvoice(ctx, testInvoice(id, "v1", 10))
		require.NoError(t, err)
	}
	_, err := s.UpsertInvoice(ctx, testInvoice("d", "v2", 10))
	require.NoError(t, err)

	require.NoError(t, s.DeleteVendor(ctx, "v1"))

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	for _, inv := range invoices {
		assert.NotEqual(t, "v1", inv.VendorID)
	}
	assert.Equal(t, []string{"d"}, invoiceIDs(invoices))

	vendors, err := s.ListVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, vendorIDs(vendors))
}

func TestDeleteVendor_CascadeIsOneSave(t *testing.T) {
	ctx := context.Background()
	s, cache := createTestStore(t)
	require.NoError(t, s.UpsertVendor(ctx, testVendor("v1", "Acme")))
	_, err := s.UpsertInvoice(ctx, testInvoice("i1", "v1", 10))
	require.NoError(t, err)
	_, err = s.UpsertInvoice(ctx, testInvoice("i2", "v1", 10))
	require.NoError(t, err)

	before := cache.SaveCalls()
	require.NoError(t, s.DeleteVendor(ctx, "v1"))
	assert.Equal(t, before+1, cache.SaveCalls())
}

func TestDelete_UnknownIDIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	assert.NoError(t, s.DeleteVendor(ctx, "nope"))
	assert.NoError(t, s.DeleteInvoice(ctx, "nope"))
}

func TestSetInvoicePayment_StatusDerivation(t *testing.T) {
	tests := []struct {
		name       string
		paid       string
		wantStatus ledger.PaymentStatus
		wantDate   bool
	}{
		{"zero", "0", ledger.StatusUnpaid, false},
		{"partial", "250.50", ledger.StatusPartial, false},
		{"exact", "1000", ledger.StatusPaid, true},
		{"overpaid", "1200", ledger.StatusPaid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := createTestStore(t)
			_, err := s.UpsertInvoice(ctx, testInvoice("i1", "v1", 1000))
			require.NoError(t, err)

			got, err := s.SetInvoicePayment(ctx, "i1", dec(tt.paid), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantDate, got.PaymentDate != nil)

			stored, err := s.Invoice(ctx, "i1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.True(t, stored.PaidAmount.Equal(dec(tt.paid)))
			assert.Equal(t, tt.wantDate, stored.PaymentDate != nil)
			if tt.wantDate {
				assert.Equal(t, testDay, stored.PaymentDate.String())
			}
		})
	}
}

func TestSetInvoicePayment_ExplicitDateAndReversal(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	_, err := s.UpsertInvoice(ctx, testInvoice("i1", "v1", 100))
	require.NoError(t, err)

	date := ledger.MustParseDate("2024-03-10")
	got, err := s.SetInvoicePayment(ctx, "i1", dec("100"), &date)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentDate)
	assert.Equal(t, "2024-03-10", got.PaymentDate.String())

	// Leaving Paid clears the date.
	got, err = s.SetInvoicePayment(ctx, "i1", dec("60"), nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, got.Status)
	assert.Nil(t, got.PaymentDate)

	stored, err := s.Invoice(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, stored.PaymentDate)
}

func TestSetInvoicePayment_NotFound(t *testing.T) {
	ctx := context.Background()
	s, cache := createTestStore(t)
	saves := cache.SaveCalls()

	_, err := s.SetInvoicePayment(ctx, "missing", dec("1"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, saves, cache.SaveCalls())
}

func TestSetInvoicePayment_NegativeRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)
	_, err := s.UpsertInvoice(ctx, testInvoice("i1", "v1", 100))
	require.NoError(t, err)

	_, err = s.SetInvoicePayment(ctx, "i1", dec("-5"), nil)
	assert.True(t, ledger.IsValidation(err))
}

func TestMutation_SaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	s, cache := createTestStore(t)

	cache.FailSaves(true)
	err := s.UpsertVendor(ctx, testVendor("v1", "Acme"))
	require.Error(t, err)
	assert.True(t, localcache.IsLocalStorage(err))

	// Reads keep serving the in-memory state.
	vendors, err := s.ListVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, vendorIDs(vendors))

	// The next mutation saves everything once storage recovers.
	cache.FailSaves(false)
	require.NoError(t, s.UpsertVendor(ctx, testVendor("v2", "Globex")))

	reopened := openTestStore(t, cache)
	vendors, err = reopened.ListVendors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, vendorIDs(vendors))
}

func TestMutation_ConcurrentWritersAllPersist(t *testing.T) {
	ctx := context.Background()
	s, cache := createTestStore(t)
	const writers = 20

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			v := testVendor(string(rune('a'+i)), "Vendor")
			if err := s.UpsertVendor(ctx, v); err != nil {
				t.Errorf("UpsertVendor(%d): %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// The last save holds every write.
	reopened := openTestStore(t, cache)
	vendors, err := reopened.ListVendors(ctx)
	require.NoError(t, err)
	assert.Len(t, vendors, writers)
}

func TestScenario_PayThenDeleteVendor(t *testing.T) {
	ctx := context.Background()
	s, _ := createTestStore(t)

	require.NoError(t, s.UpsertVendor(ctx, ledger.Vendor{ID: "v1", Name: "Acme Flour"}))
	_, err := s.UpsertInvoice(ctx, testInvoice("i1", "v1", 1000))
	require.NoError(t, err)
	_, err = s.SetInvoicePayment(ctx, "i1", dec("1000"), nil)
	require.NoError(t, err)

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, ledger.StatusPaid, invoices[0].Status)
	require.NotNil(t, invoices[0].PaymentDate)
	assert.Equal(t, testDay, invoices[0].PaymentDate.String())

	require.NoError(t, s.DeleteVendor(ctx, "v1"))
	invoices, err = s.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}
