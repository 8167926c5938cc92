package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name  string
		paid  string
		total string
		want  PaymentStatus
	}{
		{"nothing paid", "0", "1000", StatusUnpaid},
		{"part paid", "250.50", "1000", StatusPartial},
		{"just under", "999.99", "1000", StatusPartial},
		{"exactly paid", "1000", "1000", StatusPaid},
		{"overpaid", "1200", "1000", StatusPaid},
		{"zero total unpaid", "0", "0", StatusUnpaid},
		{"zero total paid", "5", "0", StatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(dec(tt.paid), dec(tt.total)))
		})
	}
}

func TestApplyPayment_DateOnlyWhenPaid(t *testing.T) {
	today := NewDate(2025, 3, 14)

	for _, paid := range []string{"0", "400", "1000", "1500"} {
		t.Run(paid, func(t *testing.T) {
			inv := Invoice{TotalAmount: dec("1000"), Status: StatusUnpaid}
			inv.ApplyPayment(dec(paid), nil, today)

			assert.Equal(t, DeriveStatus(dec(paid), dec("1000")), inv.Status)
			if inv.Status == StatusPaid {
				require.NotNil(t, inv.PaymentDate)
				assert.Equal(t, "2025-03-14", inv.PaymentDate.String())
			} else {
				assert.Nil(t, inv.PaymentDate)
			}
		})
	}
}

func TestApplyPayment_ExplicitDate(t *testing.T) {
	inv := Invoice{TotalAmount: dec("100")}
	given := NewDate(2025, 1, 2)

	inv.ApplyPayment(dec("100"), &given, NewDate(2025, 3, 14))

	require.NotNil(t, inv.PaymentDate)
	assert.Equal(t, "2025-01-02", inv.PaymentDate.String())
}

func TestApplyPayment_LeavingPaidClearsDate(t *testing.T) {
	paidOn := NewDate(2025, 1, 2)
	inv := Invoice{TotalAmount: dec("100"), PaidAmount: dec("100"), Status: StatusPaid, PaymentDate: &paidOn}

	inv.ApplyPayment(dec("40"), nil, NewDate(2025, 3, 14))

	assert.Equal(t, StatusPartial, inv.Status)
	assert.Nil(t, inv.PaymentDate)
}

func TestApplyPayment_StayingPaidKeepsDate(t *testing.T) {
	paidOn := NewDate(2025, 1, 2)
	inv := Invoice{TotalAmount: dec("100"), PaidAmount: dec("100"), Status: StatusPaid, PaymentDate: &paidOn}

	inv.ApplyPayment(dec("120"), nil, NewDate(2025, 3, 14))

	require.NotNil(t, inv.PaymentDate)
	assert.Equal(t, "2025-01-02", inv.PaymentDate.String())
}

func TestNewInvoice_TotalsFromLines(t *testing.T) {
	inv := NewInvoice("i1", "v1", "INV-1", NewDate(2025, 3, 1), []LineItem{
		{ID: "l1", Name: "Flour", Quantity: dec("2"), UnitPrice: dec("450.25"), Subtotal: dec("1")},
		{ID: "l2", Name: "Sugar", Quantity: dec("3"), UnitPrice: dec("100")},
	})

	assert.True(t, dec("900.5").Equal(inv.LineItems[0].Subtotal), "subtotal recomputed: %s", inv.LineItems[0].Subtotal)
	assert.True(t, dec("1200.5").Equal(inv.TotalAmount), "total: %s", inv.TotalAmount)
	assert.Equal(t, StatusUnpaid, inv.Status)
	assert.True(t, inv.PaidAmount.IsZero())
}

func TestNormalize_KeepsTotal(t *testing.T) {
	inv := NewInvoice("i1", "v1", "INV-1", NewDate(2025, 3, 1), []LineItem{
		{ID: "l1", Quantity: dec("1"), UnitPrice: dec("100")},
	})
	inv.LineItems[0].Quantity = dec("5")

	inv.Normalize(NewDate(2025, 3, 14))

	assert.True(t, dec("500").Equal(inv.LineItems[0].Subtotal))
	assert.True(t, dec("100").Equal(inv.TotalAmount), "total is fixed at creation")
}
