package ledger

import "github.com/shopspring/decimal"

// DeriveStatus maps a paid amount and a total to a status:
//
//	paid == 0          -> Unpaid
//	0 < paid < total   -> Partial
//	paid >= total      -> Paid
func DeriveStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.IsZero():
		return StatusUnpaid
	case paid.LessThan(total):
		return StatusPartial
	default:
		return StatusPaid
	}
}

// ApplyPayment records paid as the running paid amount and re-derives the
// status.
//
// The payment date is kept only while the invoice is Paid. On entering Paid
// it becomes date, or today when date is nil. An invoice that was already
// Paid keeps its existing date unless date is given.
func (inv *Invoice) ApplyPayment(paid decimal.Decimal, date *Date, today Date) {
	wasPaid := inv.Status == StatusPaid && inv.PaymentDate != nil
	inv.PaidAmount = paid
	inv.Status = DeriveStatus(paid, inv.TotalAmount)

	if inv.Status != StatusPaid {
		inv.PaymentDate = nil
		return
	}
	switch {
	case date != nil:
		d := *date
		inv.PaymentDate = &d
	case wasPaid:
		// keep the recorded settlement date
	default:
		d := today
		inv.PaymentDate = &d
	}
}

// Normalize restores the derived fields of inv: line item subtotals,
// status, and the presence of the payment date. The total is left as is.
func (inv *Invoice) Normalize(today Date) {
	for i := range inv.LineItems {
		inv.LineItems[i].Recompute()
	}
	inv.ApplyPayment(inv.PaidAmount, inv.PaymentDate, today)
}
