package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/ledger"
)

// UpsertVendor inserts v or replaces the vendor with the same id.
func (s *Store) UpsertVendor(ctx context.Context, v ledger.Vendor) error {
	if err := ledger.ValidateVendor(v); err != nil {
		return err
	}
	return s.mutate(ctx, "upsert vendor", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO vendors (id, name, contactPerson, phone, email)
			VALUES (?, ?, ?, ?, ?)
		`, v.ID, v.Name, v.ContactPerson, v.Phone, v.Email)
		return err
	})
}

// UpsertInvoice inserts inv or replaces the invoice with the same id.
//
// Line item subtotals, the status and the payment date are re-derived
// before the write; the total is stored as given. The stored invoice is
// returned.
func (s *Store) UpsertInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	if err := ledger.ValidateInvoice(inv); err != nil {
		return ledger.Invoice{}, err
	}

	inv.LineItems = append([]ledger.LineItem(nil), inv.LineItems...)
	inv.Normalize(s.today())

	err := s.mutate(ctx, "upsert invoice", func(tx *sql.Tx) error {
		return writeInvoice(ctx, tx, inv)
	})
	return inv, err
}

// DeleteVendor removes the vendor and every invoice that references it in
// one transaction. Deleting an unknown id is not an error.
func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete vendor", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE vendorId = ?`, id); err != nil {
			return fmt.Errorf("cascade invoices: %w", err)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM vendors WHERE id = ?`, id)
		return err
	})
}

// DeleteInvoice removes the invoice. Deleting an unknown id is not an error.
func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete invoice", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
		return err
	})
}

// SetInvoicePayment sets the running paid amount of an invoice and
// re-derives its status. The payment date is kept only while the invoice is
// Paid; on reaching Paid it defaults to today when date is nil.
//
// Returns ErrNotFound if no invoice has the id.
func (s *Store) SetInvoicePayment(ctx context.Context, id string, paid decimal.Decimal, date *ledger.Date) (ledger.Invoice, error) {
	if paid.IsNegative() {
		return ledger.Invoice{}, &ledger.ValidationError{
			Entity:     "payment",
			Violations: ledger.Violations{"paidAmount": "must_not_be_negative"},
		}
	}

	var updated ledger.Invoice
	err := s.mutate(ctx, "set invoice payment", func(tx *sql.Tx) error {
		inv, err := scanInvoice(tx.QueryRowContext(ctx, selectInvoices+` WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("invoice %q: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}

		inv.ApplyPayment(paid, date, s.today())

		var paymentDate any
		if inv.PaymentDate != nil {
			paymentDate = inv.PaymentDate.String()
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE invoices SET paidAmount = ?, status = ?, paymentDate = ? WHERE id = ?
		`, amount(inv.PaidAmount), string(inv.Status), paymentDate, inv.ID); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	// On a local save failure the payment is applied in memory and the
	// updated invoice is returned alongside the error.
	return updated, err
}

func writeInvoice(ctx context.Context, tx *sql.Tx, inv ledger.Invoice) error {
	items, err := marshalLineItems(inv.LineItems)
	if err != nil {
		return err
	}

	var paymentDate any
	if inv.PaymentDate != nil {
		paymentDate = inv.PaymentDate.String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO invoices
		(id, vendorId, invoiceNumber, issueDate, paymentDate, totalAmount, paidAmount, status, lineItems)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID,
		inv.VendorID,
		inv.InvoiceNumber,
		inv.IssueDate.String(),
		paymentDate,
		amount(inv.TotalAmount),
		amount(inv.PaidAmount),
		string(inv.Status),
		items,
	)
	return err
}
