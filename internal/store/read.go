package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abm1119/bita/internal/ledger"
)

const selectVendors = `
	SELECT id, COALESCE(name, ''), COALESCE(contactPerson, ''), COALESCE(phone, ''), COALESCE(email, '')
	FROM vendors`

const selectInvoices = `
	SELECT id, COALESCE(vendorId, ''), COALESCE(invoiceNumber, ''), COALESCE(issueDate, ''),
	       paymentDate, totalAmount, paidAmount, COALESCE(status, ''), COALESCE(lineItems, '')
	FROM invoices`

// ListVendors returns all vendors ordered by id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListVendors(ctx context.Context) ([]ledger.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, selectVendors+` ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query vendors: %w", err)
	}
	defer rows.Close()

	vendors := []ledger.Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendors: %w", err)
	}
	return vendors, nil
}

// ListInvoices returns all invoices ordered by id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListInvoices(ctx context.Context) ([]ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, selectInvoices+` ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []ledger.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return invoices, nil
}

// Vendor returns the vendor with id, or ErrNotFound.
func (s *Store) Vendor(ctx context.Context, id string) (ledger.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ledger.Vendor{}, ErrClosed
	}

	v, err := scanVendor(s.db.QueryRowContext(ctx, selectVendors+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Vendor{}, fmt.Errorf("vendor %q: %w", id, ErrNotFound)
	}
	return v, err
}

// Invoice returns the invoice with id, or ErrNotFound.
func (s *Store) Invoice(ctx context.Context, id string) (ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ledger.Invoice{}, ErrClosed
	}

	inv, err := scanInvoice(s.db.QueryRowContext(ctx, selectInvoices+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Invoice{}, fmt.Errorf("invoice %q: %w", id, ErrNotFound)
	}
	return inv, err
}

// Counts returns the number of vendors and invoices.
func (s *Store) Counts(ctx context.Context) (vendors, invoices int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, 0, ErrClosed
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM vendors), (SELECT COUNT(*) FROM invoices)
	`).Scan(&vendors, &invoices)
	if err != nil {
		return 0, 0, fmt.Errorf("count rows: %w", err)
	}
	return vendors, invoices, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVendor(row rowScanner) (ledger.Vendor, error) {
	var v ledger.Vendor
	if err := row.Scan(&v.ID, &v.Name, &v.ContactPerson, &v.Phone, &v.Email); err != nil {
		return ledger.Vendor{}, fmt.Errorf("scan vendor: %w", err)
	}
	return v, nil
}

func scanInvoice(row rowScanner) (ledger.Invoice, error) {
	var (
		inv         ledger.Invoice
		issueDate   string
		paymentDate sql.NullString
		total, paid sql.NullFloat64
		status      string
		items       string
	)
	err := row.Scan(
		&inv.ID,
		&inv.VendorID,
		&inv.InvoiceNumber,
		&issueDate,
		&paymentDate,
		&total,
		&paid,
		&status,
		&items,
	)
	if err != nil {
		return ledger.Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}

	if issueDate != "" {
		d, err := ledger.ParseDate(issueDate)
		if err != nil {
			return ledger.Invoice{}, fmt.Errorf("scan invoice %q: issueDate: %w", inv.ID, err)
		}
		inv.IssueDate = d
	}
	if paymentDate.Valid && paymentDate.String != "" {
		d, err := ledger.ParseDate(paymentDate.String)
		if err != nil {
			return ledger.Invoice{}, fmt.Errorf("scan invoice %q: paymentDate: %w", inv.ID, err)
		}
		inv.PaymentDate = &d
	}

	inv.TotalAmount = decimalFrom(total)
	inv.PaidAmount = decimalFrom(paid)

	inv.Status = ledger.PaymentStatus(status)
	if !inv.Status.Valid() {
		inv.Status = ledger.DeriveStatus(inv.PaidAmount, inv.TotalAmount)
	}

	inv.LineItems, err = unmarshalLineItems(items)
	if err != nil {
		return ledger.Invoice{}, fmt.Errorf("scan invoice %q: %w", inv.ID, err)
	}
	return inv, nil
}
