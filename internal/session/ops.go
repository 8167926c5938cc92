package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/extract"
	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/localcache"
	"github.com/abm1119/bita/internal/report"
)

// AddVendor stores v, assigning an id when it has none. An existing vendor
// with the same id is replaced.
func (s *Session) AddVendor(ctx context.Context, v ledger.Vendor) (ledger.Vendor, error) {
	if v.ID == "" {
		v.ID = s.ids.Generate()
	}
	return v, s.afterMutation(ctx, s.store.UpsertVendor(ctx, v))
}

// DeleteVendor removes a vendor together with its invoices.
func (s *Session) DeleteVendor(ctx context.Context, id string) error {
	return s.afterMutation(ctx, s.store.DeleteVendor(ctx, id))
}

// AddInvoice stores inv, assigning ids to the invoice and its line items
// where missing. The stored form is returned.
func (s *Session) AddInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	if inv.ID == "" {
		inv.ID = s.ids.Generate()
	}
	items := make([]ledger.LineItem, len(inv.LineItems))
	for i, item := range inv.LineItems {
		if item.ID == "" {
			item.ID = s.ids.Generate()
		}
		items[i] = item
	}
	inv.LineItems = items

	stored, err := s.store.UpsertInvoice(ctx, inv)
	return stored, s.afterMutation(ctx, err)
}

// DeleteInvoice removes one invoice.
func (s *Session) DeleteInvoice(ctx context.Context, id string) error {
	return s.afterMutation(ctx, s.store.DeleteInvoice(ctx, id))
}

// RecordPayment sets the paid amount of an invoice. See
// ledger.Invoice.ApplyPayment for how status and payment date follow.
func (s *Session) RecordPayment(ctx context.Context, id string, paid decimal.Decimal, date *ledger.Date) (ledger.Invoice, error) {
	inv, err := s.store.SetInvoicePayment(ctx, id, paid, date)
	return inv, s.afterMutation(ctx, err)
}

// ImportCandidate stores an extracted invoice, creating its vendor first
// when no existing vendor matches by name.
func (s *Session) ImportCandidate(ctx context.Context, c extract.Candidate) (extract.Result, error) {
	vendors, err := s.store.ListVendors(ctx)
	if err != nil {
		return extract.Result{}, fmt.Errorf("import candidate: %w", err)
	}
	res, err := extract.Build(c, vendors, s.ids, s.clock)
	if err != nil {
		return extract.Result{}, fmt.Errorf("import candidate: %w", err)
	}

	if err := ledger.ValidateInvoice(res.Invoice); err != nil {
		return extract.Result{}, fmt.Errorf("import candidate: %w", err)
	}

	// Both records are applied before a single upload.
	var localErr error
	if res.NewVendor {
		if err := s.store.UpsertVendor(ctx, res.Vendor); err != nil {
			if !localcache.IsLocalStorage(err) {
				return extract.Result{}, fmt.Errorf("import candidate: %w", err)
			}
			localErr = err
		}
	}
	inv, err := s.store.UpsertInvoice(ctx, res.Invoice)
	switch {
	case err == nil:
	case localcache.IsLocalStorage(err):
		localErr = err
	default:
		err = fmt.Errorf("import candidate: %w", err)
		if res.NewVendor {
			err = errors.Join(err, s.afterMutation(ctx, localErr))
		}
		return extract.Result{}, err
	}
	res.Invoice = inv
	return res, s.afterMutation(ctx, localErr)
}

// ExportSnapshot returns the current database image.
func (s *Session) ExportSnapshot(ctx context.Context) ([]byte, error) {
	return s.store.ExportSnapshot(ctx)
}

// ImportSnapshot replaces the ledger with data and uploads it.
func (s *Session) ImportSnapshot(ctx context.Context, data []byte) error {
	return s.afterMutation(ctx, s.store.ImportSnapshot(ctx, data))
}

func (s *Session) Vendors(ctx context.Context) ([]ledger.Vendor, error) {
	return s.store.ListVendors(ctx)
}

func (s *Session) Invoices(ctx context.Context) ([]ledger.Invoice, error) {
	return s.store.ListInvoices(ctx)
}

// Summary computes the dashboard figures as of the session clock's today.
func (s *Session) Summary(ctx context.Context) (report.Summary, error) {
	vendors, invoices, err := s.all(ctx)
	if err != nil {
		return report.Summary{}, err
	}
	return report.Summarize(vendors, invoices, ledger.Today(s.clock)), nil
}

// PriceHistory returns the unit price timeline of items matching filter.
func (s *Session) PriceHistory(ctx context.Context, filter string) ([]report.ItemHistory, error) {
	vendors, invoices, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return report.PriceHistory(vendors, invoices, filter), nil
}

func (s *Session) all(ctx context.Context) ([]ledger.Vendor, []ledger.Invoice, error) {
	vendors, err := s.store.ListVendors(ctx)
	if err != nil {
		return nil, nil, err
	}
	invoices, err := s.store.ListInvoices(ctx)
	if err != nil {
		return nil, nil, err
	}
	return vendors, invoices, nil
}

// Pull downloads the remote backup now. See syncer.Syncer.DownloadBackup.
func (s *Session) Pull(ctx context.Context) (bool, error) {
	if s.sync == nil {
		return false, ErrSyncDisabled
	}
	return s.sync.DownloadBackup(ctx)
}

// Push uploads the current state now.
func (s *Session) Push(ctx context.Context) error {
	if s.sync == nil {
		return ErrSyncDisabled
	}
	return s.sync.UploadBackup(ctx)
}

// RemoteStatus reports when the remote backup was written, if it exists.
func (s *Session) RemoteStatus(ctx context.Context) (time.Time, bool, error) {
	if s.sync == nil {
		return time.Time{}, false, ErrSyncDisabled
	}
	return s.sync.RemoteStatus(ctx)
}
