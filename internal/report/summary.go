// Package report derives read-only views from the ledger: the dashboard
// summary and per-item price history.
package report

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/ledger"
)

// TopOutstandingLimit caps Summary.TopOutstanding.
const TopOutstandingLimit = 5

// Summary is the dashboard view of the ledger.
type Summary struct {
	TotalUnpaid      decimal.Decimal `json:"totalUnpaid" yaml:"totalUnpaid"`
	TotalExpenditure decimal.Decimal `json:"totalExpenditure" yaml:"totalExpenditure"`
	SettledThisMonth decimal.Decimal `json:"settledThisMonth" yaml:"settledThisMonth"`
	VendorCount      int             `json:"vendorCount" yaml:"vendorCount"`
	UnpaidCount      int             `json:"unpaidCount" yaml:"unpaidCount"`
	TopOutstanding   []Outstanding   `json:"topOutstanding" yaml:"topOutstanding"`
	Trend            []TrendPoint    `json:"trend" yaml:"trend"`
}

// Outstanding is an invoice that is not fully paid.
type Outstanding struct {
	InvoiceID     string               `json:"invoiceId" yaml:"invoiceId"`
	InvoiceNumber string               `json:"invoiceNumber" yaml:"invoiceNumber"`
	Vendor        string               `json:"vendor" yaml:"vendor"`
	IssueDate     ledger.Date          `json:"issueDate" yaml:"issueDate"`
	Total         decimal.Decimal      `json:"total" yaml:"total"`
	Balance       decimal.Decimal      `json:"balance" yaml:"balance"`
	Status        ledger.PaymentStatus `json:"status" yaml:"status"`
}

// TrendPoint is one invoice total on the spending timeline.
type TrendPoint struct {
	Date  ledger.Date     `json:"date" yaml:"date"`
	Total decimal.Decimal `json:"total" yaml:"total"`
}

// Summarize computes the dashboard figures as of today.
//
// SettledThisMonth sums the totals of Paid invoices whose payment date
// falls in today's month. TopOutstanding lists the largest unsettled
// invoices by total, and Trend lists every invoice total by issue date.
func Summarize(vendors []ledger.Vendor, invoices []ledger.Invoice, today ledger.Date) Summary {
	s := Summary{
		TotalUnpaid:      decimal.Zero,
		TotalExpenditure: decimal.Zero,
		SettledThisMonth: decimal.Zero,
		VendorCount:      len(vendors),
		TopOutstanding:   []Outstanding{},
		Trend:            make([]TrendPoint, 0, len(invoices)),
	}

	for _, inv := range invoices {
		s.TotalUnpaid = s.TotalUnpaid.Add(inv.Balance())
		s.TotalExpenditure = s.TotalExpenditure.Add(inv.TotalAmount)
		s.Trend = append(s.Trend, TrendPoint{Date: inv.IssueDate, Total: inv.TotalAmount})

		if inv.Status == ledger.StatusPaid {
			if inv.PaymentDate != nil && inv.PaymentDate.SameMonth(today) {
				s.SettledThisMonth = s.SettledThisMonth.Add(inv.TotalAmount)
			}
			continue
		}
		s.UnpaidCount++
		s.TopOutstanding = append(s.TopOutstanding, Outstanding{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			Vendor:        ledger.VendorName(vendors, inv.VendorID),
			IssueDate:     inv.IssueDate,
			Total:         inv.TotalAmount,
			Balance:       inv.Balance(),
			Status:        inv.Status,
		})
	}

	slices.SortStableFunc(s.TopOutstanding, func(a, b Outstanding) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.InvoiceID, b.InvoiceID)
	})
	if len(s.TopOutstanding) > TopOutstandingLimit {
		s.TopOutstanding = s.TopOutstanding[:TopOutstandingLimit]
	}

	slices.SortStableFunc(s.Trend, func(a, b TrendPoint) int {
		return a.Date.Time().Compare(b.Date.Time())
	})
	return s
}
