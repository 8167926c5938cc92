package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + money(d)
	}
	return money(d)
}

// WriteSummary renders s as plain text.
func WriteSummary(w io.Writer, s Summary) error {
	ew := &errWriter{w: w}
	ew.printf("%-20s %s\n", "Total unpaid:", money(s.TotalUnpaid))
	ew.printf("%-20s %s\n", "Total expenditure:", money(s.TotalExpenditure))
	ew.printf("%-20s %s\n", "Settled this month:", money(s.SettledThisMonth))
	ew.printf("%-20s %d\n", "Vendors:", s.VendorCount)
	ew.printf("%-20s %d\n", "Unsettled invoices:", s.UnpaidCount)
	ew.printf("\nTop outstanding:\n")
	if len(s.TopOutstanding) == 0 {
		ew.printf("  none\n")
		return ew.err
	}
	ew.printf("  %-12s %-16s %-10s %10s %10s  %s\n", "NUMBER", "VENDOR", "ISSUED", "TOTAL", "BALANCE", "STATUS")
	for _, o := range s.TopOutstanding {
		ew.printf("  %-12s %-16s %-10s %10s %10s  %s\n",
			o.InvoiceNumber, o.Vendor, o.IssueDate, money(o.Total), money(o.Balance), o.Status)
	}
	return ew.err
}

// WritePriceHistory renders items as plain text, newest point last.
func WritePriceHistory(w io.Writer, items []ItemHistory) error {
	ew := &errWriter{w: w}
	if len(items) == 0 {
		ew.printf("no items\n")
		return ew.err
	}
	for i, h := range items {
		if i > 0 {
			ew.printf("\n")
		}
		ew.printf("%s: latest %s, previous %s (%s %s)\n",
			h.Name, money(h.Latest), money(h.Previous), h.Trend, signed(h.Change))
		for _, p := range h.Points {
			ew.printf("  %-10s %10s  %s\n", p.Date, money(p.UnitPrice), p.Vendor)
		}
	}
	return ew.err
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
