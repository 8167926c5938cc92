package harness

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/abm1119/bita/internal/ledger"
)

// AssertionError is returned when an expectation fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Device   string
	Subject  string // what was checked, e.g. "invoice i1 status"
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed on %s: %s\n", e.Device, e.Subject)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
	}
	return buf.String()
}

// EvaluateExpectations checks the final device states and returns one
// message per failed expectation.
func EvaluateExpectations(result *Result, expects []DeviceExpect) []string {
	var errs []string
	for _, e := range expects {
		name := e.DeviceName()
		state, ok := result.State[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("device %q is not open at the end of the run", name))
			continue
		}
		for _, err := range checkDevice(name, state, e) {
			err.Trace = result.Trace
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func checkDevice(name string, state DeviceState, e DeviceExpect) []*AssertionError {
	var failures []*AssertionError
	fail := func(subject, expected, actual string) {
		failures = append(failures, &AssertionError{
			Device:   name,
			Subject:  subject,
			Expected: expected,
			Actual:   actual,
		})
	}

	if e.VendorCount != nil && len(state.Vendors) != *e.VendorCount {
		fail("vendor count", fmt.Sprint(*e.VendorCount), fmt.Sprint(len(state.Vendors)))
	}
	if e.InvoiceCount != nil && len(state.Invoices) != *e.InvoiceCount {
		fail("invoice count", fmt.Sprint(*e.InvoiceCount), fmt.Sprint(len(state.Invoices)))
	}

	for _, want := range e.Vendors {
		got, ok := findVendor(state.Vendors, want.ID)
		if !ok {
			fail("vendor "+want.ID, "present", "missing")
			continue
		}
		if want.Name != "" && got.Name != want.Name {
			fail("vendor "+want.ID+" name", want.Name, got.Name)
		}
	}

	for _, want := range e.Invoices {
		got, ok := findInvoice(state.Invoices, want.ID)
		if !ok {
			fail("invoice "+want.ID, "present", "missing")
			continue
		}
		subject := "invoice " + want.ID + " "
		if want.Vendor != "" && got.VendorID != want.Vendor {
			fail(subject+"vendor", want.Vendor, got.VendorID)
		}
		if want.Number != "" && got.InvoiceNumber != want.Number {
			fail(subject+"number", want.Number, got.InvoiceNumber)
		}
		if want.Status != "" && string(got.Status) != want.Status {
			fail(subject+"status", want.Status, string(got.Status))
		}
		if msg, ok := amountMatches(want.Total, got.TotalAmount); !ok {
			fail(subject+"total", want.Total, msg)
		}
		if msg, ok := amountMatches(want.Paid, got.PaidAmount); !ok {
			fail(subject+"paid", want.Paid, msg)
		}
		if want.PaymentDate != "" {
			actual := "none"
			if got.PaymentDate != nil {
				actual = got.PaymentDate.String()
			}
			if actual != want.PaymentDate {
				fail(subject+"payment date", want.PaymentDate, actual)
			}
		}
		if want.Items != nil && len(got.LineItems) != *want.Items {
			fail(subject+"line items", fmt.Sprint(*want.Items), fmt.Sprint(len(got.LineItems)))
		}
	}

	for _, id := range e.Absent {
		if _, ok := findVendor(state.Vendors, id); ok {
			fail("vendor "+id, "absent", "present")
		}
		if _, ok := findInvoice(state.Invoices, id); ok {
			fail("invoice "+id, "absent", "present")
		}
	}
	return failures
}

// amountMatches compares numerically so "21" matches 21.00.
func amountMatches(want string, got decimal.Decimal) (string, bool) {
	if want == "" {
		return "", true
	}
	w, err := decimal.NewFromString(want)
	if err != nil {
		return fmt.Sprintf("unparsable expectation %q", want), false
	}
	return got.String(), w.Equal(got)
}

func findVendor(vendors []ledger.Vendor, id string) (ledger.Vendor, bool) {
	for _, v := range vendors {
		if v.ID == id {
			return v, true
		}
	}
	return ledger.Vendor{}, false
}

func findInvoice(invoices []ledger.Invoice, id string) (ledger.Invoice, bool) {
	for _, inv := range invoices {
		if inv.ID == id {
			return inv, true
		}
	}
	return ledger.Invoice{}, false
}
