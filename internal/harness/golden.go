package harness

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Render writes the trace and final state of a run as stable text.
// Amounts use two decimals so values read back from storage render the same
// as values entered.
func Render(name string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	fmt.Fprintf(&buf, "trace:\n")
	for _, ev := range result.Trace {
		fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
	}

	devices := make([]string, 0, len(result.State))
	for dev := range result.State {
		devices = append(devices, dev)
	}
	sort.Strings(devices)
	for _, d := range devices {
		state := result.State[d]
		fmt.Fprintf(&buf, "state %s:\n", d)
		if len(state.Vendors) == 0 && len(state.Invoices) == 0 {
			fmt.Fprintf(&buf, "  empty\n")
		}
		for _, v := range state.Vendors {
			fmt.Fprintf(&buf, "  vendor %s %q\n", v.ID, v.Name)
		}
		for _, inv := range state.Invoices {
			paidOn := "-"
			if inv.PaymentDate != nil {
				paidOn = inv.PaymentDate.String()
			}
			fmt.Fprintf(&buf, "  invoice %s vendor=%s number=%s issued=%s total=%s paid=%s status=%s paid_on=%s items=%d\n",
				inv.ID, inv.VendorID, inv.InvoiceNumber, inv.IssueDate,
				inv.TotalAmount.StringFixed(2), inv.PaidAmount.StringFixed(2),
				inv.Status, paidOn, len(inv.LineItems))
		}
	}
	return []byte(buf.String())
}

func formatEvent(ev TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s %s", ev.Seq, ev.Device, ev.Op)
	if ev.Target != "" {
		fmt.Fprintf(&b, " %s", ev.Target)
	}
	if ev.Restored != nil {
		fmt.Fprintf(&b, " restored=%t", *ev.Restored)
	}
	if ev.ErrorKind != "" {
		fmt.Fprintf(&b, " error=%s", ev.ErrorKind)
	} else {
		b.WriteString(" ok")
	}
	return b.String()
}

// RunWithGolden executes a scenario, fails the test if it does not pass,
// and compares its rendering against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	AssertGolden(t, scenario.Name, result)
	return nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Render(name, result))
}
