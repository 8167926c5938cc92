package harness

import (
	"github.com/abm1119/bita/internal/ledger"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Device string `json:"device"`
	Op     Op     `json:"op"`

	// Target is the id the step acted on, empty for device-level steps.
	Target string `json:"target,omitempty"`

	// Restored is set for steps that download the remote backup.
	Restored *bool `json:"restored,omitempty"`

	// ErrorKind classifies the step's error; empty on success.
	ErrorKind string `json:"error_kind,omitempty"`
}

// DeviceState is a device's ledger at the end of a run.
type DeviceState struct {
	Vendors  []ledger.Vendor  `json:"vendors"`
	Invoices []ledger.Invoice `json:"invoices"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every step behaved as declared and every
	// expectation held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains the failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final ledger of each device still signed in.
	State map[string]DeviceState `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]DeviceState),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace numbers ev and appends it. It returns the numbered event.
func (r *Result) addTrace(ev TraceEvent) TraceEvent {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
	return ev
}
