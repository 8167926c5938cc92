package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abm1119/bita/internal/ledger"
)

// MainDevice is the device steps run on when they name none.
const MainDevice = "main"

// Scenario is one end-to-end ledger story with its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Today is the date every device's clock is stopped at (YYYY-MM-DD).
	Today string `yaml:"today"`

	// LocalOnly runs the devices without a backup slot.
	LocalOnly bool `yaml:"local_only,omitempty"`

	Steps []Step `yaml:"steps"`

	// Expect holds the final state checks, one entry per device.
	Expect []DeviceExpect `yaml:"expect"`
}

// Step is one operation on one device.
type Step struct {
	Op     Op       `yaml:"op"`
	Device string   `yaml:"device,omitempty"`
	Args   StepArgs `yaml:"args,omitempty"`

	// Error is the expected error kind, empty when the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Restored, when set, is the expected restore outcome of open_device,
	// restart and pull.
	Restored *bool `yaml:"restored,omitempty"`
}

// StepArgs is the union of all operation arguments. Amounts and
// quantities are decimal strings.
type StepArgs struct {
	ID       string     `yaml:"id,omitempty"`
	Name     string     `yaml:"name,omitempty"`
	Contact  string     `yaml:"contact,omitempty"`
	Phone    string     `yaml:"phone,omitempty"`
	Email    string     `yaml:"email,omitempty"`
	Vendor   string     `yaml:"vendor,omitempty"`
	Number   string     `yaml:"number,omitempty"`
	Issued   string     `yaml:"issued,omitempty"`
	Items    []ItemArgs `yaml:"items,omitempty"`
	Amount   string     `yaml:"amount,omitempty"`
	Date     string     `yaml:"date,omitempty"`
	Response string     `yaml:"response,omitempty"`
	From     string     `yaml:"from,omitempty"`
}

type ItemArgs struct {
	Name      string `yaml:"name"`
	Category  string `yaml:"category,omitempty"`
	Quantity  string `yaml:"quantity"`
	UnitPrice string `yaml:"unitPrice"`
}

// DeviceExpect describes the ledger a device must hold at the end.
// Listed records are matched by id on the fields that are set; the counts,
// when set, are exact.
type DeviceExpect struct {
	Device       string          `yaml:"device,omitempty"`
	Vendors      []VendorExpect  `yaml:"vendors,omitempty"`
	Invoices     []InvoiceExpect `yaml:"invoices,omitempty"`
	Absent       []string        `yaml:"absent,omitempty"`
	VendorCount  *int            `yaml:"vendor_count,omitempty"`
	InvoiceCount *int            `yaml:"invoice_count,omitempty"`
}

type VendorExpect struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// InvoiceExpect checks an invoice. PaymentDate "none" requires the date
// to be unset.
type InvoiceExpect struct {
	ID          string `yaml:"id"`
	Vendor      string `yaml:"vendor,omitempty"`
	Number      string `yaml:"number,omitempty"`
	Status      string `yaml:"status,omitempty"`
	Total       string `yaml:"total,omitempty"`
	Paid        string `yaml:"paid,omitempty"`
	PaymentDate string `yaml:"paymentDate,omitempty"`
	Items       *int   `yaml:"items,omitempty"`
}

// Op names a step operation.
type Op string

const (
	OpAddVendor       Op = "add_vendor"
	OpDeleteVendor    Op = "delete_vendor"
	OpAddInvoice      Op = "add_invoice"
	OpDeleteInvoice   Op = "delete_invoice"
	OpPay             Op = "pay"
	OpImportCandidate Op = "import_candidate"
	OpCopySnapshot    Op = "copy_snapshot"
	OpOpenDevice      Op = "open_device"
	OpRestart         Op = "restart"
	OpPull            Op = "pull"
	OpPush            Op = "push"
	OpGoOffline       Op = "go_offline"
	OpGoOnline        Op = "go_online"
	OpBreakCache      Op = "break_local_cache"
	OpFixCache        Op = "fix_local_cache"
	OpDeleteAccount   Op = "delete_account"
	OpAdvanceDays     Op = "advance_days"
)

var knownOps = map[Op]bool{
	OpAddVendor: true, OpDeleteVendor: true, OpAddInvoice: true,
	OpDeleteInvoice: true, OpPay: true, OpImportCandidate: true,
	OpCopySnapshot: true, OpOpenDevice: true, OpRestart: true,
	OpPull: true, OpPush: true, OpGoOffline: true, OpGoOnline: true,
	OpBreakCache: true, OpFixCache: true, OpDeleteAccount: true,
	OpAdvanceDays: true,
}

// Error kind names used in Step.Error.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindLocalStorage      = "local_storage"
	KindRemoteUnavailable = "remote_unavailable"
	KindSyncDisabled      = "sync_disabled"
	KindSchema            = "schema"
	KindNoCandidate       = "no_candidate"
)

var knownKinds = map[string]bool{
	KindValidation: true, KindNotFound: true, KindLocalStorage: true,
	KindRemoteUnavailable: true, KindSyncDisabled: true, KindSchema: true, KindNoCandidate: true,
}

// DeviceName returns the step's device, defaulting to MainDevice.
func (s Step) DeviceName() string {
	if s.Device == "" {
		return MainDevice
	}
	return s.Device
}

// DeviceName returns the checked device, defaulting to MainDevice.
func (e DeviceExpect) DeviceName() string {
	if e.Device == "" {
		return MainDevice
	}
	return e.Device
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := ledger.ParseDate(s.Today); err != nil {
		return fmt.Errorf("today: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Expect) == 0 {
		return fmt.Errorf("expect list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, e := range s.Expect {
		for j, v := range e.Vendors {
			if v.ID == "" {
				return fmt.Errorf("expect[%d].vendors[%d]: id is required", i, j)
			}
		}
		for j, inv := range e.Invoices {
			if inv.ID == "" {
				return fmt.Errorf("expect[%d].invoices[%d]: id is required", i, j)
			}
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", i)
	}
	if !knownOps[step.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	if step.Error != "" && !knownKinds[step.Error] {
		return fmt.Errorf("steps[%d]: unknown error kind %q", i, step.Error)
	}

	a := step.Args
	switch step.Op {
	case OpAddVendor:
		if a.Name == "" {
			return fmt.Errorf("steps[%d]: add_vendor requires name", i)
		}
	case OpDeleteVendor, OpDeleteInvoice:
		if a.ID == "" {
			return fmt.Errorf("steps[%d]: %s requires id", i, step.Op)
		}
	case OpAddInvoice:
		if a.Vendor == "" || a.Issued == "" {
			return fmt.Errorf("steps[%d]: add_invoice requires vendor and issued", i)
		}
	case OpPay:
		if a.ID == "" || a.Amount == "" {
			return fmt.Errorf("steps[%d]: pay requires id and amount", i)
		}
	case OpImportCandidate:
		if a.Response == "" {
			return fmt.Errorf("steps[%d]: import_candidate requires response", i)
		}
	case OpCopySnapshot:
		if a.From == "" {
			return fmt.Errorf("steps[%d]: copy_snapshot requires from", i)
		}
	case OpAdvanceDays:
		if a.Amount == "" {
			return fmt.Errorf("steps[%d]: advance_days requires amount", i)
		}
	}
	if step.Restored != nil {
		switch step.Op {
		case OpOpenDevice, OpRestart, OpPull:
		default:
			return fmt.Errorf("steps[%d]: restored applies to open_device, restart and pull only", i)
		}
	}
	return nil
}
