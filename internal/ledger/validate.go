package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Violations maps a field name to a short rule code such as "required".
type Violations map[string]string

// Empty reports whether no rule was violated.
func (v Violations) Empty() bool { return len(v) == 0 }

// ValidationError rejects a record before it reaches the store.
type ValidationError struct {
	Entity     string
	Violations Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s %s", f, e.Violations[f])
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, ", "))
}

// IsValidation reports whether err is a ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

// ValidateVendor checks the fields a vendor needs before it is stored.
func ValidateVendor(vendor Vendor) error {
	v := Violations{}
	required("id", vendor.ID, v)
	required("name", vendor.Name, v)
	if v.Empty() {
		return nil
	}
	return &ValidationError{Entity: "vendor", Violations: v}
}

// ValidateInvoice checks the fields an invoice needs before it is stored.
// A vendor reference that matches no vendor is allowed.
func ValidateInvoice(inv Invoice) error {
	v := Violations{}
	required("id", inv.ID, v)
	if inv.IssueDate.IsZero() {
		v["issueDate"] = "required"
	}
	if inv.TotalAmount.IsNegative() {
		v["totalAmount"] = "must_not_be_negative"
	}
	if inv.PaidAmount.IsNegative() {
		v["paidAmount"] = "must_not_be_negative"
	}
	for i, li := range inv.LineItems {
		if li.Quantity.IsNegative() {
			v[fmt.Sprintf("lineItems[%d].quantity", i)] = "must_not_be_negative"
		}
		if li.UnitPrice.IsNegative() {
			v[fmt.Sprintf("lineItems[%d].unitPrice", i)] = "must_not_be_negative"
		}
	}
	if v.Empty() {
		return nil
	}
	return &ValidationError{Entity: "invoice", Violations: v}
}
