package ledger

import (
	"github.com/shopspring/decimal"
)

// UnknownVendorName is shown for invoices whose vendor no longer exists.
const UnknownVendorName = "Unknown"

// PaymentStatus is the settlement state of an invoice.
//
// The string values match the persisted column values, including snapshots
// written by earlier releases.
type PaymentStatus string

const (
	StatusUnpaid  PaymentStatus = "Unpaid"
	StatusPartial PaymentStatus = "Partial"
	StatusPaid    PaymentStatus = "Paid"
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid:
		return true
	}
	return false
}

// Vendor is a supplier that issues invoices.
type Vendor struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	ContactPerson string `json:"contactPerson" yaml:"contactPerson"`
	Phone         string `json:"phone" yaml:"phone"`
	Email         string `json:"email" yaml:"email"`
}

// LineItem is one purchased article on an invoice.
//
// Subtotal is serialized as "total" for compatibility with stored snapshots.
type LineItem struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Category  string          `json:"category" yaml:"category"`
	Quantity  decimal.Decimal `json:"quantity" yaml:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice" yaml:"unitPrice"`
	Subtotal  decimal.Decimal `json:"total" yaml:"total"`
}

// Recompute sets Subtotal to Quantity × UnitPrice.
func (li *LineItem) Recompute() {
	li.Subtotal = li.Quantity.Mul(li.UnitPrice)
}

// Invoice is a bill from a vendor.
type Invoice struct {
	ID            string          `json:"id" yaml:"id"`
	VendorID      string          `json:"vendorId" yaml:"vendorId"`
	InvoiceNumber string          `json:"invoiceNumber" yaml:"invoiceNumber"`
	IssueDate     Date            `json:"issueDate" yaml:"issueDate"`
	PaymentDate   *Date           `json:"paymentDate,omitempty" yaml:"paymentDate,omitempty"`
	TotalAmount   decimal.Decimal `json:"totalAmount" yaml:"totalAmount"`
	PaidAmount    decimal.Decimal `json:"paidAmount" yaml:"paidAmount"`
	Status        PaymentStatus   `json:"status" yaml:"status"`
	LineItems     []LineItem      `json:"lineItems" yaml:"lineItems"`
}

// NewInvoice builds an unpaid invoice whose total is the sum of the line
// item subtotals. Subtotals are recomputed from quantity and unit price.
func NewInvoice(id, vendorID, number string, issued Date, items []LineItem) Invoice {
	lines := make([]LineItem, len(items))
	total := decimal.Zero
	for i, item := range items {
		item.Recompute()
		lines[i] = item
		total = total.Add(item.Subtotal)
	}
	return Invoice{
		ID:            id,
		VendorID:      vendorID,
		InvoiceNumber: number,
		IssueDate:     issued,
		TotalAmount:   total,
		PaidAmount:    decimal.Zero,
		Status:        StatusUnpaid,
		LineItems:     lines,
	}
}

// Balance returns the amount still owed.
func (inv Invoice) Balance() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.PaidAmount)
}

// VendorName resolves id against vendors, falling back to UnknownVendorName.
func VendorName(vendors []Vendor, id string) string {
	for _, v := range vendors {
		if v.ID == id {
			return v.Name
		}
	}
	return UnknownVendorName
}
