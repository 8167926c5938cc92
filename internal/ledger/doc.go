// Package ledger defines the record types kept by bita: vendors and the
// invoices issued by them, with line items embedded in each invoice.
//
// The types carry the invariants that every layer relies on:
//
//   - Invoice status is a pure function of paid and total amounts
//     (see DeriveStatus).
//   - A payment date is present if and only if the status is Paid.
//   - A line item's subtotal is always quantity × unit price.
//   - An invoice's total is fixed when the invoice is created and is not
//     re-derived from its line items afterwards.
//
// Identifiers are opaque strings chosen by the caller. UUIDv7Generator
// produces time-ordered random identifiers that do not collide across
// devices sharing one account.
package ledger
