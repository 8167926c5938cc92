package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", d.String())

	d, err = ParseDate("2025-03-14T10:11:12.000Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", d.String())

	_, err = ParseDate("14/03/2025")
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	inv := Invoice{ID: "i1", IssueDate: NewDate(2025, 3, 14)}
	data, err := json.Marshal(inv)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"issueDate":"2025-03-14"`)
	assert.NotContains(t, string(data), "paymentDate")

	var back Invoice
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IssueDate.Equal(inv.IssueDate))
}

func TestDate_SameMonth(t *testing.T) {
	assert.True(t, NewDate(2025, 3, 1).SameMonth(NewDate(2025, 3, 31)))
	assert.False(t, NewDate(2025, 3, 1).SameMonth(NewDate(2024, 3, 1)))
}

func TestValidateVendor(t *testing.T) {
	require.NoError(t, ValidateVendor(Vendor{ID: "v1", Name: "Acme Flour"}))

	err := ValidateVendor(Vendor{ID: "v1", Name: "   "})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "name required")
}

func TestValidateInvoice(t *testing.T) {
	inv := Invoice{ID: "i1", IssueDate: NewDate(2025, 3, 1), PaidAmount: dec("-1")}

	err := ValidateInvoice(inv)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must_not_be_negative", ve.Violations["paidAmount"])

	inv.PaidAmount = dec("0")
	inv.VendorID = "missing-vendor"
	assert.NoError(t, ValidateInvoice(inv), "dangling vendor reference is allowed")
}

func TestVendorName(t *testing.T) {
	vendors := []Vendor{{ID: "v1", Name: "Acme Flour"}}
	assert.Equal(t, "Acme Flour", VendorName(vendors, "v1"))
	assert.Equal(t, UnknownVendorName, VendorName(vendors, "v2"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, NormalizeName("acme  flour"), NormalizeName("  ACME Flour "))
	// "é" as one code point and as e + combining acute.
	assert.Equal(t, NormalizeName("Café"), NormalizeName("CAFÉ"))
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	g := UUIDv7Generator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.Generate()
		require.Len(t, id, 36)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
