// Package extract turns the output of an invoice-reading model into ledger
// records.
//
// The model itself is an external collaborator. This package only parses
// its text response, checks it against a CUE schema, and maps the
// candidate onto a vendor and an invoice that the caller then upserts.
package extract

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
	"github.com/shopspring/decimal"
)

//go:embed candidate.cue
var schemaSrc string

var (
	// ErrNoCandidate is the extractor's failure signal: nothing usable was
	// read from the image.
	ErrNoCandidate = errors.New("no invoice candidate")

	// ErrSchema is returned when a response does not match the candidate
	// schema.
	ErrSchema = errors.New("candidate does not match schema")
)

// Candidate is a structured invoice proposal. Empty strings and invalid
// NullDecimals stand for fields the model left out.
type Candidate struct {
	VendorName    string              `json:"vendorName"`
	InvoiceNumber string              `json:"invoiceNumber"`
	IssueDate     string              `json:"issueDate"`
	TotalAmount   decimal.NullDecimal `json:"totalAmount"`
	LineItems     []CandidateLine     `json:"lineItems"`
}

// CandidateLine is one proposed line item.
type CandidateLine struct {
	Name      string              `json:"name"`
	Category  string              `json:"category"`
	Quantity  decimal.NullDecimal `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unitPrice"`
	Total     decimal.NullDecimal `json:"total"`
}

// Extractor reads an invoice image. It returns ErrNoCandidate (possibly
// wrapped) when the image cannot be read.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Candidate, error)
}

// ResponseExtractor replays a stored model response regardless of the
// image. It is used for imports of saved responses and in tests.
type ResponseExtractor struct {
	Response string
}

func (r ResponseExtractor) Extract(ctx context.Context, image []byte) (Candidate, error) {
	return Decode(r.Response)
}

// ParseResponse isolates the JSON object in a model response. Markdown
// code fences and any text around the outermost braces are dropped.
func ParseResponse(text string) ([]byte, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return nil, fmt.Errorf("%w: response contains no JSON object", ErrNoCandidate)
	}
	return []byte(text[first : last+1]), nil
}

// Decode parses a model response, validates it and returns the candidate.
func Decode(response string) (Candidate, error) {
	data, err := ParseResponse(response)
	if err != nil {
		return Candidate{}, err
	}
	if err := validate(data); err != nil {
		return Candidate{}, err
	}

	var c Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return c, nil
}

// validate checks data against #Candidate. The schema and the data must be
// built in the same CUE context.
func validate(data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("candidate.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile candidate schema: %w", err)
	}

	expr, err := cuejson.Extract("response.json", data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoCandidate, err)
	}
	value := ctx.BuildExpr(expr)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoCandidate, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Candidate")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
