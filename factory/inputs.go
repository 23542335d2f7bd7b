/*
Package factory provides JSON to Go input conversion.

PURPOSE:
  Converts a JSON calculation request into reserving.Inputs and the
  reserving.Policy to run it with. This is how the HTTP API and the batch
  CLI accept a full book without spreadsheets.

JSON SCHEMA:
  {
    "valuation_year": 2024,
    "triangle": [
      {"lob": "Motor", "ay": 2020, "dy": 4, "reported": 1000, "case_reserve": 200}
    ],
    "dev_factors":     [{"lob": "Motor", "dy": 4, "ldf": 1.10}],
    "risk_adjustment": [{"lob": "Motor", "ra_percent": 10}],
    "discount_rates":  [{"lob": "Motor", "annual_rate": 5}],
    "payment_pattern": {
      "by_lob": {"Motor": {"1": 0.5, "2": 0.5}}
    },
    "policy": {"horizon": 10, "require_ldf": false}
  }

  payment_pattern also accepts the wide form as a spreadsheet would hold it:
    {"header": ["LOB", "1", "2"], "rows": [["Motor", 0.5, 0.5]]}

KEY FEATURES:
  - Amounts are decimals; JSON numbers and numeric strings both parse
  - The policy block overrides the caller's base policy field by field
  - Structural checks only; reference data is checked by the pipeline

USAGE:
  f := factory.NewInputsFactory(cfg.Reserving.Policy())
  inputs, policy, err := f.Parse(body)
  res, err := reserving.NewPipeline(policy).Run(ctx, inputs)

SEE ALSO:
  - reserving/pipeline.go: Consumes Inputs
  - api/handlers.go: POST /api/runs
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/reserving"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// InputsJSON is the JSON representation of one calculation request.
type InputsJSON struct {
	ValuationYear  int                            `json:"valuation_year" validate:"gt=0"`
	Triangle       []reserving.TriangleRow        `json:"triangle" validate:"required,min=1"`
	Factors        []reserving.DevelopmentFactor  `json:"dev_factors"`
	RiskRates      []reserving.RiskAdjustmentRate `json:"risk_adjustment"`
	DiscountRates  []reserving.DiscountRate       `json:"discount_rates"`
	PaymentPattern PaymentPatternJSON             `json:"payment_pattern"`
	Policy         *PolicyJSON                    `json:"policy,omitempty"`
}

// PaymentPatternJSON holds either the wide table or a per-LOB map of
// offset label to share. Exactly one form must be given.
type PaymentPatternJSON struct {
	Header []string                              `json:"header,omitempty"`
	Rows   [][]Cell                              `json:"rows,omitempty"`
	ByLOB  map[string]map[string]decimal.Decimal `json:"by_lob,omitempty"`
}

// PolicyJSON overrides individual policy fields. Nil fields keep the base.
type PolicyJSON struct {
	DefaultLDF       *decimal.Decimal `json:"default_ldf,omitempty"`
	RequireLDF       *bool            `json:"require_ldf,omitempty"`
	Horizon          *int             `json:"horizon,omitempty"`
	PatternTolerance *decimal.Decimal `json:"pattern_tolerance,omitempty"`
	StrictPattern    *bool            `json:"strict_pattern,omitempty"`
}

// Cell is a wide-table cell given as a JSON string, number or null.
type Cell string

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cell(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("cell must be a string, number or null: %s", data)
		}
		*c = Cell(n.String())
	}
	return nil
}

// =============================================================================
// FACTORY
// =============================================================================

// InputsFactory converts JSON requests using a base policy.
type InputsFactory struct {
	base     reserving.Policy
	validate *validator.Validate
}

func NewInputsFactory(base reserving.Policy) *InputsFactory {
	return &InputsFactory{
		base:     base,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Parse decodes a JSON request. Unknown fields are rejected so that a
// misspelled table name does not silently become an empty table.
func (f *InputsFactory) Parse(data []byte) (reserving.Inputs, reserving.Policy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ij InputsJSON
	if err := dec.Decode(&ij); err != nil {
		return reserving.Inputs{}, reserving.Policy{}, fmt.Errorf("%w: invalid JSON: %v", reserving.ErrInvalidInput, err)
	}
	return f.FromJSON(ij)
}

// ParseFile reads and parses a JSON request file.
func (f *InputsFactory) ParseFile(path string) (reserving.Inputs, reserving.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return reserving.Inputs{}, reserving.Policy{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return f.Parse(data)
}

// FromJSON converts the schema types into pipeline inputs and policy.
func (f *InputsFactory) FromJSON(ij InputsJSON) (reserving.Inputs, reserving.Policy, error) {
	if err := f.validate.Struct(ij); err != nil {
		return reserving.Inputs{}, reserving.Policy{}, fmt.Errorf("%w: %v", reserving.ErrInvalidInput, err)
	}

	pattern, err := parsePattern(ij.PaymentPattern)
	if err != nil {
		return reserving.Inputs{}, reserving.Policy{}, err
	}

	inputs := reserving.Inputs{
		ValuationYear:  ij.ValuationYear,
		Triangle:       ij.Triangle,
		Factors:        ij.Factors,
		RiskRates:      ij.RiskRates,
		DiscountRates:  ij.DiscountRates,
		PaymentPattern: pattern,
	}

	policy := f.base
	if p := ij.Policy; p != nil {
		if p.DefaultLDF != nil {
			policy.DefaultLDF = *p.DefaultLDF
		}
		if p.RequireLDF != nil {
			policy.RequireLDF = *p.RequireLDF
		}
		if p.Horizon != nil {
			policy.Horizon = *p.Horizon
		}
		if p.PatternTolerance != nil {
			policy.PatternTolerance = *p.PatternTolerance
		}
		if p.StrictPattern != nil {
			policy.StrictPattern = *p.StrictPattern
		}
	}
	if err := policy.Validate(); err != nil {
		return reserving.Inputs{}, reserving.Policy{}, err
	}
	return inputs, policy, nil
}

// ToJSON converts inputs back into the request schema, using the wide
// pattern form. Policy is left for the caller to set.
func ToJSON(in reserving.Inputs) InputsJSON {
	rows := make([][]Cell, len(in.PaymentPattern.Rows))
	for i, r := range in.PaymentPattern.Rows {
		rows[i] = make([]Cell, len(r))
		for j, c := range r {
			rows[i][j] = Cell(c)
		}
	}
	return InputsJSON{
		ValuationYear: in.ValuationYear,
		Triangle:      in.Triangle,
		Factors:       in.Factors,
		RiskRates:     in.RiskRates,
		DiscountRates: in.DiscountRates,
		PaymentPattern: PaymentPatternJSON{
			Header: in.PaymentPattern.Header,
			Rows:   rows,
		},
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parsePattern(pj PaymentPatternJSON) (reserving.WideTable, error) {
	wide := len(pj.Header) > 0 || len(pj.Rows) > 0
	switch {
	case wide && len(pj.ByLOB) > 0:
		return reserving.WideTable{}, fmt.Errorf("%w: payment_pattern has both wide and by_lob forms", reserving.ErrAmbiguousInput)
	case wide:
		table := reserving.WideTable{Header: pj.Header, Rows: make([][]string, len(pj.Rows))}
		for i, r := range pj.Rows {
			table.Rows[i] = make([]string, len(r))
			for j, c := range r {
				table.Rows[i][j] = strings.TrimSpace(string(c))
			}
		}
		return table, nil
	case len(pj.ByLOB) > 0:
		return byLOBToWide(pj.ByLOB), nil
	}
	return reserving.WideTable{}, fmt.Errorf("%w: payment_pattern is empty", reserving.ErrInvalidInput)
}

// byLOBToWide lays the map out as a wide table: LOBs sorted, offset columns
// in numeric order, labels that are not offsets last.
func byLOBToWide(byLOB map[string]map[string]decimal.Decimal) reserving.WideTable {
	labels := make(map[string]struct{})
	lobs := make([]string, 0, len(byLOB))
	for lob, shares := range byLOB {
		lobs = append(lobs, lob)
		for label := range shares {
			labels[label] = struct{}{}
		}
	}
	sort.Strings(lobs)

	cols := make([]string, 0, len(labels))
	for label := range labels {
		cols = append(cols, label)
	}
	sort.Slice(cols, func(i, j int) bool {
		a, errA := reserving.ParseOffset(cols[i])
		b, errB := reserving.ParseOffset(cols[j])
		switch {
		case errA == nil && errB == nil:
			if a != b {
				return a < b
			}
			return cols[i] < cols[j]
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return cols[i] < cols[j]
	})

	table := reserving.WideTable{Header: append([]string{"LOB"}, cols...)}
	for _, lob := range lobs {
		row := make([]string, len(table.Header))
		row[0] = lob
		for j, label := range cols {
			if v, ok := byLOB[lob][label]; ok {
				row[j+1] = v.String()
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
