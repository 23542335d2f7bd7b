/*
Package reserving provides the LIC (Liability for Incurred Claims) calculation engine.

PURPOSE:
  Turns a claims development triangle and its assumption tables into one
  LIC figure per Line of Business (LOB) and Accident Year (AY) at a
  valuation year. Every stage is a pure transform over in-memory tables;
  reading and writing files lives in the workbook and store packages.

KEY CONCEPTS IN THIS FILE (types.go):
  - TriangleRow: One development triangle cell (LOB, AY, DY)
  - DevelopmentFactor / RiskAdjustmentRate / DiscountRate: Assumption tables
  - PaymentPatternRow / DiscountFactor: Long-form schedules keyed by offset year
  - Estimate / RiskAdjusted / Cashflow: Intermediate stage outputs
  - SummaryRow: The terminal artifact, one row per (LOB, AY)
  - Finding: A reported (never fatal) check result

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for every monetary value and ratio
  2. Immutability: Stages return new slices, inputs are never modified
  3. Explicit joins: Required reference data fails loudly, optional data
     defaults through a named Policy value
  4. Invariants asserted: BEL is computed twice and must agree

PIPELINE:
  SelectDiagonal -> DevelopToUltimate -> ApplyRiskAdjustment
                                                 |
  NormalizePattern ------------------------------+--> Project -> Aggregate
  ExpandDiscountCurve ---------------------------+

SEE ALSO:
  - pipeline.go: Runs all stages in order
  - errors.go: Error taxonomy
  - validation package: Checks over the produced summary
*/
package reserving

import (
	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// LOB is a line of business label, e.g. "Motor".
type LOB string

// =============================================================================
// INPUT TABLES
// =============================================================================

// TriangleRow is one cell of the claims development triangle.
type TriangleRow struct {
	LOB         LOB             `json:"lob" validate:"required"`
	AY          int             `json:"ay" validate:"gt=0"`
	DY          int             `json:"dy" validate:"gte=0"`
	Reported    decimal.Decimal `json:"reported"`
	CaseReserve decimal.Decimal `json:"case_reserve"`
}

// ValuationYear is the calendar year the cell was observed in.
func (r TriangleRow) ValuationYear() int {
	return r.AY + r.DY
}

// DevelopmentFactor multiplies Reported at development year DY toward ultimate.
type DevelopmentFactor struct {
	LOB LOB             `json:"lob" validate:"required"`
	DY  int             `json:"dy" validate:"gte=0"`
	LDF decimal.Decimal `json:"ldf"`
}

// RiskAdjustmentRate is the per-LOB margin over BEL on a 0-100 scale.
type RiskAdjustmentRate struct {
	LOB       LOB             `json:"lob" validate:"required"`
	RAPercent decimal.Decimal `json:"ra_percent"`
}

// DiscountRate is a flat annual discount rate per LOB on a 0-100 scale.
type DiscountRate struct {
	LOB        LOB             `json:"lob" validate:"required"`
	AnnualRate decimal.Decimal `json:"annual_rate"`
}

// WideTable is the payment pattern as it arrives: one row per LOB and one
// column per offset year. Header labels are raw strings.
type WideTable struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// =============================================================================
// SCHEDULES - Long-form, keyed by (LOB, OffsetYear)
// =============================================================================

// PaymentPatternRow is the share of the total liability paid OffsetYear
// years after the valuation date.
type PaymentPatternRow struct {
	LOB        LOB             `json:"lob"`
	OffsetYear int             `json:"offset_year"`
	PaymentPct decimal.Decimal `json:"payment_pct"`
}

// DiscountFactor is the present value of one unit paid OffsetYear years out.
type DiscountFactor struct {
	LOB        LOB             `json:"lob"`
	OffsetYear int             `json:"offset_year"`
	Factor     decimal.Decimal `json:"factor"`
}

// =============================================================================
// STAGE OUTPUTS
// =============================================================================

// Estimate is a diagonal row developed to ultimate.
type Estimate struct {
	TriangleRow
	LDF          decimal.Decimal `json:"ldf"`
	LDFDefaulted bool            `json:"ldf_defaulted"`
	Ultimate     decimal.Decimal `json:"ultimate"`
	IBNR         decimal.Decimal `json:"ibnr"`
	BEL          decimal.Decimal `json:"bel"`
}

// RiskAdjusted is an Estimate with its risk margin applied.
type RiskAdjusted struct {
	Estimate
	RAPercent decimal.Decimal `json:"ra_percent"`
	RA        decimal.Decimal `json:"ra"`
}

// TotalUndiscounted is CaseReserve + IBNR + RA.
func (r RiskAdjusted) TotalUndiscounted() decimal.Decimal {
	return r.CaseReserve.Add(r.IBNR).Add(r.RA)
}

// Cashflow is one projected payment for a (LOB, AY) at an offset year.
type Cashflow struct {
	LOB               LOB             `json:"lob"`
	AY                int             `json:"ay"`
	OffsetYear        int             `json:"offset_year"`
	CaseReserve       decimal.Decimal `json:"case_reserve"`
	IBNR              decimal.Decimal `json:"ibnr"`
	RA                decimal.Decimal `json:"ra"`
	TotalUndiscounted decimal.Decimal `json:"total_lic_undiscounted"`
	PaymentPct        decimal.Decimal `json:"payment_pct"`
	Undiscounted      decimal.Decimal `json:"cashflow_undiscounted"`
	DiscountFactor    decimal.Decimal `json:"discount_factor"`
	Discounted        decimal.Decimal `json:"discounted_cashflow"`
}

// SummaryRow is the LIC result for one (LOB, AY). Rows are produced once by
// Aggregate and only read afterwards.
type SummaryRow struct {
	LOB           LOB             `json:"lob" validate:"required"`
	AY            int             `json:"ay" validate:"gt=0"`
	CaseReserve   decimal.Decimal `json:"case_reserve"`
	IBNR          decimal.Decimal `json:"ibnr"`
	RA            decimal.Decimal `json:"ra"`
	BEL           decimal.Decimal `json:"bel"`
	LICDiscounted decimal.Decimal `json:"lic_discounted"`
}

// TotalUndiscounted is CaseReserve + IBNR + RA.
func (s SummaryRow) TotalUndiscounted() decimal.Decimal {
	return s.CaseReserve.Add(s.IBNR).Add(s.RA)
}

type groupKey struct {
	LOB LOB
	AY  int
}

type offsetKey struct {
	LOB    LOB
	Offset int
}

// =============================================================================
// FINDINGS - Reported conditions, never fatal
// =============================================================================

type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityViolation Severity = "violation"
)

// Finding is the outcome of a single check. A failed finding is a report,
// not an error: the run that produced it still completes.
type Finding struct {
	Check    string              `json:"check_name"`
	LOB      LOB                 `json:"lob,omitempty"`
	AY       int                 `json:"ay,omitempty"`
	Observed decimal.NullDecimal `json:"observed"`

	// ObservedMax is set by range checks, which report min in Observed.
	ObservedMax decimal.NullDecimal `json:"observed_max"`
	Lower       decimal.NullDecimal `json:"lower"`
	Upper       decimal.NullDecimal `json:"upper"`
	Passed      bool                `json:"passed"`
	Severity    Severity            `json:"severity"`
	Message     string              `json:"message"`
}

// Null wraps d as a valid NullDecimal.
func Null(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
