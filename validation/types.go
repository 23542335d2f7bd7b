/*
Package validation reconciles and sanity-checks a produced LIC summary.

PURPOSE:
  Runs independent check families over the current summary, the raw
  triangle it came from, and the prior-period summary. Every check yields
  Findings. No check stops another and inputs are never modified: the
  reviewer sees every issue from one pass.

CHECK FAMILIES:
  1. Reconciliation: raw diagonal Case_Reserve total vs summary total,
     absolute tolerance
  2. Discount reasonableness: LIC_Discounted / (Case + IBNR + RA) per row
  3. Risk margin: RA / BEL per row
  4. Year-over-year: per LOB relative change of Case_Reserve, IBNR, RA,
     LIC_Discounted and the RA/BEL ratio against the prior period

THRESHOLDS:
  All bounds live in Thresholds. DefaultThresholds matches the original
  batch checks: tolerance 1, discount ratio [0.85, 1.05], RA/BEL
  [0.05, 0.30], YoY |change| > 0.20 flags (strict: exactly 0.20 passes).

SEE ALSO:
  - reserving/types.go: Finding, SummaryRow
  - workbook/writer.go: Writes the Report as a checklist workbook
*/
package validation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/reserving"
)

// Check names.
const (
	CheckReconciliation = "reconciliation_case_reserve"
	CheckDiscountRatio  = "discount_ratio"
	CheckRABELRatio     = "ra_bel_ratio"
	CheckYoYPrefix      = "yoy_"
	CheckYoYCoverage    = "yoy_coverage"
	CheckYoYNoPrior     = "yoy_no_prior"
)

// RatioPrecision is the number of decimal places kept in computed ratios.
const RatioPrecision int32 = 16

// =============================================================================
// THRESHOLDS
// =============================================================================

// Thresholds are the bounds every check family compares against.
type Thresholds struct {
	// ReconciliationTolerance is absolute, in currency units.
	ReconciliationTolerance decimal.Decimal

	DiscountRatioMin decimal.Decimal
	DiscountRatioMax decimal.Decimal

	RABELRatioMin decimal.Decimal
	RABELRatioMax decimal.Decimal

	// YoYChangeLimit flags |relative change| strictly greater than it.
	YoYChangeLimit decimal.Decimal
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ReconciliationTolerance: decimal.NewFromInt(1),
		DiscountRatioMin:        decimal.RequireFromString("0.85"),
		DiscountRatioMax:        decimal.RequireFromString("1.05"),
		RABELRatioMin:           decimal.RequireFromString("0.05"),
		RABELRatioMax:           decimal.RequireFromString("0.30"),
		YoYChangeLimit:          decimal.RequireFromString("0.20"),
	}
}

// =============================================================================
// YEAR-OVER-YEAR TABLE
// =============================================================================

// Metric names a year-over-year compared quantity.
type Metric string

const (
	MetricCaseReserve   Metric = "case_reserve"
	MetricIBNR          Metric = "ibnr"
	MetricRA            Metric = "ra"
	MetricLICDiscounted Metric = "lic_discounted"
	MetricRARatio       Metric = "ra_ratio"
)

// Metrics lists every compared metric in report order.
var Metrics = []Metric{MetricCaseReserve, MetricIBNR, MetricRA, MetricLICDiscounted, MetricRARatio}

// MetricChange is one metric for one LOB in both periods.
type MetricChange struct {
	Current decimal.NullDecimal `json:"current"`
	Prior   decimal.NullDecimal `json:"prior"`

	// Change is (current - prior) / prior; null when prior is zero or
	// either side is undefined.
	Change  decimal.NullDecimal `json:"change"`
	Flagged bool                `json:"flagged"`
}

// YoYRow is the year-over-year comparison for one LOB.
type YoYRow struct {
	LOB     reserving.LOB           `json:"lob"`
	Metrics map[Metric]MetricChange `json:"metrics"`
}

// Flagged reports whether any metric of the row is flagged.
func (r YoYRow) Flagged() bool {
	for _, m := range r.Metrics {
		if m.Flagged {
			return true
		}
	}
	return false
}

// =============================================================================
// REPORT
// =============================================================================

// Report is the full result of a validation run.
type Report struct {
	ValuationYear int                 `json:"valuation_year"`
	Findings      []reserving.Finding `json:"findings"`
	YoY           []YoYRow            `json:"yoy"`
}

// Passed is true when no violation-level finding failed. Warnings such as
// a malformed payment pattern do not fail the report.
func (r Report) Passed() bool {
	for _, f := range r.Findings {
		if !f.Passed && f.Severity == reserving.SeverityViolation {
			return false
		}
	}
	return true
}

// Failures returns every finding that did not pass, in report order.
func (r Report) Failures() []reserving.Finding {
	var out []reserving.Finding
	for _, f := range r.Findings {
		if !f.Passed {
			out = append(out, f)
		}
	}
	return out
}
