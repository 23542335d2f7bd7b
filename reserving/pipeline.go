/*
pipeline.go - End-to-end LIC calculation

PURPOSE:
  Runs every stage in order over one snapshot of inputs and returns all
  intermediate tables alongside the summary, so callers can persist or
  inspect any stage.

STAGES:
  1. SelectDiagonal        claims triangle -> valuation diagonal
  2. DevelopToUltimate     diagonal + LDFs -> Ultimate, IBNR, BEL
  3. ApplyRiskAdjustment   BEL + RA rates  -> RA
  4. NormalizePattern      wide pattern    -> long pattern (+ warnings)
  5. ExpandDiscountCurve   rates + horizon -> discount factors
  6. Project + Aggregate   all of the above -> SummaryRow per (LOB, AY)

ERRORS:
  Reference, ambiguity and input errors abort the run. Pattern sum
  warnings are returned in Result.Warnings and never abort (unless the
  policy is strict).

USAGE:
  p := reserving.NewPipeline(reserving.DefaultPolicy())
  res, err := p.Run(ctx, inputs)
  for _, row := range res.Summary { ... }
*/
package reserving

import (
	"context"
	"fmt"

	"github.com/warp/reserving-engine/logger"
)

// Inputs is one snapshot of already-parsed tables.
type Inputs struct {
	ValuationYear  int
	Triangle       []TriangleRow
	Factors        []DevelopmentFactor
	RiskRates      []RiskAdjustmentRate
	DiscountRates  []DiscountRate
	PaymentPattern WideTable
}

// Result holds every stage's output.
type Result struct {
	ValuationYear int
	Horizon       int
	Diagonal      []TriangleRow
	Estimates     []Estimate
	Adjusted      []RiskAdjusted
	Pattern       PatternResult
	Curve         []DiscountFactor
	Cashflows     []Cashflow
	Summary       []SummaryRow
	Warnings      []Finding
	DefaultedLDFs int
}

// Pipeline runs the reserving stages with a fixed Policy.
type Pipeline struct {
	Policy Policy
	Log    *logger.Entry
}

// NewPipeline creates a pipeline logging through the process-wide logger.
func NewPipeline(policy Policy) *Pipeline {
	return &Pipeline{
		Policy: policy,
		Log:    logger.GetLogger().WithComponent("reserving"),
	}
}

// Run computes the LIC summary for in.ValuationYear.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Result, error) {
	if err := p.Policy.Validate(); err != nil {
		return nil, err
	}
	log := p.Log
	if log == nil {
		log = logger.GetLogger().WithComponent("reserving")
	}
	log = log.WithFields(logger.Fields{"valuation_year": in.ValuationYear})

	res := &Result{ValuationYear: in.ValuationYear}
	var err error

	res.Diagonal, err = SelectDiagonal(in.Triangle, in.ValuationYear)
	if err != nil {
		return nil, fmt.Errorf("select diagonal: %w", err)
	}
	if len(res.Diagonal) == 0 {
		log.Warn("No triangle cells on the valuation diagonal")
	}
	log.WithFields(logger.Fields{"triangle_rows": len(in.Triangle), "diagonal_rows": len(res.Diagonal)}).
		Debug("Selected valuation diagonal")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Estimates, err = DevelopToUltimate(res.Diagonal, in.Factors, p.Policy)
	if err != nil {
		return nil, fmt.Errorf("estimate ultimate: %w", err)
	}
	for _, e := range res.Estimates {
		if e.LDFDefaulted {
			res.DefaultedLDFs++
			log.WithFields(logger.Fields{"lob": e.LOB, "ay": e.AY, "dy": e.DY, "ldf": e.LDF.String()}).
				Warn("No development factor, applying default LDF")
		}
		if e.IBNR.IsNegative() {
			log.WithFields(logger.Fields{"lob": e.LOB, "ay": e.AY, "ibnr": e.IBNR.String()}).
				Info("Negative IBNR from LDF below 1")
		}
	}

	res.Adjusted, err = ApplyRiskAdjustment(res.Estimates, in.RiskRates)
	if err != nil {
		return nil, fmt.Errorf("risk adjustment: %w", err)
	}

	res.Pattern, err = NormalizePattern(in.PaymentPattern, p.Policy)
	if err != nil {
		return nil, fmt.Errorf("normalize payment pattern: %w", err)
	}
	if len(res.Pattern.DroppedColumns) > 0 {
		log.WithFields(logger.Fields{"columns": res.Pattern.DroppedColumns}).
			Debug("Dropped non-offset payment pattern columns")
	}
	for _, f := range res.Pattern.Findings {
		log.WithFields(logger.Fields{"lob": f.LOB, "sum": f.Observed.Decimal.String()}).
			Warn("Payment pattern does not sum to 1")
	}
	res.Warnings = append(res.Warnings, res.Pattern.Findings...)

	res.Horizon, err = p.Policy.ResolveHorizon(res.Pattern.Horizon)
	if err != nil {
		return nil, err
	}
	res.Curve, err = ExpandDiscountCurve(in.DiscountRates, res.Horizon)
	if err != nil {
		return nil, fmt.Errorf("expand discount curve: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Cashflows, err = Project(res.Adjusted, res.Pattern.Rows, res.Curve)
	if err != nil {
		return nil, fmt.Errorf("project cash flows: %w", err)
	}
	res.Summary, err = Aggregate(res.Adjusted, res.Cashflows)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	log.WithFields(logger.Fields{
		"summary_rows":   len(res.Summary),
		"cashflows":      len(res.Cashflows),
		"horizon":        res.Horizon,
		"defaulted_ldfs": res.DefaultedLDFs,
	}).Info("LIC calculation completed")

	return res, nil
}
