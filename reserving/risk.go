package reserving

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RISK ADJUSTMENT CALCULATOR
// =============================================================================

// ApplyRiskAdjustment joins each estimate to its LOB's rate and computes
// RA = BEL × RAPercent / 100.
//
// The rate is required reference data: a LOB without one fails the run
// with a *MissingReferenceError rather than carrying a missing RA forward.
func ApplyRiskAdjustment(estimates []Estimate, rates []RiskAdjustmentRate) ([]RiskAdjusted, error) {
	index := make(map[LOB]decimal.Decimal, len(rates))
	rows := make(map[LOB]int, len(rates))
	for i, r := range rates {
		if err := checkRow("risk_adjustment", i, r); err != nil {
			return nil, err
		}
		if prev, ok := rows[r.LOB]; ok {
			return nil, &AmbiguousInputError{Table: "risk_adjustment", Key: fmt.Sprintf("LOB %q", r.LOB), Rows: []int{prev, i}}
		}
		rows[r.LOB] = i
		index[r.LOB] = r.RAPercent
	}

	out := make([]RiskAdjusted, 0, len(estimates))
	for _, e := range estimates {
		pct, ok := index[e.LOB]
		if !ok {
			return nil, &MissingReferenceError{Table: "risk_adjustment", LOB: e.LOB}
		}
		out = append(out, RiskAdjusted{
			Estimate:  e,
			RAPercent: pct,
			RA:        e.BEL.Mul(pct).Div(hundred),
		})
	}
	return out, nil
}
