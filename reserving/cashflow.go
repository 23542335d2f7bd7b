/*
cashflow.go - Cash-flow projection and LIC aggregation

PURPOSE:
  Spreads each (LOB, AY) undiscounted liability over the payment pattern,
  discounts every payment, and sums the result back to one SummaryRow.

PROJECTION:
  Total_LIC_Undiscounted = CaseReserve + IBNR + RA
  for every pattern offset k of the LOB:
    Cashflow_Undiscounted = Total × PaymentPct(k)
    Discounted_Cashflow   = Cashflow_Undiscounted × DiscountFactor(k)

REQUIRED KEYS:
  - The LOB must have payment pattern rows
  - The LOB must have a discount curve
  - Every pattern offset must be inside the curve horizon
  Any gap is ErrMissingReferenceData. Offsets are never zero-filled.

AGGREGATION:
  Group by (LOB, AY). CaseReserve, IBNR and RA are carried through and must
  be identical on every cash-flow row of the group (ErrInconsistentGroup).
  LIC_Discounted = sum(Discounted_Cashflow). BEL is recomputed and must
  equal the estimator's BEL (ErrInvariantViolation).
*/
package reserving

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Project expands risk-adjusted rows into discounted cash flows.
func Project(adjusted []RiskAdjusted, pattern []PaymentPatternRow, curve []DiscountFactor) ([]Cashflow, error) {
	patternByLOB := make(map[LOB][]PaymentPatternRow)
	for _, p := range pattern {
		patternByLOB[p.LOB] = append(patternByLOB[p.LOB], p)
	}

	factors := make(map[offsetKey]decimal.Decimal, len(curve))
	horizon := make(map[LOB]int)
	for _, f := range curve {
		factors[offsetKey{LOB: f.LOB, Offset: f.OffsetYear}] = f.Factor
		if f.OffsetYear > horizon[f.LOB] {
			horizon[f.LOB] = f.OffsetYear
		}
	}

	var flows []Cashflow
	for _, a := range adjusted {
		payments, ok := patternByLOB[a.LOB]
		if !ok {
			return nil, &MissingReferenceError{Table: "payment_pattern", LOB: a.LOB}
		}
		if _, ok := horizon[a.LOB]; !ok {
			return nil, &MissingReferenceError{Table: "discount_rates", LOB: a.LOB}
		}

		total := a.TotalUndiscounted()
		for _, p := range payments {
			df, ok := factors[offsetKey{LOB: a.LOB, Offset: p.OffsetYear}]
			if !ok {
				return nil, &MissingReferenceError{
					Table: "discount_curve",
					LOB:   a.LOB,
					Key:   fmt.Sprintf("offset=%d, curve horizon=%d", p.OffsetYear, horizon[a.LOB]),
				}
			}
			undiscounted := total.Mul(p.PaymentPct)
			flows = append(flows, Cashflow{
				LOB:               a.LOB,
				AY:                a.AY,
				OffsetYear:        p.OffsetYear,
				CaseReserve:       a.CaseReserve,
				IBNR:              a.IBNR,
				RA:                a.RA,
				TotalUndiscounted: total,
				PaymentPct:        p.PaymentPct,
				Undiscounted:      undiscounted,
				DiscountFactor:    df,
				Discounted:        undiscounted.Mul(df),
			})
		}
	}
	return flows, nil
}

type group struct {
	CaseReserve decimal.Decimal
	IBNR        decimal.Decimal
	RA          decimal.Decimal
	Discounted  decimal.Decimal
}

// Aggregate groups cash flows by (LOB, AY) into the LIC summary, sorted by
// LOB then AY. adjusted supplies the estimator's BEL for the invariant check.
func Aggregate(adjusted []RiskAdjusted, flows []Cashflow) ([]SummaryRow, error) {
	groups := make(map[groupKey]*group)
	for _, cf := range flows {
		k := groupKey{LOB: cf.LOB, AY: cf.AY}
		g, ok := groups[k]
		if !ok {
			groups[k] = &group{CaseReserve: cf.CaseReserve, IBNR: cf.IBNR, RA: cf.RA, Discounted: cf.Discounted}
			continue
		}
		if err := sameValue(k, "Case_Reserve", g.CaseReserve, cf.CaseReserve); err != nil {
			return nil, err
		}
		if err := sameValue(k, "IBNR", g.IBNR, cf.IBNR); err != nil {
			return nil, err
		}
		if err := sameValue(k, "RA", g.RA, cf.RA); err != nil {
			return nil, err
		}
		g.Discounted = g.Discounted.Add(cf.Discounted)
	}

	summary := make([]SummaryRow, 0, len(adjusted))
	for _, a := range adjusted {
		k := groupKey{LOB: a.LOB, AY: a.AY}
		g, ok := groups[k]
		if !ok {
			return nil, fmt.Errorf("%w: no cash flows for LOB %q AY %d", ErrInvariantViolation, a.LOB, a.AY)
		}
		delete(groups, k)

		bel := g.IBNR.Add(g.CaseReserve)
		if !bel.Equal(a.BEL) {
			return nil, fmt.Errorf("%w: BEL for LOB %q AY %d is %s at aggregation but %s at estimation",
				ErrInvariantViolation, a.LOB, a.AY, bel, a.BEL)
		}
		summary = append(summary, SummaryRow{
			LOB:           a.LOB,
			AY:            a.AY,
			CaseReserve:   g.CaseReserve,
			IBNR:          g.IBNR,
			RA:            g.RA,
			BEL:           bel,
			LICDiscounted: g.Discounted,
		})
	}
	for k := range groups {
		return nil, fmt.Errorf("%w: cash flows for LOB %q AY %d have no estimate", ErrInvariantViolation, k.LOB, k.AY)
	}

	SortSummary(summary)
	return summary, nil
}

func sameValue(k groupKey, column string, want, got decimal.Decimal) error {
	if want.Equal(got) {
		return nil
	}
	return fmt.Errorf("%w: %s for LOB %q AY %d is both %s and %s",
		ErrInconsistentGroup, column, k.LOB, k.AY, want, got)
}

// SortSummary orders rows by LOB then AY.
func SortSummary(rows []SummaryRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].LOB != rows[j].LOB {
			return rows[i].LOB < rows[j].LOB
		}
		return rows[i].AY < rows[j].AY
	})
}
