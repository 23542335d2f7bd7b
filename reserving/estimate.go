package reserving

import (
	"fmt"
)

// =============================================================================
// ULTIMATE / BEL ESTIMATOR
// =============================================================================

type factorKey struct {
	LOB LOB
	DY  int
}

// indexFactors keys the development factors by (LOB, DY).
func indexFactors(factors []DevelopmentFactor) (map[factorKey]DevelopmentFactor, error) {
	index := make(map[factorKey]DevelopmentFactor, len(factors))
	rows := make(map[factorKey]int, len(factors))
	for i, f := range factors {
		if err := checkRow("dev_factors", i, f); err != nil {
			return nil, err
		}
		if f.LDF.IsNegative() {
			return nil, &RowError{Table: "dev_factors", Row: i,
				Err: fmt.Errorf("%w: LDF must not be negative, got %s", ErrInvalidInput, f.LDF)}
		}
		k := factorKey{LOB: f.LOB, DY: f.DY}
		if prev, ok := rows[k]; ok {
			return nil, &AmbiguousInputError{
				Table: "dev_factors",
				Key:   fmt.Sprintf("LOB %q DY %d", f.LOB, f.DY),
				Rows:  []int{prev, i},
			}
		}
		rows[k] = i
		index[k] = f
	}
	return index, nil
}

// DevelopToUltimate applies the development factor for each diagonal row's
// (LOB, DY):
//
//	Ultimate = Reported × LDF
//	IBNR     = Ultimate − Reported
//	BEL      = IBNR + CaseReserve
//
// A missing factor falls back to policy.DefaultLDF and marks the estimate
// LDFDefaulted, unless policy.RequireLDF is set. IBNR is negative when
// LDF < 1 and is reported as such.
func DevelopToUltimate(diagonal []TriangleRow, factors []DevelopmentFactor, policy Policy) ([]Estimate, error) {
	index, err := indexFactors(factors)
	if err != nil {
		return nil, err
	}

	estimates := make([]Estimate, 0, len(diagonal))
	for _, r := range diagonal {
		e := Estimate{TriangleRow: r}

		f, ok := index[factorKey{LOB: r.LOB, DY: r.DY}]
		switch {
		case ok:
			e.LDF = f.LDF
		case policy.RequireLDF:
			return nil, &MissingReferenceError{Table: "dev_factors", LOB: r.LOB, Key: fmt.Sprintf("DY=%d", r.DY)}
		default:
			e.LDF = policy.DefaultLDF
			e.LDFDefaulted = true
		}

		e.Ultimate = r.Reported.Mul(e.LDF)
		e.IBNR = e.Ultimate.Sub(r.Reported)
		e.BEL = e.IBNR.Add(r.CaseReserve)
		estimates = append(estimates, e)
	}
	return estimates, nil
}
