package reserving

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FactorPrecision is the number of decimal places kept in discount factors.
const FactorPrecision int32 = 16

// =============================================================================
// DISCOUNT CURVE EXPANDER
// =============================================================================

// DiscountFactorAt returns (1 + annualPct/100)^(-offset). Offset 0 is 1.
// ExpandDiscountCurve produces the same values without recomputing the
// power for every offset.
func DiscountFactorAt(annualPct decimal.Decimal, offset int) decimal.Decimal {
	if offset == 0 {
		return one
	}
	base := one.Add(annualPct.Div(hundred))
	return one.DivRound(base.Pow(decimal.NewFromInt(int64(offset))), FactorPrecision)
}

// ExpandDiscountCurve expands one flat annual rate per LOB into discount
// factors for offsets 1..horizon. Rows are ordered by LOB (input order)
// then offset.
func ExpandDiscountCurve(rates []DiscountRate, horizon int) ([]DiscountFactor, error) {
	if horizon < 1 || horizon > MaxOffsetYear {
		return nil, fmt.Errorf("%w: discount horizon must be between 1 and %d, got %d", ErrInvalidInput, MaxOffsetYear, horizon)
	}

	rows := make(map[LOB]int, len(rates))
	curve := make([]DiscountFactor, 0, len(rates)*horizon)
	for i, r := range rates {
		if err := checkRow("discount_rates", i, r); err != nil {
			return nil, err
		}
		if prev, ok := rows[r.LOB]; ok {
			return nil, &AmbiguousInputError{Table: "discount_rates", Key: fmt.Sprintf("LOB %q", r.LOB), Rows: []int{prev, i}}
		}
		rows[r.LOB] = i
		if !one.Add(r.AnnualRate.Div(hundred)).IsPositive() {
			return nil, &RowError{Table: "discount_rates", Row: i,
				Err: fmt.Errorf("%w: annual rate %s%% leaves no positive discount base", ErrInvalidInput, r.AnnualRate)}
		}

		// power is base^k, kept exact; only the factor is rounded.
		base := one.Add(r.AnnualRate.Div(hundred))
		power := one
		for k := 1; k <= horizon; k++ {
			power = power.Mul(base)
			curve = append(curve, DiscountFactor{
				LOB:        r.LOB,
				OffsetYear: k,
				Factor:     one.DivRound(power, FactorPrecision),
			})
		}
	}
	return curve, nil
}
