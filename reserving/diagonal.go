package reserving

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func rowValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// checkRow runs the struct tag rules on a single input row.
func checkRow(table string, i int, row any) error {
	if err := rowValidator().Struct(row); err != nil {
		return &RowError{Table: table, Row: i, Err: fmt.Errorf("%w: %v", ErrInvalidInput, err)}
	}
	return nil
}

// =============================================================================
// DIAGONAL SELECTOR
// =============================================================================

// SelectDiagonal returns the triangle cells observed in the valuation year
// (AY + DY == year), in input order.
//
// Every row is checked, not only the selected ones: a cell without a LOB or
// with a non-positive AY is a data error. Two cells for the same (LOB, AY) on
// the diagonal make the input ambiguous and fail the selection.
func SelectDiagonal(rows []TriangleRow, year int) ([]TriangleRow, error) {
	seen := make(map[groupKey]int)
	var diagonal []TriangleRow

	for i, r := range rows {
		if err := checkRow("claims_triangle", i, r); err != nil {
			return nil, err
		}
		if r.ValuationYear() != year {
			continue
		}
		k := groupKey{LOB: r.LOB, AY: r.AY}
		if prev, ok := seen[k]; ok {
			return nil, &AmbiguousInputError{
				Table: "claims_triangle",
				Key:   fmt.Sprintf("LOB %q AY %d at valuation year %d", r.LOB, r.AY, year),
				Rows:  []int{prev, i},
			}
		}
		seen[k] = i
		diagonal = append(diagonal, r)
	}
	return diagonal, nil
}

// FilterValuationYear returns the rows with AY + DY == year without any
// checks. The reconciliation check uses it to sum raw inputs exactly as
// they were supplied.
func FilterValuationYear(rows []TriangleRow, year int) []TriangleRow {
	var out []TriangleRow
	for _, r := range rows {
		if r.ValuationYear() == year {
			out = append(out, r)
		}
	}
	return out
}
