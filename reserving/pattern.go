/*
pattern.go - Payment pattern wide-to-long reshaping

PURPOSE:
  The payment pattern arrives as a wide table: one row per LOB, one column
  per offset year ("1", "2", ... or "1.0" when a spreadsheet formats the
  header as a number). NormalizePattern turns it into a fixed-shape
  relation of PaymentPatternRow.

COLUMN POLICY:
  - The LOB column is found by header name (case-insensitive "LOB")
  - Every other header goes through ParseOffset
  - Headers that do not parse (notes, totals, "Comment", offsets beyond
    MaxOffsetYear) are dropped and listed in PatternResult.DroppedColumns
  - Two headers with the same offset are ambiguous and fail

CELL POLICY:
  - Empty cell: no row for that (LOB, offset)
  - Non-numeric cell: ErrInvalidInput naming table, row and column

SUM CHECK:
  For each LOB, |sum(PaymentPct) - 1| must be within Policy.PatternTolerance.
  A breach becomes a warning Finding, or ErrMalformedPaymentPattern when
  Policy.StrictPattern is set.
*/
package reserving

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CheckPaymentPatternSum is the finding name for the per-LOB sum check.
const CheckPaymentPatternSum = "payment_pattern_sum"

var (
	errNotAnOffset = errors.New("not an offset year")
	maxOffset      = decimal.NewFromInt(MaxOffsetYear)
)

// PatternResult is the normalised payment pattern.
type PatternResult struct {
	Rows           []PaymentPatternRow
	DroppedColumns []string
	// Horizon is the largest offset year present.
	Horizon int
	// Sums holds sum(PaymentPct) per LOB.
	Sums     map[LOB]decimal.Decimal
	Findings []Finding
}

// ParseOffset parses a payment pattern column label into an offset year.
// Accepted: integral numbers in 1..MaxOffsetYear, optionally written with a
// fractional zero part ("3", " 3 ", "3.0").
func ParseOffset(label string) (int, error) {
	s := strings.TrimSpace(label)
	if s == "" {
		return 0, errNotAnOffset
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errNotAnOffset, label)
	}
	if !d.IsInteger() || d.LessThan(one) || d.GreaterThan(maxOffset) {
		return 0, fmt.Errorf("%w: %q", errNotAnOffset, label)
	}
	return int(d.IntPart()), nil
}

// NormalizePattern reshapes the wide payment pattern into long form.
func NormalizePattern(table WideTable, policy Policy) (PatternResult, error) {
	result := PatternResult{Sums: make(map[LOB]decimal.Decimal)}

	lobCol := -1
	for j, h := range table.Header {
		if strings.EqualFold(strings.TrimSpace(h), "LOB") {
			lobCol = j
			break
		}
	}
	if lobCol < 0 {
		return result, fmt.Errorf("%w: payment_pattern has no LOB column (header %v)", ErrInvalidInput, table.Header)
	}

	// column index -> offset year
	offsets := make(map[int]int)
	offsetCols := make(map[int]int)
	for j, h := range table.Header {
		if j == lobCol {
			continue
		}
		off, err := ParseOffset(h)
		if err != nil {
			result.DroppedColumns = append(result.DroppedColumns, h)
			continue
		}
		if prev, ok := offsetCols[off]; ok {
			return result, &AmbiguousInputError{
				Table: "payment_pattern",
				Key:   fmt.Sprintf("offset year %d", off),
				Rows:  []int{prev, j},
			}
		}
		offsetCols[off] = j
		offsets[j] = off
	}

	cols := make([]int, 0, len(offsets))
	for j := range offsets {
		cols = append(cols, j)
	}
	sort.Slice(cols, func(a, b int) bool { return offsets[cols[a]] < offsets[cols[b]] })

	var lobs []LOB
	seen := make(map[LOB]int)
	for i, row := range table.Rows {
		lob := LOB(strings.TrimSpace(cell(row, lobCol)))
		if lob == "" {
			return result, &RowError{Table: "payment_pattern", Row: i, Err: fmt.Errorf("%w: empty LOB", ErrInvalidInput)}
		}
		if prev, ok := seen[lob]; ok {
			return result, &AmbiguousInputError{Table: "payment_pattern", Key: fmt.Sprintf("LOB %q", lob), Rows: []int{prev, i}}
		}
		seen[lob] = i
		lobs = append(lobs, lob)

		sum := decimal.Zero
		for _, j := range cols {
			raw := strings.TrimSpace(cell(row, j))
			if raw == "" {
				continue
			}
			pct, err := decimal.NewFromString(raw)
			if err != nil {
				return result, &RowError{Table: "payment_pattern", Row: i,
					Err: fmt.Errorf("%w: column %q value %q is not a number", ErrInvalidInput, table.Header[j], raw)}
			}
			result.Rows = append(result.Rows, PaymentPatternRow{LOB: lob, OffsetYear: offsets[j], PaymentPct: pct})
			if offsets[j] > result.Horizon {
				result.Horizon = offsets[j]
			}
			sum = sum.Add(pct)
		}
		result.Sums[lob] = sum
	}

	sort.SliceStable(result.Rows, func(a, b int) bool {
		if result.Rows[a].LOB != result.Rows[b].LOB {
			return result.Rows[a].LOB < result.Rows[b].LOB
		}
		return result.Rows[a].OffsetYear < result.Rows[b].OffsetYear
	})

	for _, lob := range lobs {
		sum := result.Sums[lob]
		passed := sum.Sub(one).Abs().LessThanOrEqual(policy.PatternTolerance)
		if passed {
			continue
		}
		if policy.StrictPattern {
			return result, fmt.Errorf("%w: LOB %q payments sum to %s, want 1 ± %s",
				ErrMalformedPaymentPattern, lob, sum, policy.PatternTolerance)
		}
		result.Findings = append(result.Findings, Finding{
			Check:    CheckPaymentPatternSum,
			LOB:      lob,
			Observed: Null(sum),
			Lower:    Null(one.Sub(policy.PatternTolerance)),
			Upper:    Null(one.Add(policy.PatternTolerance)),
			Passed:   false,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("payment pattern for %s sums to %s, expected 1", lob, sum),
		})
	}

	return result, nil
}

func cell(row []string, j int) string {
	if j < len(row) {
		return row[j]
	}
	return ""
}
