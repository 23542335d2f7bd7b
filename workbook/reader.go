/*
Package workbook reads the engine's input tables from .xlsx files and writes
its results back out.

PURPOSE:
  The actuarial team exchanges assumptions and results as spreadsheets.
  This package is the only place that knows about file names, sheet layout
  and header spellings; everything it returns is a plain reserving type.

FILES (under the data directory):
  claims_triangle.xlsx   LOB, AY, DY, Reported, Case_Reserve
  dev_factors.xlsx       LOB, From_DY (or DY), LDF
  risk_adjustment.xlsx   LOB, RA % (or RA_Percent)
  discount_factors.xlsx  first column LOB, second column annual rate in percent
  payment_pattern.xlsx   LOB plus one column per offset year (wide form)
  lic_summary_<year>.xlsx  prior-period summary, same layout WriteSummary emits

CONVENTIONS:
  - The first sheet of each file is read; row 1 is the header
  - Header names match case-insensitively, surrounding spaces ignored
  - Fully blank rows are skipped
  - Errors carry the file name and the worksheet row number

SEE ALSO:
  - writer.go: lic_summary_<year>.xlsx and validation_checklist.xlsx
  - cmd/lic/main.go: Batch run over a data directory
*/
package workbook

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/reserving"
	"github.com/xuri/excelize/v2"
)

// Input and output file names.
const (
	TriangleFile  = "claims_triangle.xlsx"
	FactorsFile   = "dev_factors.xlsx"
	RiskFile      = "risk_adjustment.xlsx"
	DiscountFile  = "discount_factors.xlsx"
	PatternFile   = "payment_pattern.xlsx"
	ChecklistFile = "validation_checklist.xlsx"
)

// SummaryFile is the file name of the LIC summary for a valuation year.
func SummaryFile(year int) string {
	return fmt.Sprintf("lic_summary_%d.xlsx", year)
}

// =============================================================================
// SHEET ACCESS
// =============================================================================

type sheet struct {
	table  string
	header []string
	index  map[string]int
	rows   [][]string
	first  int // worksheet row number of rows[0]
}

func readFirstSheet(path string) (*sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w: workbook has no sheets", path, reserving.ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w: sheet %q is empty", path, reserving.ErrInvalidInput, sheets[0])
	}

	s := &sheet{
		table:  filepath.Base(path),
		header: rows[0],
		index:  make(map[string]int, len(rows[0])),
		rows:   rows[1:],
		first:  2,
	}
	for j, h := range rows[0] {
		key := normalize(h)
		if _, dup := s.index[key]; !dup {
			s.index[key] = j
		}
	}
	return s, nil
}

func normalize(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// col returns the position of the first header matching any of names.
func (s *sheet) col(names ...string) (int, error) {
	for _, n := range names {
		if j, ok := s.index[normalize(n)]; ok {
			return j, nil
		}
	}
	return 0, fmt.Errorf("%s: %w: no %q column in header %v", s.table, reserving.ErrInvalidInput, names[0], s.header)
}

// cols resolves every name, failing on the first missing one.
func (s *sheet) cols(names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		j, err := s.col(n)
		if err != nil {
			return nil, err
		}
		out[i] = j
	}
	return out, nil
}

// each calls fn for every non-blank data row with its worksheet row number.
func (s *sheet) each(fn func(rowNum int, row []string) error) error {
	for i, row := range s.rows {
		if blank(row) {
			continue
		}
		if err := fn(s.first+i, row); err != nil {
			return err
		}
	}
	return nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func value(row []string, j int) string {
	if j < len(row) {
		return strings.TrimSpace(row[j])
	}
	return ""
}

func (s *sheet) rowError(rowNum int, format string, args ...any) error {
	return &reserving.RowError{
		Table: s.table,
		Row:   rowNum,
		Err:   fmt.Errorf("%w: %s", reserving.ErrInvalidInput, fmt.Sprintf(format, args...)),
	}
}

func (s *sheet) decimalAt(rowNum int, row []string, j int) (decimal.Decimal, error) {
	v := value(row, j)
	if v == "" {
		return decimal.Zero, s.rowError(rowNum, "%s is empty", s.header[j])
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, s.rowError(rowNum, "%s %q is not a number", s.header[j], v)
	}
	return d, nil
}

func (s *sheet) intAt(rowNum int, row []string, j int) (int, error) {
	d, err := s.decimalAt(rowNum, row, j)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, s.rowError(rowNum, "%s %s is not a whole number", s.header[j], d)
	}
	return int(d.IntPart()), nil
}

// =============================================================================
// READERS
// =============================================================================

// ReadTriangle reads the claims development triangle.
func ReadTriangle(path string) ([]reserving.TriangleRow, error) {
	s, err := readFirstSheet(path)
	if err != nil {
		return nil, err
	}
	c, err := s.cols("LOB", "AY", "DY", "Reported", "Case_Reserve")
	if err != nil {
		return nil, err
	}

	var out []reserving.TriangleRow
	err = s.each(func(n int, row []string) error {
		r := reserving.TriangleRow{LOB: reserving.LOB(value(row, c[0]))}
		var err error
		if r.AY, err = s.intAt(n, row, c[1]); err != nil {
			return err
		}
		if r.DY, err = s.intAt(n, row, c[2]); err != nil {
			return err
		}
		if r.Reported, err = s.decimalAt(n, row, c[3]); err != nil {
			return err
		}
		if r.CaseReserve, err = s.decimalAt(n, row, c[4]); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// ReadFactors reads the development factor table. From_DY is the column the
// actuarial team uses; DY is accepted too.
func ReadFactors(path string) ([]reserving.DevelopmentFactor, error) {
	s, err := readFirstSheet(path)
	if err != nil {
		return nil, err
	}
	lob, err := s.col("LOB")
	if err != nil {
		return nil, err
	}
	dy, err := s.col("From_DY", "DY")
	if err != nil {
		return nil, err
	}
	ldf, err := s.col("LDF")
	if err != nil {
		return nil, err
	}

	var out []reserving.DevelopmentFactor
	err = s.each(func(n int, row []string) error {
		f := reserving.DevelopmentFactor{LOB: reserving.LOB(value(row, lob))}
		var err error
		if f.DY, err = s.intAt(n, row, dy); err != nil {
			return err
		}
		if f.LDF, err = s.decimalAt(n, row, ldf); err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

// ReadRiskRates reads the risk adjustment percentages.
func ReadRiskRates(path string) ([]reserving.RiskAdjustmentRate, error) {
	s, err := readFirstSheet(path)
	if err != nil {
		return nil, err
	}
	lob, err := s.col("LOB")
	if err != nil {
		return nil, err
	}
	pct, err := s.col("RA %", "RA_Percent", "RA%")
	if err != nil {
		return nil, err
	}

	var out []reserving.RiskAdjustmentRate
	err = s.each(func(n int, row []string) error {
		p, err := s.decimalAt(n, row, pct)
		if err != nil {
			return err
		}
		out = append(out, reserving.RiskAdjustmentRate{LOB: reserving.LOB(value(row, lob)), RAPercent: p})
		return nil
	})
	return out, err
}

// ReadDiscountRates reads the discount rate table by position: the header
// text of this file varies between valuations.
func ReadDiscountRates(path string) ([]reserving.DiscountRate, error) {
	s, err := readFirstSheet(path)
	if err != nil {
		return nil, err
	}
	if len(s.header) < 2 {
		return nil, fmt.Errorf("%s: %w: expected LOB and rate columns, got %v", s.table, reserving.ErrInvalidInput, s.header)
	}

	var out []reserving.DiscountRate
	err = s.each(func(n int, row []string) error {
		r, err := s.decimalAt(n, row, 1)
		if err != nil {
			return err
		}
		out = append(out, reserving.DiscountRate{LOB: reserving.LOB(value(row, 0)), AnnualRate: r})
		return nil
	})
	return out, err
}

// ReadPaymentPattern returns the wide payment pattern as read. Column
// interpretation happens in reserving.NormalizePattern.
//
// Values to the right of the last header cell get an "unlabelled column X"
// header, so NormalizePattern drops and reports them instead of the reader
// losing them silently.
func ReadPaymentPattern(path string) (reserving.WideTable, error) {
	s, err := readFirstSheet(path)
	if err != nil {
		return reserving.WideTable{}, err
	}

	table := reserving.WideTable{Header: append([]string(nil), s.header...)}
	err = s.each(func(_ int, row []string) error {
		row = trimTrailingBlanks(row)
		for j := len(table.Header); j < len(row); j++ {
			name, err := excelize.ColumnNumberToName(j + 1)
			if err != nil {
				return err
			}
			table.Header = append(table.Header, "unlabelled column "+name)
		}
		table.Rows = append(table.Rows, row)
		return nil
	})
	if err != nil {
		return reserving.WideTable{}, fmt.Errorf("%s: %w", s.table, err)
	}

	for i, row := range table.Rows {
		padded := make([]string, len(table.Header))
		copy(padded, row)
		table.Rows[i] = padded
	}
	return table, nil
}

func trimTrailingBlanks(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}

// ReadSummary reads a LIC summary written by WriteSummary or by the
// previous tooling.
func ReadSummary(path string) ([]reserving.SummaryRow, error) {
	s, err := readFirstSheet(path)
	if err != nil {
		return nil, err
	}
	c, err := s.cols("LOB", "AY", "Case_Reserve", "IBNR", "RA", "BEL", "LIC_Discounted")
	if err != nil {
		return nil, err
	}

	var out []reserving.SummaryRow
	err = s.each(func(n int, row []string) error {
		r := reserving.SummaryRow{LOB: reserving.LOB(value(row, c[0]))}
		if r.LOB == "" {
			return s.rowError(n, "LOB is empty")
		}
		var err error
		if r.AY, err = s.intAt(n, row, c[1]); err != nil {
			return err
		}
		for k, dst := range []*decimal.Decimal{&r.CaseReserve, &r.IBNR, &r.RA, &r.BEL, &r.LICDiscounted} {
			if *dst, err = s.decimalAt(n, row, c[2+k]); err != nil {
				return err
			}
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// ReadInputs loads every input table from dir.
func ReadInputs(dir string, valuationYear int) (reserving.Inputs, error) {
	in := reserving.Inputs{ValuationYear: valuationYear}
	var err error

	if in.Triangle, err = ReadTriangle(filepath.Join(dir, TriangleFile)); err != nil {
		return in, err
	}
	if in.Factors, err = ReadFactors(filepath.Join(dir, FactorsFile)); err != nil {
		return in, err
	}
	if in.RiskRates, err = ReadRiskRates(filepath.Join(dir, RiskFile)); err != nil {
		return in, err
	}
	if in.DiscountRates, err = ReadDiscountRates(filepath.Join(dir, DiscountFile)); err != nil {
		return in, err
	}
	if in.PaymentPattern, err = ReadPaymentPattern(filepath.Join(dir, PatternFile)); err != nil {
		return in, err
	}
	return in, nil
}
