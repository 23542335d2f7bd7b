package workbook

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/validation"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the written workbooks.
const (
	SummarySheet = "Sheet1"
	ChecksSheet  = "Checks"
	YoYSheet     = "YoY"
	defaultSheet = "Sheet1"
)

// SummaryHeader is the column layout of lic_summary_<year>.xlsx.
var SummaryHeader = []string{"LOB", "AY", "Case_Reserve", "IBNR", "RA", "BEL", "LIC_Discounted"}

// WriteSummary writes the LIC summary, one row per (LOB, AY), creating the
// parent directory if needed. Amounts are written as numbers.
func WriteSummary(path string, rows []reserving.SummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeRow(f, SummarySheet, 1, toAny(SummaryHeader)); err != nil {
		return err
	}
	for i, r := range rows {
		if err := writeRow(f, SummarySheet, i+2, []any{
			string(r.LOB), r.AY,
			number(r.CaseReserve), number(r.IBNR), number(r.RA),
			number(r.BEL), number(r.LICDiscounted),
		}); err != nil {
			return err
		}
	}
	return save(f, path)
}

// ChecksHeader is the column layout of the Checks sheet.
var ChecksHeader = []string{"Check", "LOB", "AY", "Observed", "Observed_Max", "Lower", "Upper", "Passed", "Severity", "Message"}

// WriteChecklist writes a validation report: every finding on the Checks
// sheet and the per-LOB comparison on the YoY sheet.
func WriteChecklist(path string, report validation.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, ChecksSheet); err != nil {
		return err
	}
	if err := writeRow(f, ChecksSheet, 1, toAny(ChecksHeader)); err != nil {
		return err
	}
	for i, fd := range report.Findings {
		var ay any
		if fd.AY != 0 {
			ay = fd.AY
		}
		if err := writeRow(f, ChecksSheet, i+2, []any{
			fd.Check, string(fd.LOB), ay,
			nullNumber(fd.Observed), nullNumber(fd.ObservedMax),
			nullNumber(fd.Lower), nullNumber(fd.Upper),
			fd.Passed, string(fd.Severity), fd.Message,
		}); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(YoYSheet); err != nil {
		return err
	}
	header := []any{"LOB"}
	for _, m := range validation.Metrics {
		header = append(header, string(m)+"_current", string(m)+"_prior", "change_"+string(m), "flag_"+string(m))
	}
	if err := writeRow(f, YoYSheet, 1, header); err != nil {
		return err
	}
	for i, y := range report.YoY {
		row := []any{string(y.LOB)}
		for _, m := range validation.Metrics {
			mc := y.Metrics[m]
			row = append(row, nullNumber(mc.Current), nullNumber(mc.Prior), nullNumber(mc.Change), mc.Flagged)
		}
		if err := writeRow(f, YoYSheet, i+2, row); err != nil {
			return err
		}
	}
	return save(f, path)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, rowNum, err)
	}
	return nil
}

func save(f *excelize.File, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// number converts for the spreadsheet. Excel holds IEEE doubles, so this is
// the precision any reader of the file sees anyway.
func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func nullNumber(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return number(d.Decimal)
}
