package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/workbook"
)

const motorJSON = `{
  "valuation_year": 2024,
  "triangle": [{"lob": "Motor", "ay": 2020, "dy": 4, "reported": 1000, "case_reserve": 200}],
  "dev_factors": [{"lob": "Motor", "dy": 4, "ldf": 1.1}],
  "risk_adjustment": [{"lob": "Motor", "ra_percent": 10}],
  "discount_rates": [{"lob": "Motor", "annual_rate": 5}],
  "payment_pattern": {"by_lob": {"Motor": {"1": 0.5, "2": 0.5}}}
}`

func writeInputs(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "book.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runLIC(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String()
}

func TestRun_JSONInputsWritesWorkbooks(t *testing.T) {
	// GIVEN: The one-cell Motor book as JSON and no prior period
	// WHEN: Running the batch
	// THEN: Both workbooks are written and the run passes

	dir := t.TempDir()
	out := filepath.Join(dir, "output")
	inputs := writeInputs(t, dir, motorJSON)

	code, stdout := runLIC(t, "-inputs", inputs, "-out", out, "-data", dir, "-db", ":memory:")
	require.Equal(t, exitOK, code, stdout)
	assert.Contains(t, stdout, "total discounted LIC 306.80")
	assert.Contains(t, stdout, "All checks passed.")

	rows, err := workbook.ReadSummary(filepath.Join(out, workbook.SummaryFile(2024)))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "306.80", rows[0].LICDiscounted.StringFixed(2))

	assert.FileExists(t, filepath.Join(out, workbook.ChecklistFile))
}

func TestRun_PriorWorkbookFlagsRun(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir, motorJSON)

	prior := []reserving.SummaryRow{{
		LOB:           "Motor",
		AY:            2020,
		CaseReserve:   decimal.NewFromInt(100),
		IBNR:          decimal.NewFromInt(100),
		RA:            decimal.NewFromInt(20),
		BEL:           decimal.NewFromInt(200),
		LICDiscounted: decimal.RequireFromString("204.53"),
	}}
	require.NoError(t, workbook.WriteSummary(filepath.Join(dir, workbook.SummaryFile(2023)), prior))

	code, stdout := runLIC(t, "-inputs", inputs, "-out", filepath.Join(dir, "out"), "-data", dir, "-db", ":memory:")
	assert.Equal(t, exitFlagged, code)
	assert.Contains(t, stdout, "yoy_case_reserve")
}

func TestRun_ExplicitPriorFile(t *testing.T) {
	dir := t.TempDir()
	inputs := writeInputs(t, dir, motorJSON)

	code, _ := runLIC(t, "-inputs", inputs, "-out", dir, "-db", ":memory:", "-prior", filepath.Join(dir, "missing.xlsx"))
	assert.Equal(t, exitError, code)
}

func TestRun_CalculationFailure(t *testing.T) {
	dir := t.TempDir()
	body := `{
	  "valuation_year": 2024,
	  "triangle": [{"lob": "Motor", "ay": 2020, "dy": 4, "reported": 1000, "case_reserve": 200}],
	  "payment_pattern": {"by_lob": {"Motor": {"1": 1}}}
	}`
	inputs := writeInputs(t, dir, body)

	code, stdout := runLIC(t, "-inputs", inputs, "-out", dir, "-db", ":memory:")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stdout, "FAILED")
	assert.NoFileExists(t, filepath.Join(dir, workbook.SummaryFile(2024)))
}

func TestRun_BadFlag(t *testing.T) {
	code, _ := runLIC(t, "-nope")
	assert.Equal(t, exitError, code)
}
