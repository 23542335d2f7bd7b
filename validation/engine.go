package validation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
)

// Input is everything the checks read. None of it is modified.
type Input struct {
	ValuationYear int

	// Triangle is the raw claims triangle the summary was computed from.
	Triangle []reserving.TriangleRow
	Current  []reserving.SummaryRow

	// Prior is the previous period's summary. Nil skips the YoY family
	// with an informational finding.
	Prior []reserving.SummaryRow

	// Warnings from the pipeline (payment pattern sums) are carried into
	// the report unchanged.
	Warnings []reserving.Finding
}

// Engine runs the check families.
type Engine struct {
	Thresholds Thresholds
	Log        *logger.Entry
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{
		Thresholds: t,
		Log:        logger.GetLogger().WithComponent("validation"),
	}
}

// Run executes every check family and returns the complete report.
func (e *Engine) Run(in Input) Report {
	report := Report{ValuationYear: in.ValuationYear}

	report.Findings = append(report.Findings, e.reconcile(in))
	report.Findings = append(report.Findings, e.ratioCheck(CheckDiscountRatio, in.Current,
		func(s reserving.SummaryRow) (decimal.Decimal, decimal.Decimal) { return s.LICDiscounted, s.TotalUndiscounted() },
		e.Thresholds.DiscountRatioMin, e.Thresholds.DiscountRatioMax)...)
	report.Findings = append(report.Findings, e.ratioCheck(CheckRABELRatio, in.Current,
		func(s reserving.SummaryRow) (decimal.Decimal, decimal.Decimal) { return s.RA, s.BEL },
		e.Thresholds.RABELRatioMin, e.Thresholds.RABELRatioMax)...)

	yoy, findings := e.yearOverYear(in)
	report.YoY = yoy
	report.Findings = append(report.Findings, findings...)
	report.Findings = append(report.Findings, in.Warnings...)

	if e.Log != nil {
		for _, f := range report.Failures() {
			e.Log.WithFields(logger.Fields{
				"check":    f.Check,
				"lob":      f.LOB,
				"severity": f.Severity,
			}).Warn(f.Message)
		}
		e.Log.WithFields(logger.Fields{
			"findings": len(report.Findings),
			"failures": len(report.Failures()),
			"passed":   report.Passed(),
		}).Info("Validation completed")
	}
	return report
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func (e *Engine) reconcile(in Input) reserving.Finding {
	input := decimal.Zero
	for _, r := range reserving.FilterValuationYear(in.Triangle, in.ValuationYear) {
		input = input.Add(r.CaseReserve)
	}
	output := decimal.Zero
	for _, s := range in.Current {
		output = output.Add(s.CaseReserve)
	}

	diff := input.Sub(output).Abs()
	passed := diff.LessThanOrEqual(e.Thresholds.ReconciliationTolerance)

	f := reserving.Finding{
		Check:    CheckReconciliation,
		Observed: reserving.Null(diff),
		Upper:    reserving.Null(e.Thresholds.ReconciliationTolerance),
		Passed:   passed,
		Severity: reserving.SeverityInfo,
	}
	if passed {
		f.Message = fmt.Sprintf("%d case reserve reconciles: input %s, output %s",
			in.ValuationYear, input.StringFixed(2), output.StringFixed(2))
	} else {
		f.Severity = reserving.SeverityViolation
		f.Message = fmt.Sprintf("%d case reserve mismatch: input %s, output %s",
			in.ValuationYear, input.StringFixed(2), output.StringFixed(2))
	}
	return f
}

// =============================================================================
// RATIO CHECKS
// =============================================================================

// ratioCheck evaluates num/den per row against [lo, hi]. It returns one
// aggregate finding carrying the observed min and max, followed by one
// failing finding per out-of-range or undefined row.
func (e *Engine) ratioCheck(
	check string,
	rows []reserving.SummaryRow,
	parts func(reserving.SummaryRow) (num, den decimal.Decimal),
	lo, hi decimal.Decimal,
) []reserving.Finding {
	agg := reserving.Finding{
		Check:    check,
		Lower:    reserving.Null(lo),
		Upper:    reserving.Null(hi),
		Passed:   true,
		Severity: reserving.SeverityInfo,
	}
	var details []reserving.Finding
	var minR, maxR decimal.Decimal
	defined, undefined := 0, 0

	for _, s := range rows {
		num, den := parts(s)
		if den.IsZero() {
			undefined++
			details = append(details, reserving.Finding{
				Check:    check,
				LOB:      s.LOB,
				AY:       s.AY,
				Lower:    reserving.Null(lo),
				Upper:    reserving.Null(hi),
				Passed:   false,
				Severity: reserving.SeverityWarning,
				Message:  fmt.Sprintf("%s undefined for %s AY %d: zero denominator", check, s.LOB, s.AY),
			})
			continue
		}

		ratio := num.DivRound(den, RatioPrecision)
		if defined == 0 || ratio.LessThan(minR) {
			minR = ratio
		}
		if defined == 0 || ratio.GreaterThan(maxR) {
			maxR = ratio
		}
		defined++

		if ratio.LessThan(lo) || ratio.GreaterThan(hi) {
			details = append(details, reserving.Finding{
				Check:    check,
				LOB:      s.LOB,
				AY:       s.AY,
				Observed: reserving.Null(ratio),
				Lower:    reserving.Null(lo),
				Upper:    reserving.Null(hi),
				Passed:   false,
				Severity: reserving.SeverityViolation,
				Message:  fmt.Sprintf("%s for %s AY %d is %s, outside [%s, %s]", check, s.LOB, s.AY, ratio.StringFixed(3), lo, hi),
			})
		}
	}

	if defined == 0 {
		agg.Message = fmt.Sprintf("%s: no rows with a defined ratio (%d undefined)", check, undefined)
		return append([]reserving.Finding{agg}, details...)
	}

	agg.Observed = reserving.Null(minR)
	agg.ObservedMax = reserving.Null(maxR)
	agg.Passed = !minR.LessThan(lo) && !maxR.GreaterThan(hi)
	if agg.Passed {
		agg.Message = fmt.Sprintf("%s within range: %s to %s", check, minR.StringFixed(3), maxR.StringFixed(3))
	} else {
		agg.Severity = reserving.SeverityViolation
		agg.Message = fmt.Sprintf("%s out of bounds: %s to %s", check, minR.StringFixed(3), maxR.StringFixed(3))
	}
	if undefined > 0 {
		agg.Message += fmt.Sprintf(" (%d rows undefined)", undefined)
	}
	return append([]reserving.Finding{agg}, details...)
}

// =============================================================================
// YEAR-OVER-YEAR
// =============================================================================

type lobTotals struct {
	CaseReserve   decimal.Decimal
	IBNR          decimal.Decimal
	RA            decimal.Decimal
	BEL           decimal.Decimal
	LICDiscounted decimal.Decimal
}

func (t lobTotals) metric(m Metric) decimal.NullDecimal {
	switch m {
	case MetricCaseReserve:
		return reserving.Null(t.CaseReserve)
	case MetricIBNR:
		return reserving.Null(t.IBNR)
	case MetricRA:
		return reserving.Null(t.RA)
	case MetricLICDiscounted:
		return reserving.Null(t.LICDiscounted)
	case MetricRARatio:
		if t.BEL.IsZero() {
			return decimal.NullDecimal{}
		}
		return reserving.Null(t.RA.DivRound(t.BEL, RatioPrecision))
	}
	return decimal.NullDecimal{}
}

func totalsByLOB(rows []reserving.SummaryRow) map[reserving.LOB]*lobTotals {
	out := make(map[reserving.LOB]*lobTotals)
	for _, s := range rows {
		t, ok := out[s.LOB]
		if !ok {
			t = &lobTotals{}
			out[s.LOB] = t
		}
		t.CaseReserve = t.CaseReserve.Add(s.CaseReserve)
		t.IBNR = t.IBNR.Add(s.IBNR)
		t.RA = t.RA.Add(s.RA)
		t.BEL = t.BEL.Add(s.BEL)
		t.LICDiscounted = t.LICDiscounted.Add(s.LICDiscounted)
	}
	return out
}

// RelativeChange returns (current - prior) / prior, or null when prior is
// zero or either side is null.
func RelativeChange(current, prior decimal.NullDecimal) decimal.NullDecimal {
	if !current.Valid || !prior.Valid || prior.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return reserving.Null(current.Decimal.Sub(prior.Decimal).DivRound(prior.Decimal, RatioPrecision))
}

// yearOverYear aggregates each side by LOB, then joins on LOB. Aggregating
// before joining keeps a LOB's sums independent of how many accident years
// the other period holds.
func (e *Engine) yearOverYear(in Input) ([]YoYRow, []reserving.Finding) {
	if in.Prior == nil {
		return nil, []reserving.Finding{{
			Check:    CheckYoYNoPrior,
			Passed:   true,
			Severity: reserving.SeverityInfo,
			Message:  "no prior-period summary supplied, year-over-year checks skipped",
		}}
	}

	current := totalsByLOB(in.Current)
	prior := totalsByLOB(in.Prior)
	limit := e.Thresholds.YoYChangeLimit

	lobs := make([]reserving.LOB, 0, len(current)+len(prior))
	for lob := range current {
		lobs = append(lobs, lob)
	}
	for lob := range prior {
		if _, ok := current[lob]; !ok {
			lobs = append(lobs, lob)
		}
	}
	sort.Slice(lobs, func(i, j int) bool { return lobs[i] < lobs[j] })

	var rows []YoYRow
	var findings []reserving.Finding
	for _, lob := range lobs {
		cur, okCur := current[lob]
		pri, okPri := prior[lob]
		if !okCur || !okPri {
			side := "prior"
			if !okCur {
				side = "current"
			}
			findings = append(findings, reserving.Finding{
				Check:    CheckYoYCoverage,
				LOB:      lob,
				Passed:   false,
				Severity: reserving.SeverityWarning,
				Message:  fmt.Sprintf("LOB %s has no %s-period rows, not compared", lob, side),
			})
			continue
		}

		row := YoYRow{LOB: lob, Metrics: make(map[Metric]MetricChange, len(Metrics))}
		for _, m := range Metrics {
			mc := MetricChange{Current: cur.metric(m), Prior: pri.metric(m)}
			mc.Change = RelativeChange(mc.Current, mc.Prior)
			mc.Flagged = mc.Change.Valid && mc.Change.Decimal.Abs().GreaterThan(limit)
			row.Metrics[m] = mc

			f := reserving.Finding{
				Check:    CheckYoYPrefix + string(m),
				LOB:      lob,
				Observed: mc.Change,
				Lower:    reserving.Null(limit.Neg()),
				Upper:    reserving.Null(limit),
				Passed:   !mc.Flagged,
				Severity: reserving.SeverityInfo,
			}
			switch {
			case !mc.Change.Valid:
				f.Message = fmt.Sprintf("%s %s change undefined (prior is zero or missing)", lob, m)
			case mc.Flagged:
				f.Severity = reserving.SeverityViolation
				f.Message = fmt.Sprintf("%s %s changed by %s, beyond ±%s", lob, m, mc.Change.Decimal.StringFixed(4), limit)
			default:
				f.Message = fmt.Sprintf("%s %s changed by %s", lob, m, mc.Change.Decimal.StringFixed(4))
			}
			findings = append(findings, f)
		}
		rows = append(rows, row)
	}
	return rows, findings
}
