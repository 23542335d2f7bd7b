package reserving_test

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reserving-engine/reserving"
)

// =============================================================================
// DIAGONAL SELECTOR
// =============================================================================

func TestSelectDiagonal_OnlyValuationYearCells(t *testing.T) {
	// GIVEN: A full triangle for AY 2018..2023, DY 0..5
	// WHEN: Selecting the 2023 diagonal
	// THEN: Every selected row has AY + DY == 2023, one per AY

	var rows []reserving.TriangleRow
	for ay := 2018; ay <= 2023; ay++ {
		for dy := 0; ay+dy <= 2023; dy++ {
			rows = append(rows, reserving.TriangleRow{
				LOB: "Liability", AY: ay, DY: dy,
				Reported: decimal.NewFromInt(int64(100 * (dy + 1))), CaseReserve: decimal.NewFromInt(50),
			})
		}
	}

	diag, err := reserving.SelectDiagonal(rows, 2023)
	require.NoError(t, err)
	require.Len(t, diag, 6)
	for _, r := range diag {
		assert.Equal(t, 2023, r.AY+r.DY)
	}
}

func TestSelectDiagonal_NoCellsIsEmpty(t *testing.T) {
	rows := []reserving.TriangleRow{{LOB: "Motor", AY: 2020, DY: 1}}
	diag, err := reserving.SelectDiagonal(rows, 2030)
	require.NoError(t, err)
	assert.Empty(t, diag)
}

func TestSelectDiagonal_DuplicateCellIsAmbiguous(t *testing.T) {
	// GIVEN: Two Motor AY 2020 cells on the 2024 diagonal
	// WHEN: Selecting the diagonal
	// THEN: AmbiguousInputError names both rows; nothing is averaged or picked

	rows := []reserving.TriangleRow{
		{LOB: "Motor", AY: 2020, DY: 4, Reported: d("1000"), CaseReserve: d("200")},
		{LOB: "Motor", AY: 2021, DY: 3, Reported: d("800"), CaseReserve: d("100")},
		{LOB: "Motor", AY: 2020, DY: 4, Reported: d("1010"), CaseReserve: d("190")},
	}

	_, err := reserving.SelectDiagonal(rows, 2024)
	require.ErrorIs(t, err, reserving.ErrAmbiguousInput)

	var amb *reserving.AmbiguousInputError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []int{0, 2}, amb.Rows)
	assert.Contains(t, amb.Error(), `"Motor"`)
}

func TestSelectDiagonal_SameAYDifferentLOBIsNotAmbiguous(t *testing.T) {
	rows := []reserving.TriangleRow{
		{LOB: "Motor", AY: 2020, DY: 4},
		{LOB: "Property", AY: 2020, DY: 4},
	}
	diag, err := reserving.SelectDiagonal(rows, 2024)
	require.NoError(t, err)
	assert.Len(t, diag, 2)
}

func TestSelectDiagonal_InvalidRowIsADataError(t *testing.T) {
	tests := []struct {
		name string
		row  reserving.TriangleRow
	}{
		{"missing LOB", reserving.TriangleRow{AY: 2020, DY: 4}},
		{"missing AY", reserving.TriangleRow{LOB: "Motor", DY: 4}},
		{"negative DY", reserving.TriangleRow{LOB: "Motor", AY: 2020, DY: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []reserving.TriangleRow{{LOB: "Motor", AY: 2019, DY: 5}, tt.row}
			_, err := reserving.SelectDiagonal(rows, 2024)
			require.ErrorIs(t, err, reserving.ErrInvalidInput)

			var rowErr *reserving.RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, 1, rowErr.Row)
		})
	}
}

func TestFilterValuationYear_KeepsDuplicates(t *testing.T) {
	rows := []reserving.TriangleRow{
		{LOB: "Motor", AY: 2020, DY: 4, CaseReserve: d("200")},
		{LOB: "Motor", AY: 2020, DY: 4, CaseReserve: d("10")},
		{LOB: "Motor", AY: 2021, DY: 4, CaseReserve: d("99")},
	}
	assert.Len(t, reserving.FilterValuationYear(rows, 2024), 2)
}

// =============================================================================
// ULTIMATE / BEL ESTIMATOR
// =============================================================================

func TestDevelopToUltimate_Identities(t *testing.T) {
	// GIVEN: Rows with a matching factor, a missing factor and LDF < 1
	// WHEN: Developing to ultimate
	// THEN: Ultimate = Reported×LDF, IBNR = Ultimate−Reported, BEL = IBNR+Case
	//       for every row, including the defaulted one

	diag := []reserving.TriangleRow{
		{LOB: "Motor", AY: 2020, DY: 4, Reported: d("1000"), CaseReserve: d("200")},
		{LOB: "Motor", AY: 2021, DY: 3, Reported: d("750.50"), CaseReserve: d("120.25")},
		{LOB: "Marine", AY: 2022, DY: 2, Reported: d("1000"), CaseReserve: d("80")},
	}
	factors := []reserving.DevelopmentFactor{
		{LOB: "Motor", DY: 4, LDF: d("1.10")},
		{LOB: "Marine", DY: 2, LDF: d("0.90")},
	}

	est, err := reserving.DevelopToUltimate(diag, factors, reserving.DefaultPolicy())
	require.NoError(t, err)
	require.Len(t, est, 3)

	for i, e := range est {
		assert.Equal(t, diag[i], e.TriangleRow, "one estimate per input row, same order")
		assert.True(t, e.Ultimate.Equal(e.Reported.Mul(e.LDF)))
		assert.True(t, e.IBNR.Equal(e.Ultimate.Sub(e.Reported)))
		assert.True(t, e.BEL.Equal(e.IBNR.Add(e.CaseReserve)))
	}

	assert.True(t, est[1].LDFDefaulted)
	assert.True(t, est[1].LDF.Equal(d("1")))
	assert.True(t, est[1].IBNR.IsZero())
	assert.True(t, est[1].BEL.Equal(d("120.25")))

	// LDF below 1 gives negative IBNR, reported unclamped
	assert.True(t, est[2].IBNR.Equal(d("-100")), "ibnr %s", est[2].IBNR)
	assert.True(t, est[2].BEL.Equal(d("-20")))
}

func TestDevelopToUltimate_ConfigurableDefault(t *testing.T) {
	policy := reserving.DefaultPolicy()
	policy.DefaultLDF = d("1.05")

	est, err := reserving.DevelopToUltimate(
		[]reserving.TriangleRow{{LOB: "Motor", AY: 2020, DY: 9, Reported: d("1000"), CaseReserve: d("0")}},
		nil, policy)
	require.NoError(t, err)
	assert.True(t, est[0].IBNR.Equal(d("50")))
	assert.True(t, est[0].LDFDefaulted)
}

func TestDevelopToUltimate_RequireLDF(t *testing.T) {
	policy := reserving.DefaultPolicy()
	policy.RequireLDF = true

	_, err := reserving.DevelopToUltimate(
		[]reserving.TriangleRow{{LOB: "Motor", AY: 2020, DY: 9, Reported: d("1000")}},
		[]reserving.DevelopmentFactor{{LOB: "Motor", DY: 8, LDF: d("1.01")}}, policy)

	var ref *reserving.MissingReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "dev_factors", ref.Table)
	assert.Equal(t, "DY=9", ref.Key)
}

func TestDevelopToUltimate_BadFactorTable(t *testing.T) {
	diag := []reserving.TriangleRow{{LOB: "Motor", AY: 2020, DY: 4, Reported: d("1")}}

	_, err := reserving.DevelopToUltimate(diag, []reserving.DevelopmentFactor{
		{LOB: "Motor", DY: 4, LDF: d("1.1")},
		{LOB: "Motor", DY: 4, LDF: d("1.2")},
	}, reserving.DefaultPolicy())
	assert.ErrorIs(t, err, reserving.ErrAmbiguousInput)

	_, err = reserving.DevelopToUltimate(diag, []reserving.DevelopmentFactor{
		{LOB: "Motor", DY: 4, LDF: d("-0.1")},
	}, reserving.DefaultPolicy())
	assert.ErrorIs(t, err, reserving.ErrInvalidInput)
}

// =============================================================================
// RISK ADJUSTMENT
// =============================================================================

func TestApplyRiskAdjustment(t *testing.T) {
	est := []reserving.Estimate{
		{TriangleRow: reserving.TriangleRow{LOB: "Motor", AY: 2020}, BEL: d("300")},
		{TriangleRow: reserving.TriangleRow{LOB: "Property", AY: 2021}, BEL: d("1234.5")},
	}
	rates := []reserving.RiskAdjustmentRate{
		{LOB: "Property", RAPercent: d("12.5")},
		{LOB: "Motor", RAPercent: d("10")},
	}

	adj, err := reserving.ApplyRiskAdjustment(est, rates)
	require.NoError(t, err)
	require.Len(t, adj, 2)
	assert.True(t, adj[0].RA.Equal(d("30")))
	assert.True(t, adj[1].RA.Equal(d("154.3125")))
}

func TestApplyRiskAdjustment_MissingRateFailsLoudly(t *testing.T) {
	est := []reserving.Estimate{{TriangleRow: reserving.TriangleRow{LOB: "Aviation", AY: 2020}, BEL: d("10")}}

	_, err := reserving.ApplyRiskAdjustment(est, []reserving.RiskAdjustmentRate{{LOB: "Motor", RAPercent: d("10")}})
	require.ErrorIs(t, err, reserving.ErrMissingReferenceData)
	assert.Contains(t, err.Error(), `"Aviation"`)
}

// =============================================================================
// DISCOUNT CURVE
// =============================================================================

func TestDiscountFactorAt(t *testing.T) {
	// Offset 0 is exactly 1
	assert.True(t, reserving.DiscountFactorAt(d("5"), 0).Equal(d("1")))

	// Offset k is (1 + r)^-k
	assert.True(t, reserving.DiscountFactorAt(d("5"), 2).Equal(d("0.9070294784580499")))
	for k := 1; k <= 30; k++ {
		f := reserving.DiscountFactorAt(d("5"), k)
		back := f.Mul(d("1.05").Pow(decimal.NewFromInt(int64(k))))
		approxEqual(t, d("1"), back, "0.000000000001", "k=%d", k)
	}

	// Zero rate is flat
	assert.True(t, reserving.DiscountFactorAt(decimal.Zero, 7).Equal(d("1")))
}

func TestExpandDiscountCurve(t *testing.T) {
	curve, err := reserving.ExpandDiscountCurve([]reserving.DiscountRate{
		{LOB: "Motor", AnnualRate: d("5")},
		{LOB: "Property", AnnualRate: d("2")},
	}, 4)
	require.NoError(t, err)
	require.Len(t, curve, 8)

	for i, f := range curve[:4] {
		assert.Equal(t, reserving.LOB("Motor"), f.LOB)
		assert.Equal(t, i+1, f.OffsetYear)
		assert.True(t, f.Factor.Equal(reserving.DiscountFactorAt(d("5"), i+1)))
	}
	// factors decrease with offset for a positive rate
	for i := 1; i < 4; i++ {
		assert.True(t, curve[4+i].Factor.LessThan(curve[4+i-1].Factor))
	}
}

func TestExpandDiscountCurve_LongHorizonMatchesClosedForm(t *testing.T) {
	// GIVEN: A fractional rate over the default maximum horizon
	// WHEN: Expanding the curve
	// THEN: Every factor equals the closed form at its offset

	rate := d("3.25")
	curve, err := reserving.ExpandDiscountCurve([]reserving.DiscountRate{{LOB: "Life", AnnualRate: rate}}, reserving.DefaultMaxHorizon)
	require.NoError(t, err)
	require.Len(t, curve, reserving.DefaultMaxHorizon)

	for _, f := range curve {
		want := reserving.DiscountFactorAt(rate, f.OffsetYear)
		assert.True(t, f.Factor.Equal(want), "offset %d: %s != %s", f.OffsetYear, f.Factor, want)
	}
}

func TestExpandDiscountCurve_Errors(t *testing.T) {
	_, err := reserving.ExpandDiscountCurve([]reserving.DiscountRate{{LOB: "Motor", AnnualRate: d("5")}}, 0)
	assert.ErrorIs(t, err, reserving.ErrInvalidInput)

	_, err = reserving.ExpandDiscountCurve([]reserving.DiscountRate{
		{LOB: "Motor", AnnualRate: d("5")},
		{LOB: "Motor", AnnualRate: d("6")},
	}, 10)
	assert.ErrorIs(t, err, reserving.ErrAmbiguousInput)

	_, err = reserving.ExpandDiscountCurve([]reserving.DiscountRate{{LOB: "Motor", AnnualRate: d("-100")}}, 10)
	assert.ErrorIs(t, err, reserving.ErrInvalidInput)

	_, err = reserving.ExpandDiscountCurve([]reserving.DiscountRate{{LOB: "Motor", AnnualRate: d("5")}}, reserving.MaxOffsetYear+1)
	assert.ErrorIs(t, err, reserving.ErrInvalidInput)
}

func TestPolicy_ResolveHorizon(t *testing.T) {
	p := reserving.DefaultPolicy()

	h, err := p.ResolveHorizon(7)
	require.NoError(t, err)
	assert.Equal(t, 7, h)

	p.Horizon = reserving.DefaultHorizon
	h, err = p.ResolveHorizon(7)
	require.NoError(t, err)
	assert.Equal(t, 10, h)

	p.Horizon = 0
	_, err = p.ResolveHorizon(0)
	assert.ErrorIs(t, err, reserving.ErrInvalidInput)

	// A derived horizon is capped too
	_, err = p.ResolveHorizon(reserving.DefaultMaxHorizon + 1)
	assert.ErrorIs(t, err, reserving.ErrInvalidInput)

	p.MaxHorizon = 200
	h, err = p.ResolveHorizon(150)
	require.NoError(t, err)
	assert.Equal(t, 150, h)
}

func TestPolicy_ValidateHorizonBounds(t *testing.T) {
	cases := []struct {
		name    string
		horizon int
		max     int
		ok      bool
	}{
		{"default cap", reserving.DefaultMaxHorizon, 0, true},
		{"over default cap", reserving.DefaultMaxHorizon + 1, 0, false},
		{"huge horizon", 1 << 40, 0, false},
		{"raised cap", 150, 200, true},
		{"over raised cap", 250, 200, false},
		{"negative cap", 5, -1, false},
		{"cap past offset limit", 5, reserving.MaxOffsetYear + 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := reserving.DefaultPolicy()
			p.Horizon = tc.horizon
			p.MaxHorizon = tc.max

			err := p.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, reserving.ErrInvalidInput)
		})
	}
}

// =============================================================================
// CASHFLOW PROJECTOR / AGGREGATION
// =============================================================================

func adjustedRow(lob reserving.LOB, ay int, caseReserve, ibnr, ra string) reserving.RiskAdjusted {
	c, i := d(caseReserve), d(ibnr)
	return reserving.RiskAdjusted{
		Estimate: reserving.Estimate{
			TriangleRow: reserving.TriangleRow{LOB: lob, AY: ay, CaseReserve: c},
			IBNR:        i,
			BEL:         i.Add(c),
		},
		RA: d(ra),
	}
}

func TestProject_MissingPatternForLOB(t *testing.T) {
	adj := []reserving.RiskAdjusted{adjustedRow("Cyber", 2022, "10", "5", "1")}
	curve, err := reserving.ExpandDiscountCurve([]reserving.DiscountRate{{LOB: "Cyber", AnnualRate: d("3")}}, 3)
	require.NoError(t, err)

	_, err = reserving.Project(adj, []reserving.PaymentPatternRow{{LOB: "Motor", OffsetYear: 1, PaymentPct: d("1")}}, curve)

	var ref *reserving.MissingReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "payment_pattern", ref.Table)
	assert.Equal(t, reserving.LOB("Cyber"), ref.LOB)
}

func TestAggregate_SumsDiscountedPerGroup(t *testing.T) {
	adj := []reserving.RiskAdjusted{
		adjustedRow("Motor", 2021, "100", "50", "15"),
		adjustedRow("Motor", 2022, "200", "20", "22"),
	}
	pattern := []reserving.PaymentPatternRow{
		{LOB: "Motor", OffsetYear: 1, PaymentPct: d("0.7")},
		{LOB: "Motor", OffsetYear: 2, PaymentPct: d("0.2")},
		{LOB: "Motor", OffsetYear: 3, PaymentPct: d("0.1")},
	}
	curve, err := reserving.ExpandDiscountCurve([]reserving.DiscountRate{{LOB: "Motor", AnnualRate: d("0")}}, 3)
	require.NoError(t, err)

	flows, err := reserving.Project(adj, pattern, curve)
	require.NoError(t, err)
	require.Len(t, flows, 6)

	summary, err := reserving.Aggregate(adj, flows)
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.True(t, summary[0].LICDiscounted.Equal(d("165")), "got %s", summary[0].LICDiscounted)
	assert.True(t, summary[1].LICDiscounted.Equal(d("242")), "got %s", summary[1].LICDiscounted)
}

func TestAggregate_InconsistentGroupIsAnError(t *testing.T) {
	// GIVEN: Two cash flows for Motor/2021 that disagree on IBNR
	// WHEN: Aggregating
	// THEN: ErrInconsistentGroup rather than taking the first value

	adj := []reserving.RiskAdjusted{adjustedRow("Motor", 2021, "100", "50", "15")}
	flows := []reserving.Cashflow{
		{LOB: "Motor", AY: 2021, OffsetYear: 1, CaseReserve: d("100"), IBNR: d("50"), RA: d("15"), Discounted: d("80")},
		{LOB: "Motor", AY: 2021, OffsetYear: 2, CaseReserve: d("100"), IBNR: d("51"), RA: d("15"), Discounted: d("80")},
	}

	_, err := reserving.Aggregate(adj, flows)
	require.ErrorIs(t, err, reserving.ErrInconsistentGroup)
	assert.Contains(t, err.Error(), "IBNR")
}

func TestAggregate_BELMismatchIsAnInvariantViolation(t *testing.T) {
	adj := []reserving.RiskAdjusted{adjustedRow("Motor", 2021, "100", "50", "15")}
	adj[0].BEL = d("151")
	flows := []reserving.Cashflow{
		{LOB: "Motor", AY: 2021, OffsetYear: 1, CaseReserve: d("100"), IBNR: d("50"), RA: d("15"), Discounted: d("160")},
	}

	_, err := reserving.Aggregate(adj, flows)
	require.ErrorIs(t, err, reserving.ErrInvariantViolation)
	assert.False(t, reserving.IsDataError(err))
	assert.True(t, reserving.IsCalculationError(err))
}

func TestAggregate_OrphanCashflows(t *testing.T) {
	flows := []reserving.Cashflow{{LOB: "Motor", AY: 2021, OffsetYear: 1}}
	_, err := reserving.Aggregate(nil, flows)
	assert.ErrorIs(t, err, reserving.ErrInvariantViolation)

	_, err = reserving.Aggregate([]reserving.RiskAdjusted{adjustedRow("Motor", 2021, "1", "1", "1")}, nil)
	assert.ErrorIs(t, err, reserving.ErrInvariantViolation)
}

func ExampleDiscountFactorAt() {
	f := reserving.DiscountFactorAt(decimal.NewFromInt(5), 1)
	fmt.Println(f.StringFixed(6))
	// Output: 0.952381
}
