package factory_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reserving-engine/factory"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
)

const motorJSON = `{
  "valuation_year": 2024,
  "triangle": [
    {"lob": "Motor", "ay": 2020, "dy": 3, "reported": 900, "case_reserve": 250},
    {"lob": "Motor", "ay": 2020, "dy": 4, "reported": "1000", "case_reserve": "200"}
  ],
  "dev_factors": [{"lob": "Motor", "dy": 4, "ldf": 1.10}],
  "risk_adjustment": [{"lob": "Motor", "ra_percent": 10}],
  "discount_rates": [{"lob": "Motor", "annual_rate": "5"}],
  "payment_pattern": {"by_lob": {"Motor": {"2": 0.5, "1": 0.5}}}
}`

func TestParse_MotorRequest(t *testing.T) {
	// GIVEN: The worked example as JSON, amounts as numbers and strings
	// WHEN: Parsing and running the pipeline
	// THEN: LIC is 306.80

	f := factory.NewInputsFactory(reserving.DefaultPolicy())
	in, policy, err := f.Parse([]byte(motorJSON))
	require.NoError(t, err)

	assert.Equal(t, 2024, in.ValuationYear)
	require.Len(t, in.Triangle, 2)
	assert.True(t, in.Triangle[1].Reported.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, []string{"LOB", "1", "2"}, in.PaymentPattern.Header, "offsets in numeric order")
	assert.Equal(t, [][]string{{"Motor", "0.5", "0.5"}}, in.PaymentPattern.Rows)
	assert.Equal(t, reserving.DefaultPolicy(), policy)

	p := reserving.NewPipeline(policy)
	p.Log = logger.Discard().WithComponent("test")
	res, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "306.80", res.Summary[0].LICDiscounted.StringFixed(2))
}

func TestParse_WidePatternAndPolicyOverride(t *testing.T) {
	body := `{
	  "valuation_year": 2024,
	  "triangle": [{"lob": "Motor", "ay": 2020, "dy": 4, "reported": 1000, "case_reserve": 200}],
	  "payment_pattern": {"header": ["LOB", "1", "Notes"], "rows": [["Motor", 1, null]]},
	  "policy": {"horizon": 10, "require_ldf": true, "pattern_tolerance": "0.01"}
	}`

	f := factory.NewInputsFactory(reserving.DefaultPolicy())
	in, policy, err := f.Parse([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"Motor", "1", ""}}, in.PaymentPattern.Rows)
	assert.Equal(t, 10, policy.Horizon)
	assert.True(t, policy.RequireLDF)
	assert.True(t, policy.PatternTolerance.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, policy.DefaultLDF.Equal(decimal.NewFromInt(1)), "unset fields keep the base")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not JSON", `{`, reserving.ErrInvalidInput},
		{"unknown table", `{"valuation_year": 2024, "triangle": [{"lob":"M","ay":2020,"dy":4}], "dev_factor": [], "payment_pattern": {"by_lob": {"M": {"1": 1}}}}`, reserving.ErrInvalidInput},
		{"no valuation year", `{"triangle": [{"lob":"M","ay":2020,"dy":4}], "payment_pattern": {"by_lob": {"M": {"1": 1}}}}`, reserving.ErrInvalidInput},
		{"empty triangle", `{"valuation_year": 2024, "triangle": [], "payment_pattern": {"by_lob": {"M": {"1": 1}}}}`, reserving.ErrInvalidInput},
		{"no pattern", `{"valuation_year": 2024, "triangle": [{"lob":"M","ay":2020,"dy":4}]}`, reserving.ErrInvalidInput},
		{"both pattern forms", `{"valuation_year": 2024, "triangle": [{"lob":"M","ay":2020,"dy":4}], "payment_pattern": {"header": ["LOB","1"], "rows": [["M",1]], "by_lob": {"M": {"1": 1}}}}`, reserving.ErrAmbiguousInput},
		{"negative horizon", `{"valuation_year": 2024, "triangle": [{"lob":"M","ay":2020,"dy":4}], "payment_pattern": {"by_lob": {"M": {"1": 1}}}, "policy": {"horizon": -1}}`, reserving.ErrInvalidInput},
		{"horizon past cap", `{"valuation_year": 2024, "triangle": [{"lob":"M","ay":2020,"dy":4}], "payment_pattern": {"by_lob": {"M": {"1": 1}}}, "policy": {"horizon": 1099511627776}}`, reserving.ErrInvalidInput},
	}

	f := factory.NewInputsFactory(reserving.DefaultPolicy())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.Parse([]byte(tt.body))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewInputsFactory(reserving.DefaultPolicy())
	in, _, err := f.Parse([]byte(motorJSON))
	require.NoError(t, err)

	data, err := json.Marshal(factory.ToJSON(in))
	require.NoError(t, err)

	again, _, err := f.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, in.PaymentPattern, again.PaymentPattern)
	assert.Len(t, again.Triangle, 2)
	assert.True(t, again.DiscountRates[0].AnnualRate.Equal(decimal.NewFromInt(5)))
}
