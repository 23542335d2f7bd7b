/*
scenarios.go - Demo books for testing and demonstrations

PURPOSE:

	Provides pre-built reserving books that populate the run store with
	realistic runs. Each scenario supplies the inputs for one or more
	valuation years and executes them through the runner, oldest first, so
	later years are validated against the earlier ones.

AVAILABLE SCENARIOS:

	motor-worked-example: One Motor cell, LIC 306.80 at 2024
	two-lob-book:         Motor and Property, 2023 then 2024; Property's
	                      case reserve drops by more than 20% and is flagged
	missing-reference:    Marine without a risk adjustment rate; the run is
	                      recorded as failed

HOW SCENARIOS WORK:
 1. Reset database (clear all runs)
 2. Build reserving.Inputs per valuation year
 3. Execute each through the runner (prior lookup is automatic)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "two-lob-book"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and builder
 2. The builder returns the inputs in the order they should run

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler, ResetDatabase
  - runner/runner.go: Execute
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/runner"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	build func() []reserving.Inputs
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "motor-worked-example",
			Name:        "Motor Worked Example",
			Description: "One Motor accident year at 2024: reported 1000, case 200, LDF 1.10, RA 10%, 5% discount over two years.",
			Runs:        1,
		},
		build: motorWorkedExample,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "two-lob-book",
			Name:        "Two Lines, Two Years",
			Description: "Motor and Property valued at 2023 and 2024. The 2024 run is compared with 2023 and Property's case reserve is flagged.",
			Runs:        2,
		},
		build: twoLOBBook,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "missing-reference",
			Name:        "Missing Risk Adjustment",
			Description: "A Marine book without a risk adjustment rate. The calculation stops and the run is recorded as failed.",
			Runs:        1,
		},
		build: missingReference,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the store and records the scenario's runs.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.bodyLimit())).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("unknown scenario: %s", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	runs, err := h.loadScenario(ctx, s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = s.ID

	h.Log.WithFields(logger.Fields{"scenario": s.ID, "runs": len(runs)}).Info("Scenario loaded")
	writeJSON(w, http.StatusOK, LoadScenarioResponse{Scenario: s.ScenarioDTO, Runs: runs})
}

// loadScenario executes every input set of s. A calculation failure is part
// of the scenario and only storage errors abort the load.
func (h *Handler) loadScenario(ctx context.Context, s scenario) ([]RunDTO, error) {
	var runs []RunDTO
	for _, in := range s.build() {
		out, err := h.Runner.Execute(ctx, in, runner.Options{Source: "scenario:" + s.ID})
		if err != nil && !reserving.IsCalculationError(err) {
			return nil, err
		}
		runs = append(runs, toRunDTO(out.Run))
	}
	return runs, nil
}

// =============================================================================
// BOOKS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cell(lob string, ay, dy int, reported, caseReserve string) reserving.TriangleRow {
	return reserving.TriangleRow{
		LOB:         reserving.LOB(lob),
		AY:          ay,
		DY:          dy,
		Reported:    dec(reported),
		CaseReserve: dec(caseReserve),
	}
}

func ldfs(lob string, factors ...string) []reserving.DevelopmentFactor {
	out := make([]reserving.DevelopmentFactor, len(factors))
	for dy, f := range factors {
		out[dy] = reserving.DevelopmentFactor{LOB: reserving.LOB(lob), DY: dy, LDF: dec(f)}
	}
	return out
}

func motorWorkedExample() []reserving.Inputs {
	return []reserving.Inputs{{
		ValuationYear: 2024,
		Triangle:      []reserving.TriangleRow{cell("Motor", 2020, 4, "1000", "200")},
		Factors:       []reserving.DevelopmentFactor{{LOB: "Motor", DY: 4, LDF: dec("1.10")}},
		RiskRates:     []reserving.RiskAdjustmentRate{{LOB: "Motor", RAPercent: dec("10")}},
		DiscountRates: []reserving.DiscountRate{{LOB: "Motor", AnnualRate: dec("5")}},
		PaymentPattern: reserving.WideTable{
			Header: []string{"LOB", "1", "2"},
			Rows:   [][]string{{"Motor", "0.5", "0.5"}},
		},
	}}
}

// twoLOBBook holds the full development history; each valuation year picks
// its own diagonal. Property has no LDF at DY 2 and falls back to the
// default factor in 2024.
func twoLOBBook() []reserving.Inputs {
	triangle := []reserving.TriangleRow{
		cell("Motor", 2020, 3, "950", "260"),
		cell("Motor", 2020, 4, "1000", "200"),
		cell("Motor", 2021, 2, "1300", "380"),
		cell("Motor", 2021, 3, "1500", "300"),
		cell("Motor", 2022, 1, "800", "600"),
		cell("Motor", 2022, 2, "1200", "450"),
		cell("Motor", 2023, 0, "500", "650"),
		cell("Motor", 2023, 1, "900", "700"),
		cell("Property", 2022, 1, "1500", "300"),
		cell("Property", 2022, 2, "2000", "150"),
		cell("Property", 2023, 0, "1000", "800"),
		cell("Property", 2023, 1, "1750", "500"),
	}
	factors := append(ldfs("Motor", "1.8", "1.35", "1.12", "1.04", "1.0"), ldfs("Property", "1.5", "1.25")...)

	book := func(year int) reserving.Inputs {
		return reserving.Inputs{
			ValuationYear: year,
			Triangle:      triangle,
			Factors:       factors,
			RiskRates: []reserving.RiskAdjustmentRate{
				{LOB: "Motor", RAPercent: dec("8")},
				{LOB: "Property", RAPercent: dec("12")},
			},
			DiscountRates: []reserving.DiscountRate{
				{LOB: "Motor", AnnualRate: dec("3")},
				{LOB: "Property", AnnualRate: dec("4")},
			},
			PaymentPattern: reserving.WideTable{
				Header: []string{"LOB", "1", "2", "3"},
				Rows: [][]string{
					{"Motor", "0.5", "0.3", "0.2"},
					{"Property", "0.6", "0.4", ""},
				},
			},
		}
	}
	return []reserving.Inputs{book(2023), book(2024)}
}

func missingReference() []reserving.Inputs {
	return []reserving.Inputs{{
		ValuationYear: 2024,
		Triangle: []reserving.TriangleRow{
			cell("Marine", 2022, 2, "4000", "900"),
			cell("Marine", 2023, 1, "2500", "1200"),
		},
		Factors:       ldfs("Marine", "1.6", "1.2", "1.05"),
		DiscountRates: []reserving.DiscountRate{{LOB: "Marine", AnnualRate: dec("4.5")}},
		PaymentPattern: reserving.WideTable{
			Header: []string{"LOB", "1", "2"},
			Rows:   [][]string{{"Marine", "0.7", "0.3"}},
		},
	}}
}
