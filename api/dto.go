/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Summary rows,
  findings and YoY rows are served as the engine defines them; run
  headers get their own DTO so storage fields stay internal.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Runs:
    RunDTO, RunResponse (POST /api/runs body is factory.InputsJSON)

  Validation:
    ValidateRequest, ValidateResponse

  Scenarios:
    ScenarioDTO, LoadScenarioRequest, LoadScenarioResponse

DECIMALS:
  Amounts are JSON strings (shopspring/decimal default) so clients never
  lose precision. Requests accept numbers or strings.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/inputs.go: InputsJSON request schema
*/
package api

import (
	"time"

	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/runner"
	"github.com/warp/reserving-engine/validation"
)

// =============================================================================
// RUNS
// =============================================================================

// RunDTO represents a calculation run in API responses.
type RunDTO struct {
	ID            string    `json:"id"`
	ValuationYear int       `json:"valuation_year"`
	Horizon       int       `json:"horizon"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RunResponse is returned when a run is created.
type RunResponse struct {
	Run        RunDTO                 `json:"run"`
	Passed     bool                   `json:"passed"`
	PriorRunID string                 `json:"prior_run_id,omitempty"`
	Summary    []reserving.SummaryRow `json:"summary"`
	Findings   []reserving.Finding    `json:"findings"`
	YoY        []validation.YoYRow    `json:"yoy"`
	Warnings   []reserving.Finding    `json:"warnings"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateRequest checks a summary without running the pipeline.
type ValidateRequest struct {
	ValuationYear int                     `json:"valuation_year" validate:"gt=0"`
	Triangle      []reserving.TriangleRow `json:"triangle"`
	Current       []reserving.SummaryRow  `json:"current" validate:"required,min=1,dive"`

	// Prior may be omitted to skip the YoY family.
	Prior []reserving.SummaryRow `json:"prior,omitempty" validate:"omitempty,dive"`
}

// ValidateResponse wraps a validation report.
type ValidateResponse struct {
	Passed   bool                `json:"passed"`
	Failures int                 `json:"failures"`
	Findings []reserving.Finding `json:"findings"`
	YoY      []validation.YoYRow `json:"yoy"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Runs        int    `json:"runs"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse lists the runs a scenario recorded, oldest first.
type LoadScenarioResponse struct {
	Scenario ScenarioDTO `json:"scenario"`
	Runs     []RunDTO    `json:"runs"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRunDTO(r reserving.Run) RunDTO {
	return RunDTO{
		ID:            r.ID,
		ValuationYear: r.ValuationYear,
		Horizon:       r.Horizon,
		Status:        string(r.Status),
		Error:         r.Error,
		Source:        r.Source,
		CreatedAt:     r.CreatedAt,
	}
}

func toRunResponse(out *runner.Outcome) RunResponse {
	resp := RunResponse{
		Run:        toRunDTO(out.Run),
		Passed:     out.Report.Passed(),
		PriorRunID: out.PriorRunID,
		Findings:   nonNil(out.Report.Findings),
		YoY:        out.Report.YoY,
		Summary:    []reserving.SummaryRow{},
		Warnings:   []reserving.Finding{},
	}
	if out.Result != nil {
		resp.Summary = out.Result.Summary
		resp.Warnings = nonNil(out.Result.Warnings)
	}
	if resp.YoY == nil {
		resp.YoY = []validation.YoYRow{}
	}
	return resp
}

func nonNil(f []reserving.Finding) []reserving.Finding {
	if f == nil {
		return []reserving.Finding{}
	}
	return f
}
