/*
handlers.go - HTTP API handlers for the reserving engine

PURPOSE:
  Exposes LIC runs and the validation checks via REST API. Handles HTTP
  request/response and JSON serialization, and delegates to the runner,
  the validation engine and the run store.

ENDPOINTS:
  Runs:
    GET    /api/runs                  List runs, newest first
    POST   /api/runs                  Calculate from an InputsJSON body
    GET    /api/runs/{id}             Run header
    GET    /api/runs/{id}/summary     LIC summary rows
    GET    /api/runs/{id}/findings    Validation findings

  Validation:
    POST   /api/validate              Check a summary against a prior one

  Scenarios:
    GET    /api/scenarios             List demo books
    GET    /api/scenarios/current     Currently loaded book
    POST   /api/scenarios/load        Load a demo book

  Admin:
    POST   /api/reset                 Delete every run

REQUEST FLOW:
  1. Parse HTTP request (body capped at MaxBodyBytes)
  2. Validate input
  3. Call domain logic (runner, validation engine)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, invalid or missing reference data
  - 404: Run not found
  - 422: Calculation failed on the data or an internal invariant; the
         failed run is still recorded
  - 500: Internal errors

  A run whose checks fail is not an error: POST /api/runs answers 201
  with passed=false and status "flagged".

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo books
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/reserving-engine/factory"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/runner"
	"github.com/warp/reserving-engine/validation"
)

// DefaultMaxBodyBytes caps request bodies when the handler is built
// without configuration.
const DefaultMaxBodyBytes int64 = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the run store the API needs. Both store/sqlite.Store and
// reserving/store.Memory satisfy it.
type Store interface {
	reserving.RunStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        Store
	Runner       *runner.Runner
	Factory      *factory.InputsFactory
	Thresholds   validation.Thresholds
	Log          *logger.Entry
	MaxBodyBytes int64

	validate *validator.Validate

	// Guards currentScenario; loading a scenario resets the store.
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store with the given calculation
// policy and validation thresholds.
func NewHandler(store Store, policy reserving.Policy, thresholds validation.Thresholds) *Handler {
	run := runner.New(store, policy, thresholds)
	return &Handler{
		Store:        store,
		Runner:       run,
		Factory:      factory.NewInputsFactory(policy),
		Thresholds:   thresholds,
		Log:          logger.GetLogger().WithComponent("api"),
		MaxBodyBytes: DefaultMaxBodyBytes,
		validate:     validator.New(),
	}
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns every run, newest first.
// GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRun calculates the LIC for the posted inputs, validates it against
// the latest prior-year run and records both.
// POST /api/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, policy, err := h.Factory.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid inputs", err)
		return
	}

	out, err := h.Runner.Execute(r.Context(), in, runner.Options{Policy: &policy, Source: "api"})
	if err != nil {
		h.writeRunError(w, out, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRunResponse(out))
}

// GetRun returns one run header.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// GetRunSummary returns the LIC summary of a run ordered by LOB, AY.
// GET /api/runs/{id}/summary
func (h *Handler) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.LoadSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "Failed to load summary", err)
		return
	}
	if rows == nil {
		rows = []reserving.SummaryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetRunFindings returns the findings of a run in check order.
// GET /api/runs/{id}/findings
func (h *Handler) GetRunFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := h.Store.LoadFindings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "Failed to load findings", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(findings))
}

// =============================================================================
// VALIDATION HANDLERS
// =============================================================================

// Validate runs the check families over a posted summary. Nothing is
// recorded.
// POST /api/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var req ValidateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	engine := validation.NewEngine(h.Thresholds)
	engine.Log = h.Log
	report := engine.Run(validation.Input{
		ValuationYear: req.ValuationYear,
		Triangle:      req.Triangle,
		Current:       req.Current,
		Prior:         req.Prior,
	})

	resp := ValidateResponse{
		Passed:   report.Passed(),
		Failures: len(report.Failures()),
		Findings: nonNil(report.Findings),
		YoY:      report.YoY,
	}
	if resp.YoY == nil {
		resp.YoY = []validation.YoYRow{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase deletes every run.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) bodyLimit() int64 {
	if h.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return h.MaxBodyBytes
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, h.bodyLimit()))
}

// writeRunError maps an Execute error. Calculation errors answer 422 with
// the failed run's header alongside the error.
func (h *Handler) writeRunError(w http.ResponseWriter, out *runner.Outcome, err error) {
	if reserving.IsCalculationError(err) {
		resp := ErrorResponse{Error: "Calculation failed", Code: "calculation_failed", Details: err.Error()}
		if out != nil && out.Run.Status == reserving.RunFailed {
			resp.Details = map[string]any{"run": toRunDTO(out.Run), "error": err.Error()}
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	message := "Failed to record run"
	if out != nil && out.Run.Status == reserving.RunFailed {
		message = "Calculation aborted"
	}
	h.Log.WithError(err).Error(message)
	writeError(w, http.StatusInternalServerError, message, err)
}

func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case reserving.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Run not found", err)
	case reserving.IsDataError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			resp.Code = "body_too_large"
		}
	}
	writeJSON(w, status, resp)
}
