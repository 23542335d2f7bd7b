package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reserving-engine/logger"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/runner"
)

func TestWriteRunError(t *testing.T) {
	h := &Handler{Log: logger.Discard().WithComponent("api")}

	failed := &runner.Outcome{Run: reserving.Run{ID: "run-1", ValuationYear: 2024, Status: reserving.RunFailed, Error: "boom"}}
	completed := &runner.Outcome{Run: reserving.Run{ID: "run-2", ValuationYear: 2024, Status: reserving.RunCompleted}}

	tests := []struct {
		name    string
		out     *runner.Outcome
		err     error
		status  int
		message string
		runID   string
	}{
		{
			name:    "invariant violation returns the failed run",
			out:     failed,
			err:     fmt.Errorf("%w: BEL for LOB \"Motor\" AY 2020 differs", reserving.ErrInvariantViolation),
			status:  http.StatusUnprocessableEntity,
			message: "Calculation failed",
			runID:   "run-1",
		},
		{
			name:    "missing reference returns the failed run",
			out:     failed,
			err:     &reserving.MissingReferenceError{Table: "risk_adjustment", LOB: "Motor"},
			status:  http.StatusUnprocessableEntity,
			message: "Calculation failed",
			runID:   "run-1",
		},
		{
			name:    "data error without a run",
			err:     fmt.Errorf("%w: bad policy", reserving.ErrInvalidInput),
			status:  http.StatusUnprocessableEntity,
			message: "Calculation failed",
		},
		{
			name:    "storage error after a completed calculation",
			out:     completed,
			err:     errors.New("save run: disk full"),
			status:  http.StatusInternalServerError,
			message: "Failed to record run",
		},
		{
			name:    "cancelled calculation",
			out:     failed,
			err:     context.Canceled,
			status:  http.StatusInternalServerError,
			message: "Calculation aborted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeRunError(rec, tt.out, tt.err)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp struct {
				Error   string          `json:"error"`
				Code    string          `json:"code"`
				Details json.RawMessage `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.message, resp.Error)

			if tt.status != http.StatusUnprocessableEntity {
				assert.Empty(t, resp.Code)
				return
			}
			assert.Equal(t, "calculation_failed", resp.Code)
			if tt.runID == "" {
				return
			}

			var details struct {
				Run   RunDTO `json:"run"`
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(resp.Details, &details))
			assert.Equal(t, tt.runID, details.Run.ID)
			assert.Equal(t, "failed", details.Run.Status)
			assert.Equal(t, tt.err.Error(), details.Error)
		})
	}
}
