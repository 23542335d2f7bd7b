package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reserving-engine/api"
	"github.com/warp/reserving-engine/reserving"
	"github.com/warp/reserving-engine/reserving/store"
	"github.com/warp/reserving-engine/validation"
)

func TestListScenarios(t *testing.T) {
	_, srv := newServer(store.NewMemory())

	rec := do(t, srv, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ids []string
	for _, s := range decode[[]api.ScenarioDTO](t, rec) {
		ids = append(ids, s.ID)
		assert.NotEmpty(t, s.Description)
	}
	assert.Equal(t, []string{"motor-worked-example", "two-lob-book", "missing-reference"}, ids)
}

func TestLoadScenario_WorkedExample(t *testing.T) {
	_, srv := newSQLiteServer(t)

	rec := do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "motor-worked-example"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.LoadScenarioResponse](t, rec)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "completed", resp.Runs[0].Status)
	assert.Equal(t, "scenario:motor-worked-example", resp.Runs[0].Source)

	rec = do(t, srv, http.MethodGet, "/api/runs/"+resp.Runs[0].ID+"/summary", "")
	summary := decode[[]reserving.SummaryRow](t, rec)
	require.Len(t, summary, 1)
	assert.Equal(t, "306.80", summary[0].LICDiscounted.StringFixed(2))
}

func TestLoadScenario_TwoLOBBook(t *testing.T) {
	// GIVEN: The two-line book valued at 2023 and 2024
	// WHEN: Loading it
	// THEN: 2023 passes without a prior; 2024 is flagged on Property's
	//       case reserve, which fell from 1100 to 650

	_, srv := newSQLiteServer(t)

	rec := do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "two-lob-book"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.LoadScenarioResponse](t, rec)
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, 2023, resp.Runs[0].ValuationYear)
	assert.Equal(t, "completed", resp.Runs[0].Status)
	assert.Equal(t, 2024, resp.Runs[1].ValuationYear)
	assert.Equal(t, "flagged", resp.Runs[1].Status)
	assert.Equal(t, 3, resp.Runs[1].Horizon)

	summary := decode[[]reserving.SummaryRow](t, do(t, srv, http.MethodGet, "/api/runs/"+resp.Runs[1].ID+"/summary", ""))
	assert.Len(t, summary, 6)

	findings := decode[[]reserving.Finding](t, do(t, srv, http.MethodGet, "/api/runs/"+resp.Runs[1].ID+"/findings", ""))
	var flagged []reserving.LOB
	for _, f := range findings {
		if f.Check == validation.CheckYoYPrefix+string(validation.MetricCaseReserve) && !f.Passed {
			flagged = append(flagged, f.LOB)
		}
	}
	assert.Equal(t, []reserving.LOB{"Property"}, flagged)

	current := decode[api.ScenarioDTO](t, do(t, srv, http.MethodGet, "/api/scenarios/current", ""))
	assert.Equal(t, "two-lob-book", current.ID)
}

func TestLoadScenario_MissingReferenceRecordsFailure(t *testing.T) {
	_, srv := newServer(store.NewMemory())

	rec := do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "missing-reference"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.LoadScenarioResponse](t, rec)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "failed", resp.Runs[0].Status)
	assert.Contains(t, resp.Runs[0].Error, "Marine")
}

func TestLoadScenario_ReplacesPreviousRuns(t *testing.T) {
	_, srv := newServer(store.NewMemory())

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "two-lob-book"}`).Code)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "motor-worked-example"}`).Code)

	runs := decode[[]api.RunDTO](t, do(t, srv, http.MethodGet, "/api/runs", ""))
	assert.Len(t, runs, 1)
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, srv := newServer(store.NewMemory())

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/scenarios/load", `{}`).Code)

	rec := do(t, srv, http.MethodGet, "/api/scenarios/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", string(rec.Body.Bytes()[:4]))
}
