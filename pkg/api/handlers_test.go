package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbwo/engine/pkg/bus"
	"github.com/tbwo/engine/pkg/clock"
	"github.com/tbwo/engine/pkg/contract"
	"github.com/tbwo/engine/pkg/engine"
	"github.com/tbwo/engine/pkg/modelclient"
	"github.com/tbwo/engine/pkg/podpool"
	"github.com/tbwo/engine/pkg/tbworder"
	"github.com/tbwo/engine/pkg/tooldispatch"
	"github.com/tbwo/engine/pkg/updatestream"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	store := tbworder.NewStore()
	updates := updatestream.New()
	e := engine.New(store, contract.NewService(), bus.New(), updates, podpool.New(), modelclient.NewStub(), tooldispatch.NewStub(), clock.Real{})
	return NewServer(e, store, updates)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateWorkOrderRequiresObjective(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/workorders", CreateWorkOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndGetWorkOrder(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/workorders", CreateWorkOrderRequest{
		Objective: "ship it", TotalBudgetMinutes: 60,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created CreateWorkOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, string(tbworder.StatusDraft), created.Status)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/workorders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var wo tbworder.WorkOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wo))
	assert.Equal(t, "ship it", wo.Objective)
}

func TestGetStateMissingReturnsNotFound(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodGet, "/api/v1/workorders/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteEmptyPlanCompletes(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/workorders", CreateWorkOrderRequest{
		Objective: "nothing to do", TotalBudgetMinutes: 30,
		Plan: &PlanRequest{RequiresApproval: false},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created CreateWorkOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/api/v1/workorders/"+created.ID+"/execute", ExecuteRequest{})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/workorders/"+created.ID+"/running", nil)
		var running RunningResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &running)
		return !running.Running
	}, time.Second, 10*time.Millisecond)
}

func TestPauseWithoutLiveExecutionReturnsConflict(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/workorders", CreateWorkOrderRequest{
		Objective: "idle", TotalBudgetMinutes: 30,
	})
	var created CreateWorkOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/api/v1/workorders/"+created.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDecideCheckpointUnknownReturnsNotFound(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/workorders", CreateWorkOrderRequest{
		Objective: "x", TotalBudgetMinutes: 30,
	})
	var created CreateWorkOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/api/v1/workorders/"+created.ID+"/checkpoints/nope/decision",
		CheckpointDecisionRequest{Action: tbworder.ActionContinue})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
