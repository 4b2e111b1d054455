package v1

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentflow/internal/catalog"
	"github.com/xiaot623/agentflow/internal/config"
	"github.com/xiaot623/agentflow/internal/domain"
	"github.com/xiaot623/agentflow/internal/feed"
	"github.com/xiaot623/agentflow/internal/lifecycle"
	"github.com/xiaot623/agentflow/internal/policy"
	"github.com/xiaot623/agentflow/internal/service"
	helpers "github.com/xiaot623/agentflow/internal/testutil"
)

func newTestServer(t *testing.T) (*echo.Echo, *service.Service) {
	t.Helper()
	pe, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	svc := service.New(service.Options{
		Catalog: catalog.Default(),
		Factory: lifecycle.NewFactory(lifecycle.FactoryConfig{TimeScale: 0.001}),
		Store:   helpers.NewTestSQLiteStore(t),
		Policy:  pe,
		Config:  &config.Config{},
	})
	t.Cleanup(svc.Close)

	e := echo.New()
	NewHandler(svc, nil).RegisterRoutes(e)
	return e, svc
}

func do(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func waitDone(t *testing.T, svc *service.Service, runKey string) {
	t.Helper()
	sess, err := svc.Session(runKey)
	require.NoError(t, err)
	select {
	case <-sess.Controller().Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run of %s did not finish", runKey)
	}
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestListScenarios(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodGet, "/v1/scenarios")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scenarios []scenarioInfo `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	keys := make([]string, 0, len(resp.Scenarios))
	for _, sc := range resp.Scenarios {
		keys = append(keys, sc.RunKey)
		assert.Positive(t, sc.Stages)
	}
	assert.ElementsMatch(t, []string{catalog.FraudCaseKey, catalog.CreditAppKey, catalog.InvoiceLiveKey}, keys)
}

func TestGetSession(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodGet, "/v1/sessions/NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/v1/sessions/"+catalog.CreditAppKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var v feed.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, catalog.CreditAppKey, v.RunKey)
	assert.Equal(t, string(domain.ControllerIdle), v.State)
	assert.NotEmpty(t, v.Stages)
}

func TestTriggerErrors(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodPost, "/v1/sessions/"+catalog.FraudCaseKey+"/cancel")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, http.MethodGet, "/v1/sessions/"+catalog.InvoiceLiveKey)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)

	rec = do(e, http.MethodPost, "/v1/sessions/"+catalog.InvoiceLiveKey+"/run")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "no streaming backend configured")

	rec = do(e, http.MethodPost, "/v1/sessions/NOPE/reset")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunThenReadJournal(t *testing.T) {
	e, svc := newTestServer(t)

	rec := do(e, http.MethodPost, "/v1/sessions/"+catalog.FraudCaseKey+"/run")
	require.Equal(t, http.StatusOK, rec.Code)
	var v feed.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.NotEmpty(t, v.RunID)
	waitDone(t, svc, catalog.FraudCaseKey)

	rec = do(e, http.MethodGet, "/v1/sessions/"+catalog.FraudCaseKey+"/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs struct {
		Runs []domain.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, v.RunID, runs.Runs[0].RunID)
	assert.Equal(t, domain.ControllerComplete, runs.Runs[0].Status)

	rec = do(e, http.MethodGet, "/v1/runs/"+v.RunID+"/events?types=run_started,run_completed")
	require.Equal(t, http.StatusOK, rec.Code)
	var events struct {
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events.Events, 2)
	assert.Equal(t, domain.EventTypeRunStarted, events.Events[0].Type)
	assert.Equal(t, domain.EventTypeRunCompleted, events.Events[1].Type)

	rec = do(e, http.MethodGet, "/v1/runs/run_missing/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamSessionEventsUntilComplete(t *testing.T) {
	e, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/sessions/" + catalog.FraudCaseKey + "/events/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	run, err := http.Post(srv.URL+"/v1/sessions/"+catalog.FraudCaseKey+"/run", "application/json", nil)
	require.NoError(t, err)
	run.Body.Close()
	require.Equal(t, http.StatusOK, run.StatusCode)

	var views []feed.View
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var v feed.View
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &v); err == nil {
				views = append(views, v)
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("event stream did not close")
	}

	require.GreaterOrEqual(t, len(views), 2)
	assert.Equal(t, string(domain.ControllerIdle), views[0].State)
	last := views[len(views)-1]
	assert.Equal(t, string(domain.ControllerComplete), last.State)
	assert.Equal(t, 100, last.Progress.Percent)
	for i := 1; i < len(views); i++ {
		assert.GreaterOrEqual(t, views[i].Progress.Percent, views[i-1].Progress.Percent)
	}
}

func TestStreamUnknownSession(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodGet, "/v1/sessions/NOPE/events/stream")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
