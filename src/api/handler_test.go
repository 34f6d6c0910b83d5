package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zvdy/emrfleet/src/dispatch"
	"github.com/zvdy/emrfleet/src/models"
)

type mockFleet struct {
	mock.Mock
}

func (m *mockFleet) ListClusters(ctx context.Context) ([]models.MergedClusterRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MergedClusterRecord), args.Error(1)
}

func (m *mockFleet) GetCluster(ctx context.Context, name string) (models.MergedClusterRecord, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(models.MergedClusterRecord), args.Error(1)
}

func (m *mockFleet) Stats(ctx context.Context) (models.FleetStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.FleetStats), args.Error(1)
}

func (m *mockFleet) StartCluster(ctx context.Context, name string) (json.RawMessage, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockFleet) TerminateCluster(ctx context.Context, name string) (json.RawMessage, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockFleet) RecentOperations(ctx context.Context, limit int) ([]models.Operation, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Operation), args.Error(1)
}

func (m *mockFleet) Ready(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newTestRouter(f *mockFleet) http.Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRouter(NewHandler(f, log), "https://console.example.com", nil, "/metrics")
}

func merged(name, state string) models.MergedClusterRecord {
	rec := models.NewMergedClusterRecord(models.ClusterConfigRecord{
		Name:        name,
		Config:      map[string]interface{}{"owner": "team-" + name},
		RegistryKey: "/p/" + name,
	})
	rec.State = state
	return rec
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestListClusters(t *testing.T) {
	f := &mockFleet{}
	f.On("ListClusters", mock.Anything).Return([]models.MergedClusterRecord{
		merged("etl", "RUNNING"),
		merged("reporting", "TERMINATED"),
	}, nil)
	h := newTestRouter(f)

	for _, path := range []string{"/clusters", "/api/v1/clusters"} {
		rec := do(t, h, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body []map[string]interface{}
		decodeBody(t, rec, &body)
		require.Len(t, body, 2)
		assert.Equal(t, "etl", body[0]["name"])
		assert.Equal(t, "/p/etl", body[0]["parameterName"])
	}
}

func TestListClusters_Filters(t *testing.T) {
	f := &mockFleet{}
	f.On("ListClusters", mock.Anything).Return([]models.MergedClusterRecord{
		merged("etl", "RUNNING"),
		merged("reporting", "TERMINATED"),
		merged("etl-backfill", "WAITING"),
	}, nil)
	h := newTestRouter(f)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"search name", "?q=ETL", []string{"etl", "etl-backfill"}},
		{"search config path", "?q=team-rep&fields=config.owner", []string{"reporting"}},
		{"state", "?state=running", []string{"etl"}},
		{"search and state", "?q=etl&state=WAITING", []string{"etl-backfill"}},
		{"active only", "?active=true", []string{"etl", "etl-backfill"}},
		{"no match", "?q=nothing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/clusters"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			var body []models.MergedClusterRecord
			decodeBody(t, rec, &body)
			names := make([]string, 0, len(body))
			for _, c := range body {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestListClusters_UpstreamUnavailable(t *testing.T) {
	f := &mockFleet{}
	f.On("ListClusters", mock.Anything).Return(nil, fmt.Errorf("registry: %w", models.ErrUpstreamUnavailable))

	rec := do(t, newTestRouter(f), http.MethodGet, "/clusters")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Contains(t, body["error"], "upstream unavailable")
}

func TestGetStats(t *testing.T) {
	f := &mockFleet{}
	f.On("Stats", mock.Anything).Return(models.FleetStats{
		Total:   2,
		ByState: map[string]models.StateCount{"RUNNING": {Count: 2, Percentage: "100.0"}},
	}, nil)
	h := newTestRouter(f)

	for _, path := range []string{"/clusters/stats", "/api/v1/stats"} {
		rec := do(t, h, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"total":2,"byState":{"RUNNING":{"count":2,"percentage":"100.0"}}}`, rec.Body.String())
	}
	f.AssertNotCalled(t, "GetCluster", mock.Anything, "stats")
}

func TestGetCluster_NamedStats(t *testing.T) {
	f := &mockFleet{}
	f.On("GetCluster", mock.Anything, "stats").Return(merged("stats", "WAITING"), nil)

	rec := do(t, newTestRouter(f), http.MethodGet, "/api/v1/clusters/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.MergedClusterRecord
	decodeBody(t, rec, &got)
	assert.Equal(t, "stats", got.Name)
	f.AssertNotCalled(t, "Stats", mock.Anything)
}

func TestGetCluster(t *testing.T) {
	f := &mockFleet{}
	f.On("GetCluster", mock.Anything, "etl").Return(merged("etl", "RUNNING"), nil)
	f.On("GetCluster", mock.Anything, "ghost").
		Return(models.MergedClusterRecord{}, fmt.Errorf("cluster ghost: %w", models.ErrClusterNotFound))
	h := newTestRouter(f)

	rec := do(t, h, http.MethodGet, "/api/v1/clusters/etl")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.MergedClusterRecord
	decodeBody(t, rec, &got)
	assert.Equal(t, "RUNNING", got.State)

	rec = do(t, h, http.MethodGet, "/clusters/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Cluster ghost not found"}`, rec.Body.String())
}

func TestStartCluster_ReturnsPayloadVerbatim(t *testing.T) {
	f := &mockFleet{}
	payload := json.RawMessage(`{"statusCode":200,"body":"queued"}`)
	f.On("StartCluster", mock.Anything, "etl").Return(payload, nil)

	rec := do(t, newTestRouter(f), http.MethodPost, "/clusters/etl/start")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(payload), rec.Body.String())
}

func TestTerminateCluster_DispatchError(t *testing.T) {
	f := &mockFleet{}
	f.On("TerminateCluster", mock.Anything, "etl").Return(nil, &dispatch.DispatchError{
		Action:        dispatch.ActionTerminate,
		Cluster:       "etl",
		FunctionError: "Unhandled",
		Payload:       []byte(`{"errorMessage":"boom"}`),
	})

	rec := do(t, newTestRouter(f), http.MethodPost, "/api/v1/clusters/etl/terminate")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Error   string          `json:"error"`
		Payload json.RawMessage `json:"payload"`
	}
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Error, "Unhandled")
	assert.JSONEq(t, `{"errorMessage":"boom"}`, string(body.Payload))
}

func TestStartCluster_Restricted(t *testing.T) {
	f := &mockFleet{}
	f.On("StartCluster", mock.Anything, "other").
		Return(nil, fmt.Errorf("cluster other: %w", models.ErrClusterNotFound))

	rec := do(t, newTestRouter(f), http.MethodPost, "/clusters/other/start")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartCluster_WrongMethod(t *testing.T) {
	rec := do(t, newTestRouter(&mockFleet{}), http.MethodGet, "/clusters/etl/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListOperations(t *testing.T) {
	f := &mockFleet{}
	op := models.NewOperation(models.OperationStart, "etl")
	f.On("RecentOperations", mock.Anything, 50).Return([]models.Operation{op}, nil)
	f.On("RecentOperations", mock.Anything, 5).Return([]models.Operation{}, nil)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodGet, "/api/v1/operations")
	require.Equal(t, http.StatusOK, rec.Code)
	var ops []models.Operation
	decodeBody(t, rec, &ops)
	require.Len(t, ops, 1)
	assert.Equal(t, op.ID, ops[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/operations?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/operations?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	f := &mockFleet{}
	f.On("Ready", mock.Anything).Return(nil).Once()
	f.On("Ready", mock.Anything).Return(errors.New("denied")).Once()
	h := newTestRouter(f)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready").Code)

	rec := do(t, h, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
}

func TestMiddleware_RequestIDAndCORS(t *testing.T) {
	f := &mockFleet{}
	f.On("ListClusters", mock.Anything).Return([]models.MergedClusterRecord{}, nil)
	h := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/clusters", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/clusters")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = do(t, h, http.MethodOptions, "/clusters/etl/start")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	f.AssertNotCalled(t, "StartCluster", mock.Anything, mock.Anything)
}
