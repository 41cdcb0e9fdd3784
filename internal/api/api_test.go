package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/equity-map/internal/backend"
	"github.com/sells-group/equity-map/internal/backend/mocks"
	"github.com/sells-group/equity-map/internal/dashboard"
	"github.com/sells-group/equity-map/internal/dataset"
	"github.com/sells-group/equity-map/internal/registry"
)

func testDataset(t *testing.T, extra map[string][]float64) *dataset.Dataset {
	t.Helper()
	ids := []string{"13121001100", "13121001200", "13089020100", "13089020200", "13067030100", "13067030200"}
	races := []string{"Black", "White", "Hispanic", "Hispanic", "White", "Black"}
	features := make([]*dataset.Feature, len(ids))
	for i, id := range ids {
		x := -84.4 + 0.1*float64(i)
		values := map[string]float64{"ndi_o": float64(i + 1)}
		for field, vs := range extra {
			values[field] = vs[i]
		}
		features[i] = &dataset.Feature{
			TractID:    id,
			CountyFP:   id[2:5],
			Population: 1000,
			Race:       races[i],
			Geometry:   geom.NewPolygonFlat(geom.XY, []float64{x, 33.7, x + 0.1, 33.7, x + 0.1, 33.8, x, 33.8, x, 33.7}, []int{10}),
			Values:     values,
		}
	}
	ds, err := dataset.New(features)
	require.NoError(t, err)
	return ds
}

func newTestServer(t *testing.T) (*httptest.Server, *mocks.MockClient) {
	t.Helper()
	client := mocks.NewMockClient(t)
	client.On("Dataset", mock.Anything).Return(testDataset(t, nil), nil).Maybe()
	client.On("IndexFields", mock.Anything).Return([]string{"poverty_rate_o", "no_car_rate_o"}, nil).Maybe()

	reg := registry.MustLoad()
	srv := NewServer(reg, func() *dashboard.Dashboard {
		return dashboard.New(client, reg, dashboard.Options{Width: 320, Height: 240})
	}, Options{MaxSessions: 4, SessionTTL: time.Hour})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, client
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[struct {
		ID     string           `json:"id"`
		Status dashboard.Status `json:"status"`
	}](t, resp)
	require.NotEmpty(t, body.ID)
	assert.True(t, body.Status.Loaded)
	assert.Equal(t, "ndi_o", body.Status.ActiveField)
	return ts.URL + "/api/sessions/" + body.ID
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestCatalog(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/api/fields", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]json.RawMessage](t, resp)
	assert.Contains(t, body, "categories")
	assert.Contains(t, body, "race_groups")
}

func TestSession_UnknownID(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSession_LoadFailure(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("Dataset", mock.Anything).Return(nil, &backend.APIError{StatusCode: 503, Message: "Map data not loaded on server."})
	client.On("IndexFields", mock.Anything).Return(nil, nil).Maybe()

	reg := registry.MustLoad()
	srv := NewServer(reg, func() *dashboard.Dashboard {
		return dashboard.New(client, reg, dashboard.Options{})
	}, Options{MaxSessions: 1})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Map data not loaded on server.", body.Error)
	assert.Equal(t, dashboard.AlertLoad, body.Kind)
	assert.Equal(t, 0, srv.Sessions().Stats().Sessions)
}

func TestSession_StatusAndDelete(t *testing.T) {
	ts, _ := newTestServer(t)
	base := createSession(t, ts)

	resp := do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[dashboard.Status](t, resp)
	assert.Equal(t, "ndi_o", status.ActiveField)

	resp = do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLayers(t *testing.T) {
	ts, _ := newTestServer(t)
	base := createSession(t, ts)

	resp := do(t, http.MethodGet, base+"/layers/primary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	fc := decode[map[string]any](t, resp)
	assert.Equal(t, "FeatureCollection", fc["type"])

	resp = do(t, http.MethodGet, base+"/layers/primary/overlay", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/layers/sideways", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSelectField_Unknown(t *testing.T) {
	ts, _ := newTestServer(t)
	base := createSession(t, ts)

	resp := do(t, http.MethodPut, base+"/field", map[string]string{"field": "missing_o"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSelection_Validation(t *testing.T) {
	ts, _ := newTestServer(t)
	base := createSession(t, ts)

	resp := do(t, http.MethodPut, base+"/selection", map[string][]string{"variables": {"poverty_rate_o", "bogus"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, http.MethodGet, base, nil)
	assert.Empty(t, decode[dashboard.Status](t, resp).Selection, "failed update leaves selection unchanged")

	resp = do(t, http.MethodPut, base+"/selection", map[string][]string{"variables": {"poverty_rate_o"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[dashboard.Status](t, resp)
	assert.Equal(t, []string{"poverty_rate_o"}, status.Selection)
	assert.True(t, status.Controls.Generate)
}

func TestGenerate_InvalidName(t *testing.T) {
	ts, client := newTestServer(t)
	base := createSession(t, ts)

	do(t, http.MethodPut, base+"/selection", map[string][]string{"variables": {"poverty_rate_o"}})
	resp := do(t, http.MethodPost, base+"/indices/residential", map[string]string{"name": "bad name"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	client.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_UnknownKind(t *testing.T) {
	ts, _ := newTestServer(t)
	base := createSession(t, ts)

	resp := do(t, http.MethodPost, base+"/indices/commute", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerate_BackendError(t *testing.T) {
	ts, client := newTestServer(t)
	base := createSession(t, ts)
	client.On("Generate", mock.Anything, "activity", mock.Anything).
		Return(nil, &backend.APIError{StatusCode: 400, Message: "Unknown variable."}).Once()

	do(t, http.MethodPut, base+"/selection", map[string][]string{"variables": {"poverty_rate_o"}})
	resp := do(t, http.MethodPost, base+"/indices/activity", map[string]string{"name": "trial"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "Unknown variable.", body.Error)
	assert.Equal(t, dashboard.AlertGeneration, body.Kind)
}

// generateBoth drives a session to two active index slots.
func generateBoth(t *testing.T, base string, client *mocks.MockClient) {
	t.Helper()
	res := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	act := []float64{-2, -1, 0, 1, 2, 3}
	client.On("Generate", mock.Anything, "residential", mock.Anything).
		Return(testDataset(t, map[string][]float64{"home_RES": res}), nil).Once()
	client.On("Generate", mock.Anything, "activity", mock.Anything).
		Return(testDataset(t, map[string][]float64{"home_RES": res, "work_ACT": act}), nil).Once()

	resp := do(t, http.MethodPut, base+"/selection", map[string][]string{"variables": {"poverty_rate_o", "no_car_rate_o"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, http.MethodPost, base+"/indices/residential", map[string]string{"name": "home"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, http.MethodPost, base+"/indices/activity", map[string]string{"name": "work"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestView_ComparisonRequiresBoth(t *testing.T) {
	ts, _ := newTestServer(t)
	base := createSession(t, ts)

	resp := do(t, http.MethodPut, base+"/view", map[string]string{"mode": "comparison"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, dashboard.AlertView, decode[errorBody](t, resp).Kind)

	resp = do(t, http.MethodPut, base+"/view", map[string]string{"mode": "tilted"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflow_CompareAnalyzeExport(t *testing.T) {
	ts, client := newTestServer(t)
	base := createSession(t, ts)
	generateBoth(t, base, client)

	resp := do(t, http.MethodPut, base+"/view", map[string]string{"mode": "comparison"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPut, base+"/viewport", map[string]any{"pane": "residential", "lat": 33.75, "lng": -84.3, "zoom": 11})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/indices/residential/table", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]map[string]any](t, resp), 6)

	resp = do(t, http.MethodGet, base+"/indices/activity/histogram", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "work_ACT", decode[map[string]any](t, resp)["field"])

	resp = do(t, http.MethodPost, base+"/analysis", map[string]any{"field": "home_RES", "groups": []string{"hispanic", "black"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	analysis := decode[map[string]json.RawMessage](t, resp)
	assert.Contains(t, analysis, "table")
	assert.Contains(t, analysis, "legend")

	resp = do(t, http.MethodGet, base+"/exports/indices/residential", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dashboard.ContentTypeCSV, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "home_RES")

	resp = do(t, http.MethodGet, base+"/exports/race-stats?kind=residential", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	resp = do(t, http.MethodGet, base+"/exports/workbook", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dashboard.ContentTypeXLSX, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), dashboard.WorkbookFilename)

	resp = do(t, http.MethodGet, base+"/exports/map?width=200&height=150", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, dashboard.ContentTypePNG, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `.png"`)

	resp = do(t, http.MethodDelete, base+"/indices/activity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[dashboard.Status](t, resp)
	assert.Equal(t, "single", string(status.Mode), "resetting a slot leaves comparison view")
}

func TestExports_Preconditions(t *testing.T) {
	ts, _ := newTestServer(t)
	base := createSession(t, ts)

	resp := do(t, http.MethodGet, base+"/exports/indices/activity", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/exports/race-stats?kind=lunar", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/exports/map?width=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/exports/workbook", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestReset(t *testing.T) {
	ts, client := newTestServer(t)
	base := createSession(t, ts)
	generateBoth(t, base, client)

	resp := do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[dashboard.Status](t, resp)
	assert.Empty(t, status.Selection)
	assert.False(t, status.Controls.Compare)
}

func TestCORS_Preflight(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
