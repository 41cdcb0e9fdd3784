package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tractsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[-84.5, 33.7], [-84.4, 33.7], [-84.4, 33.8], [-84.5, 33.8], [-84.5, 33.7]]]},
      "properties": {"Origin_tract": 13121001100, "COUNTYFP": "121", "population_x_o": 4210, "race": "Black", "ndi_o": 1.5, "test1_RES": 0.4}
    }
  ]
}`

func TestDataset_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathGeoJSON, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "equity-map/test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tractsGeoJSON))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL+"/"), WithUserAgent("equity-map/test"))
	ds, err := client.Dataset(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "13121001100", ds.Features()[0].TractID)
	assert.True(t, ds.HasField("ndi_o"))
}

func TestDataset_ServiceUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Map data not loaded on server."}`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Dataset(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "Map data not loaded on server.", apiErr.Message)
}

func TestDataset_BadBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Dataset(context.Background())
	assert.Error(t, err)
}

func TestIndexFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathIndexFields, r.URL.Path)
		_ = json.NewEncoder(w).Encode([]string{"poverty_rate_o", "no_car_rate_o"})
	}))
	defer srv.Close()

	fields, err := NewClient(WithBaseURL(srv.URL)).IndexFields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"poverty_rate_o", "no_car_rate_o"}, fields)
}

func TestGenerate_Routes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind string
		path string
	}{
		{"residential", PathResidentialIndex},
		{"activity", PathActivityIndex},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, tt.path, r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body GenerateRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "test1", body.Name)
				assert.Equal(t, "poverty and car access", body.Description)
				assert.Equal(t, []string{"poverty_rate_o"}, body.Variables)

				_, _ = w.Write([]byte(tractsGeoJSON))
			}))
			defer srv.Close()

			ds, err := NewClient(WithBaseURL(srv.URL)).Generate(context.Background(), tt.kind, GenerateRequest{
				Name:        "test1",
				Description: "poverty and car access",
				Variables:   []string{"poverty_rate_o"},
			})
			require.NoError(t, err)
			assert.True(t, ds.HasField("test1_RES"))
		})
	}
}

func TestGenerate_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := NewClient().Generate(context.Background(), "weekly", GenerateRequest{Name: "x"})
	assert.Error(t, err)
}

func TestGenerate_NoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Generate(context.Background(), "activity", GenerateRequest{Name: "x", Variables: []string{"a"}})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIError_EmptyBody(t *testing.T) {
	t.Parallel()

	err := newAPIError(http.StatusBadRequest, nil)
	assert.Equal(t, "Bad Request", err.Message)
	assert.Equal(t, "backend: status 400: Bad Request", err.Error())
}

func TestRateLimit_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]string{})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithRateLimit(0.001))
	_, err := client.IndexFields(context.Background())
	require.NoError(t, err, "first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.IndexFields(ctx)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tracts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(tractsGeoJSON), 0o600))

	s := NewStatic(path, "geojson", []string{"poverty_rate_o"})
	ds, err := s.Dataset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	fields, err := s.IndexFields(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"poverty_rate_o"}, fields)

	_, err = s.Generate(context.Background(), "activity", GenerateRequest{})
	assert.ErrorIs(t, err, ErrGenerationUnsupported)
}

func TestStatic_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewStatic(filepath.Join(t.TempDir(), "missing.geojson"), "", nil).Dataset(context.Background())
	assert.Error(t, err)
}
