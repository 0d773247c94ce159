package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvtubergen/gmaps-image/internal/compose"
	"github.com/jvtubergen/gmaps-image/internal/grid"
	"github.com/jvtubergen/gmaps-image/internal/region"
)

// stubProvider serves solid rasters of the requested raw size.
type stubProvider struct{}

func (stubProvider) Tile(ctx context.Context, req grid.Request) (*compose.Raster, error) {
	size := req.Scale * req.Resolution
	r := compose.NewRaster(size, size)
	for i := range r.Pix {
		r.Pix[i] = 128
	}
	return r, nil
}

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine := region.New(stubProvider{}, region.WithWorkers(2))
	srv := New(engine, nil, "test")
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health struct {
		Status  string    `json:"status"`
		Time    time.Time `json:"timestamp"`
		Version string    `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Less(t, time.Since(health.Time), time.Minute)
}

func TestZoomEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/zoom?lat=52.09&gsd=1.0&scale=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Zoom int     `json:"zoom"`
		GSD  float64 `json:"gsd"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Greater(t, body.Zoom, 0)
	assert.LessOrEqual(t, body.GSD, 1.0)
}

func TestZoomEndpointValidation(t *testing.T) {
	ts := setupTestServer(t)

	queries := []string{
		"",
		"lat=1",
		"lat=1&gsd=-3",
		"lat=1&gsd=1&scale=5",
		"lat=abc&gsd=1",
	}
	for _, query := range queries {
		resp, err := http.Get(ts.URL + "/zoom?" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equalf(t, http.StatusBadRequest, resp.StatusCode, "query %q", query)
	}
}

func postRegion(t *testing.T, ts *httptest.Server, body map[string]any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/region", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestRegionEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp := postRegion(t, ts, map[string]any{
		"bbox": map[string]float64{
			"north": 52.095,
			"south": 52.090,
			"east":  5.110,
			"west":  5.104,
		},
		"zoom":       14,
		"scale":      1,
		"resolution": 64,
		"margin":     4,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Region-Upper-Left"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
	assert.Positive(t, img.Bounds().Dy())
}

func TestRegionEndpointBadRequests(t *testing.T) {
	ts := setupTestServer(t)

	t.Run("invalid json", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/region", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("inverted bbox", func(t *testing.T) {
		resp := postRegion(t, ts, map[string]any{
			"bbox": map[string]float64{"north": 1, "south": 2, "east": 2, "west": 1},
			"zoom": 10,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "INVALID_REQUEST", body.Error)
	})

	t.Run("latitude out of band", func(t *testing.T) {
		resp := postRegion(t, ts, map[string]any{
			"bbox": map[string]float64{"north": 88, "south": 1, "east": 2, "west": 1},
			"zoom": 10,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
