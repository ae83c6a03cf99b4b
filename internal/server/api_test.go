package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tilemap/internal/journey"
	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/types"
	"github.com/MeKo-Tech/tilemap/internal/zoom"
)

type fakeRoutes struct {
	payload []byte
	calls   int
}

func (f *fakeRoutes) Route(context.Context, string, journey.TravelMode) ([]byte, error) {
	f.calls++
	return f.payload, nil
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func TestAPIZoom(t *testing.T) {
	reg := newRegistry(t, "london")
	srv := newTestServer(t, reg, nil, nil)

	resp, _ := do(t, http.MethodPost, srv.URL+"/maps/london/zoom?z=ten", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/maps/london/zoom?z=10", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no cached levels yet")

	m, ok := reg.Get("london")
	require.True(t, ok)
	for _, z := range []float64{10, 11, 12} {
		m.UpsertTile("city", z, "roadmap/city/city.png")
	}

	resp, body := do(t, http.MethodPost, srv.URL+"/maps/london/zoom?z=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res zoom.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 10.0, res.CachedZoom)

	resp, body = do(t, http.MethodPost, srv.URL+"/maps/london/zoom?z=12", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 12.0, res.CachedZoom)
	assert.Equal(t, 0.25, res.Scale)
	assert.True(t, res.Regenerated)

	resp, _ = do(t, http.MethodGet, srv.URL+"/maps/london/zoom?z=12", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/maps", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["london"]`, string(body))
}

func TestAPIJourney(t *testing.T) {
	london := types.GeoCoordinate{Lat: 51.5074, Lon: -0.1278}
	route := journey.NewRoute([]types.GeoCoordinate{london, {Lat: 51.52, Lon: -0.10}}, 2500, 600)
	payload, err := route.Encode()
	require.NoError(t, err)

	routes := &fakeRoutes{payload: payload}
	srv := newTestServer(t, newRegistry(t, "london"), nil, routes)

	resp, body := do(t, http.MethodGet, srv.URL+"/maps/london/journeys/hotelA/walking", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, payload, body)

	resp, body = do(t, http.MethodGet, srv.URL+"/maps/london/journeys/hotelA/walking?local=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var offsets []projection.LocalOffset
	require.NoError(t, json.Unmarshal(body, &offsets))
	assert.Len(t, offsets, 2)
	assert.Equal(t, 1, routes.calls, "the route is fetched once and then cached")

	resp, _ = do(t, http.MethodGet, srv.URL+"/maps/london/journeys/hotelA/flying", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIJourneyWithoutRouteSource(t *testing.T) {
	srv := newTestServer(t, newRegistry(t, "london"), nil, nil)

	resp, _ := do(t, http.MethodGet, srv.URL+"/maps/london/journeys/hotelA/driving", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAPIExtents(t *testing.T) {
	reg := newRegistry(t, "london")
	srv := newTestServer(t, reg, nil, nil)
	url := srv.URL + "/maps/london/journeys/hotelA/transit/extents"

	resp, _ := do(t, http.MethodPut, url, `{"x": 10, "y": 20, "zoom": 13}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "journey is not cached")

	resp, _ = do(t, http.MethodPut, url, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	m, ok := reg.Get("london")
	require.True(t, ok)
	m.Journeys().PutRoute("hotelA", journey.Transit, []byte(`{}`))

	resp, _ = do(t, http.MethodPut, url, `{"x": 10, "y": 20, "zoom": 13}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ext, ok := m.Journeys().GetExtents("hotelA", journey.Transit)
	require.True(t, ok)
	assert.Equal(t, journey.Extents{Point: journey.ScreenPoint{X: 10, Y: 20}, Zoom: 13}, ext)

	resp, _ = do(t, http.MethodPost, srv.URL+"/maps/london/save", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
