package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MeKo-Tech/tilemap/internal/geomap"
	"github.com/MeKo-Tech/tilemap/internal/journey"
	"github.com/MeKo-Tech/tilemap/internal/store"
	"github.com/MeKo-Tech/tilemap/internal/zoom"
)

// API exposes zoom changes and journey lookups of the registry's maps.
type API struct {
	maps   *geomap.Registry
	routes geomap.RouteSource
	logger *slog.Logger
}

// NewAPI creates the map API. routes may be nil; journey misses then fail
// with 503.
func NewAPI(maps *geomap.Registry, routes geomap.RouteSource, logger *slog.Logger) *API {
	return &API{maps: maps, routes: routes, logger: logger}
}

func (a *API) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

type errorResponse struct {
	Error string `json:"error"`
}

type extentsRequest struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom int     `json:"zoom"`
}

// openMap resolves the {map} path value to a loaded or saved map, writing the
// error response itself when it fails. Unknown names get 404 and are never
// created.
func (a *API) openMap(w http.ResponseWriter, r *http.Request) (*geomap.Map, bool) {
	name := r.PathValue("map")
	m, err := a.maps.OpenExisting(r.Context(), name)
	switch {
	case errors.Is(err, store.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return nil, false
	case errors.Is(err, geomap.ErrUnknownMap):
		writeJSON(w, http.StatusNotFound, errorResponse{err.Error()})
		return nil, false
	case err != nil:
		a.log().Error("failed to open map", "map", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{"failed to open map"})
		return nil, false
	}
	return m, true
}

// Zoom handles POST /maps/{map}/zoom?z=.
func (a *API) Zoom(w http.ResponseWriter, r *http.Request) {
	z, err := strconv.ParseFloat(r.URL.Query().Get("z"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"query parameter z must be a number"})
		return
	}
	m, ok := a.openMap(w, r)
	if !ok {
		return
	}

	res, err := m.SetZoom(z)
	switch {
	case errors.Is(err, zoom.ErrRegenerating):
		writeJSON(w, http.StatusConflict, errorResponse{err.Error()})
	case errors.Is(err, zoom.ErrNoCachedLevels):
		writeJSON(w, http.StatusNotFound, errorResponse{err.Error()})
	case err != nil:
		a.log().Error("zoom change failed", "map", m.Name(), "zoom", z, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// Journey handles GET /maps/{map}/journeys/{dest}/{mode}. The cached route
// payload is returned as is; ?local=1 returns it as offsets around the map
// origin instead.
func (a *API) Journey(w http.ResponseWriter, r *http.Request) {
	mode, err := journey.ParseTravelMode(r.PathValue("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	m, ok := a.openMap(w, r)
	if !ok {
		return
	}
	dest := r.PathValue("dest")

	if local, _ := strconv.ParseBool(r.URL.Query().Get("local")); local {
		offsets, err := m.RouteLocal(r.Context(), dest, mode, a.routes)
		if err != nil {
			a.journeyError(w, m, dest, err)
			return
		}
		writeJSON(w, http.StatusOK, offsets)
		return
	}

	payload, err := m.Route(r.Context(), dest, mode, a.routes)
	if err != nil {
		a.journeyError(w, m, dest, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(payload); err != nil {
		a.log().Error("failed to write response", "error", err)
	}
}

func (a *API) journeyError(w http.ResponseWriter, m *geomap.Map, dest string, err error) {
	if errors.Is(err, geomap.ErrNoRouteSource) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{err.Error()})
		return
	}
	a.log().Error("journey lookup failed", "map", m.Name(), "dest", dest, "error", err)
	writeJSON(w, http.StatusBadGateway, errorResponse{err.Error()})
}

// Extents handles PUT /maps/{map}/journeys/{dest}/{mode}/extents. Extents of
// an uncached journey are rejected with 404.
func (a *API) Extents(w http.ResponseWriter, r *http.Request) {
	mode, err := journey.ParseTravelMode(r.PathValue("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
		return
	}
	var req extentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid extents body"})
		return
	}
	m, ok := a.openMap(w, r)
	if !ok {
		return
	}

	dest := r.PathValue("dest")
	if !m.CaptureExtents(dest, mode, journey.ScreenPoint{X: req.X, Y: req.Y}, req.Zoom) {
		writeJSON(w, http.StatusNotFound, errorResponse{"journey not cached"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Save handles POST /maps/{map}/save.
func (a *API) Save(w http.ResponseWriter, r *http.Request) {
	m, ok := a.openMap(w, r)
	if !ok {
		return
	}
	if err := m.Save(r.Context()); err != nil {
		a.log().Error("save failed", "map", m.Name(), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Maps handles GET /maps.
func (a *API) Maps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.maps.Names())
}
