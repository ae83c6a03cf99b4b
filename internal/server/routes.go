package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes assembles the HTTP surface. mb may be nil when no archive is served.
func Routes(tiles *OnDemandTiles, api *API, mb *MBTilesHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("/tiles/{map}/{maptype}/{tile}", withCORS(tiles.Handler()))
	mux.Handle("GET /status", tiles.StatusHandler())
	if mb != nil {
		mux.Handle("/mbtiles/metadata.json", withCORS(mb.Metadata()))
		mux.Handle("/mbtiles/{tile}", withCORS(mb.Handler()))
	}

	mux.HandleFunc("GET /maps", api.Maps)
	mux.HandleFunc("POST /maps/{map}/zoom", api.Zoom)
	mux.HandleFunc("POST /maps/{map}/save", api.Save)
	mux.HandleFunc("GET /maps/{map}/journeys/{dest}/{mode}", api.Journey)
	mux.HandleFunc("PUT /maps/{map}/journeys/{dest}/{mode}/extents", api.Extents)
	return mux
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
