package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tilemap/internal/geomap"
	"github.com/MeKo-Tech/tilemap/internal/journey"
	"github.com/MeKo-Tech/tilemap/internal/store"
	"github.com/MeKo-Tech/tilemap/internal/tile"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [4]float64
		wantErr bool
	}{
		{name: "valid bbox", input: "9.7,52.3,9.9,52.4", want: [4]float64{9.7, 52.3, 9.9, 52.4}},
		{name: "valid bbox with spaces", input: "9.7, 52.3, 9.9, 52.4", want: [4]float64{9.7, 52.3, 9.9, 52.4}},
		{name: "negative coordinates", input: "-122.5,37.7,-122.3,37.9", want: [4]float64{-122.5, 37.7, -122.3, 37.9}},
		{name: "too few values", input: "9.7,52.3,9.9", wantErr: true},
		{name: "too many values", input: "9.7,52.3,9.9,52.4,10.0", wantErr: true},
		{name: "invalid number", input: "abc,52.3,9.9,52.4", wantErr: true},
		{name: "minLon >= maxLon", input: "10.0,52.3,9.9,52.4", wantErr: true},
		{name: "minLat >= maxLat", input: "9.7,52.5,9.9,52.4", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBBox(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseBBox(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseBBox(%q) unexpected error: %v", tt.input, err)
				return
			}
			if got != tt.want {
				t.Errorf("parseBBox(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	l := newLogger(&buf, "warn", "json", false)
	l.Info("hidden")
	l.Warn("shown", "map", "london")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"map":"london"`)

	buf.Reset()
	l = newLogger(&buf, "error", "text", true)
	assert.True(t, l.Enabled(context.Background(), slog.LevelDebug), "verbose forces debug")
	l.Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestProjectCommand(t *testing.T) {
	out, err := execute(t, "project", "--lat", "52.3759", "--lon", "9.7320", "-z", "13",
		"--origin-lat", "52.3759", "--origin-lon", "9.7320", "--json")
	require.NoError(t, err)

	var report projectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, tile.CanonicalID{Z: 13, X: 4317, Y: 2692}, report.Tile)
	assert.Equal(t, [2]int{4317, 8191 - 2692}, report.TMS)
	assert.InDelta(t, 0, report.Local.X, 1e-6)
	assert.InDelta(t, 0, report.Local.Z, 1e-6)

	_, err = project(90, 0, 5, types.GeoCoordinate{})
	assert.Error(t, err)
}

func TestCoverCommand(t *testing.T) {
	out, err := execute(t, "cover", "--bbox", "9.6,52.3,9.9,52.45", "--zoom-min", "10", "--zoom-max", "10", "--count=false", "--geojson=false")
	require.NoError(t, err)
	lines := strings.Fields(out)
	require.Len(t, lines, 2)
	for _, l := range lines {
		id, err := tile.ParseCoords(l)
		require.NoError(t, err)
		assert.Equal(t, 10, id.Z)
	}

	out, err = execute(t, "cover", "--bbox", "9.6,52.3,9.9,52.45", "--zoom-min", "10", "--zoom-max", "11", "--count")
	require.NoError(t, err)
	assert.NotEqual(t, "2", strings.TrimSpace(out))

	out, err = execute(t, "cover", "--bbox", "9.6,52.3,9.9,52.45", "--zoom-min", "10", "--zoom-max", "10", "--count=false", "--geojson")
	require.NoError(t, err)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 2)

	_, err = execute(t, "cover", "--bbox", "9.9,52.3,9.6,52.45", "--count=false", "--geojson=false")
	assert.Error(t, err)
}

func TestZoomRangeFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"cover negative zoom", []string{"cover", "--zoom-min=-1", "--zoom-max", "3", "--count=false", "--geojson=false"}},
		{"cover count past max", []string{"cover", "--zoom-min", "0", "--zoom-max", "64", "--count"}},
		{"cover inverted", []string{"cover", "--zoom-min", "5", "--zoom-max", "3", "--count"}},
		{"prefetch past max", []string{"prefetch", "--zoom-min", "0", "--zoom-max", "40"}},
		{"prefetch negative zoom", []string{"prefetch", "--zoom-min=-3", "--zoom-max", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append(tt.args, "--bbox", "9.6,52.3,9.9,52.45")...)
			assert.Error(t, err)
		})
	}
}

var errDiskFull = errors.New("disk full")

type failingStore struct{ *store.MemoryStore }

func (failingStore) Save(context.Context, store.Snapshot) error { return errDiskFull }

func TestCloseIntoJoinsSaveError(t *testing.T) {
	errRun := errors.New("run failed")
	tests := []struct {
		name    string
		runErr  error
		wantErr []error
	}{
		{"save failure surfaces", nil, []error{errDiskFull}},
		{"run failure kept", errRun, []error{errRun, errDiskFull}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{registry: geomap.NewRegistry(geomap.DefaultConfig(), failingStore{store.NewMemoryStore()}, nil)}
			_, err := a.registry.Open(context.Background(), "london")
			require.NoError(t, err)

			run := func() (err error) {
				defer a.closeInto(&err)
				return tt.runErr
			}
			err = run()
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestJourneyCommands(t *testing.T) {
	dir := t.TempDir()
	route := journey.NewRoute([]types.GeoCoordinate{{Lat: 51.5074, Lon: -0.1278}, {Lat: 51.52, Lon: -0.10}}, 2500, 600)
	payload, err := route.Encode()
	require.NoError(t, err)
	routeFile := filepath.Join(dir, "route.json")
	require.NoError(t, os.WriteFile(routeFile, payload, 0o644))

	common := []string{"-m", "london", "--store", "file", "--store-path", filepath.Join(dir, "maps"), "--images-dir", filepath.Join(dir, "tiles")}
	run := func(args ...string) (string, error) {
		return execute(t, append(args, common...)...)
	}

	_, err = run("journey", "put", "hotelA", "--mode", "walking", "-f", routeFile)
	require.NoError(t, err)

	out, err := run("journey", "get", "hotelA", "--mode", "walking", "--local=false", "--geojson=false")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(string(payload)), strings.TrimSpace(out))

	_, err = run("journey", "extents", "hotelA", "--mode", "walking", "--x", "12.5", "--y=-3", "-z", "14")
	require.NoError(t, err)

	_, err = run("journey", "extents", "hotelB", "--mode", "walking", "--x", "1", "--y", "1", "-z", "14")
	assert.Error(t, err, "extents of an uncached journey are rejected")

	_, err = run("journey", "get", "hotelA", "--mode", "flying")
	assert.Error(t, err)
}
