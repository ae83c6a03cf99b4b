package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/projection"
	"github.com/MeKo-Tech/tilemap/internal/tile"
	"github.com/MeKo-Tech/tilemap/internal/types"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project a coordinate to meters, pixels and tiles",
	Long: `Project a WGS84 coordinate to spherical Mercator meters, pyramid pixels,
the slippy (XYZ) and TMS tile containing it, and its local offset in meters
around the map origin.`,
	RunE: runProject,
}

func init() {
	rootCmd.AddCommand(projectCmd)

	projectCmd.Flags().Float64("lat", 0, "Latitude in degrees")
	projectCmd.Flags().Float64("lon", 0, "Longitude in degrees")
	projectCmd.Flags().IntP("zoom", "z", 13, "Zoom level")
	projectCmd.Flags().Float64("origin-lat", 0, "Latitude of the local origin")
	projectCmd.Flags().Float64("origin-lon", 0, "Longitude of the local origin")
	projectCmd.Flags().Bool("json", false, "Print the result as JSON")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"project.lat", "lat"},
		{"project.lon", "lon"},
		{"project.zoom", "zoom"},
		{"map.origin_lat", "origin-lat"},
		{"map.origin_lon", "origin-lon"},
		{"project.json", "json"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, projectCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

type projectReport struct {
	Coordinate types.GeoCoordinate       `json:"coordinate"`
	Zoom       int                       `json:"zoom"`
	Meters     projection.ProjectedPoint `json:"meters"`
	Pixels     [2]float64                `json:"pixels"`
	Tile       tile.CanonicalID          `json:"tile"`
	TMS        [2]int                    `json:"tms"`
	Fraction   [2]float64                `json:"fraction"`
	Origin     types.GeoCoordinate       `json:"origin"`
	Local      projection.LocalOffset    `json:"local"`
	Resolution float64                   `json:"resolution"`
}

func project(lat, lon float64, zoom int, origin types.GeoCoordinate) (projectReport, error) {
	meters, err := projection.GeoToMeters(lat, lon)
	if err != nil {
		return projectReport{}, err
	}
	id, err := tile.At(lat, lon, zoom)
	if err != nil {
		return projectReport{}, err
	}

	px, py := projection.MetersToPixels(meters, zoom)
	tx, ty := projection.PixelsToTile(px, py)
	fx, fy := projection.FractionalTile(lat, lon, zoom)

	return projectReport{
		Coordinate: types.NewGeoCoordinate(lat, lon),
		Zoom:       zoom,
		Meters:     meters,
		Pixels:     [2]float64{px, py},
		Tile:       id.Canonical(),
		TMS:        [2]int{tx, ty},
		Fraction:   [2]float64{fx, fy},
		Origin:     origin,
		Local:      projection.GeoToLocal(origin, lat, lon),
		Resolution: projection.Resolution(zoom),
	}, nil
}

func runProject(cmd *cobra.Command, args []string) error {
	origin := types.NewGeoCoordinate(viper.GetFloat64("map.origin_lat"), viper.GetFloat64("map.origin_lon"))
	report, err := project(viper.GetFloat64("project.lat"), viper.GetFloat64("project.lon"), viper.GetInt("project.zoom"), origin)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if viper.GetBool("project.json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printProjectReport(out, report)
	return nil
}

func printProjectReport(w io.Writer, r projectReport) {
	fmt.Fprintf(w, "coordinate  %s\n", r.Coordinate)
	fmt.Fprintf(w, "meters      %.3f, %.3f\n", r.Meters.X, r.Meters.Y)
	fmt.Fprintf(w, "pixels      %.2f, %.2f (z%d, %.4f m/px)\n", r.Pixels[0], r.Pixels[1], r.Zoom, r.Resolution)
	fmt.Fprintf(w, "tile        %s\n", r.Tile)
	fmt.Fprintf(w, "tms         %d/%d/%d\n", r.Zoom, r.TMS[0], r.TMS[1])
	fmt.Fprintf(w, "fraction    %.4f, %.4f\n", r.Fraction[0], r.Fraction[1])
	fmt.Fprintf(w, "local       x=%.2f m, z=%.2f m from %s\n", r.Local.X, r.Local.Z, r.Origin)
}
