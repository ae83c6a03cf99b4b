package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/tilemap/internal/journey"
)

var journeyCmd = &cobra.Command{
	Use:   "journey",
	Short: "Inspect and edit a map's cached journeys",
}

var journeyGetCmd = &cobra.Command{
	Use:   "get DESTINATION",
	Short: "Print the route to a destination, fetching it on a cache miss",
	Args:  cobra.ExactArgs(1),
	RunE:  runJourneyGet,
}

var journeyPutCmd = &cobra.Command{
	Use:   "put DESTINATION",
	Short: "Store a route payload for a destination",
	Args:  cobra.ExactArgs(1),
	RunE:  runJourneyPut,
}

var journeyExtentsCmd = &cobra.Command{
	Use:   "extents DESTINATION",
	Short: "Record the screen extents of a cached journey",
	Args:  cobra.ExactArgs(1),
	RunE:  runJourneyExtents,
}

func init() {
	rootCmd.AddCommand(journeyCmd)
	journeyCmd.AddCommand(journeyGetCmd, journeyPutCmd, journeyExtentsCmd)

	journeyCmd.PersistentFlags().String("mode", string(journey.Driving), "Travel mode (driving, walking, bicycling, transit)")

	journeyGetCmd.Flags().Bool("local", false, "Print the path as local offsets around the map origin")
	journeyGetCmd.Flags().Bool("geojson", false, "Print the route as a GeoJSON feature")

	journeyPutCmd.Flags().StringP("file", "f", "", "Route payload file (JSON)")

	journeyExtentsCmd.Flags().Float64("x", 0, "Screen x")
	journeyExtentsCmd.Flags().Float64("y", 0, "Screen y")
	journeyExtentsCmd.Flags().IntP("zoom", "z", 0, "Zoom the extents were captured at")
}

func journeyMode(cmd *cobra.Command) (journey.TravelMode, error) {
	s, err := cmd.Flags().GetString("mode")
	if err != nil {
		return "", err
	}
	return journey.ParseTravelMode(s)
}

func runJourneyGet(cmd *cobra.Command, args []string) (err error) {
	mode, err := journeyMode(cmd)
	if err != nil {
		return err
	}
	local, _ := cmd.Flags().GetBool("local")
	asGeoJSON, _ := cmd.Flags().GetBool("geojson")
	dest := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeInto(&err)

	m, err := a.openMap(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if local {
		offsets, err := m.RouteLocal(ctx, dest, mode, a.routes())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(offsets)
	}

	payload, err := m.Route(ctx, dest, mode, a.routes())
	if err != nil {
		return err
	}
	if asGeoJSON {
		route, err := journey.DecodeRoute(payload)
		if err != nil {
			return err
		}
		payload, err = route.GeoJSON(journey.Key{DestinationID: dest, Mode: mode})
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}

func runJourneyPut(cmd *cobra.Command, args []string) (err error) {
	mode, err := journeyMode(cmd)
	if err != nil {
		return err
	}
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		return fmt.Errorf("--file is required")
	}
	payload, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read route payload: %w", err)
	}
	if _, err := journey.DecodeRoute(payload); err != nil {
		return fmt.Errorf("invalid route payload: %w", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.closeInto(&err)

	m, err := a.openMap(ctx)
	if err != nil {
		return err
	}
	m.Journeys().PutRoute(args[0], mode, payload)
	logger.Info("Stored journey", "map", m.Name(), "dest", args[0], "mode", mode, "bytes", len(payload))
	return nil
}

func runJourneyExtents(cmd *cobra.Command, args []string) (err error) {
	mode, err := journeyMode(cmd)
	if err != nil {
		return err
	}
	x, _ := cmd.Flags().GetFloat64("x")
	y, _ := cmd.Flags().GetFloat64("y")
	zoomLevel, _ := cmd.Flags().GetInt("zoom")

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	defer a.closeInto(&err)

	m, err := a.openMap(ctx)
	if err != nil {
		return err
	}
	if !m.CaptureExtents(args[0], mode, journey.ScreenPoint{X: x, Y: y}, zoomLevel) {
		return fmt.Errorf("no cached journey to %s (%s)", args[0], mode)
	}
	return nil
}
