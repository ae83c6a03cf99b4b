package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var zoomCmd = &cobra.Command{
	Use:   "zoom",
	Short: "Resolve the cached zoom level for a requested zoom",
	Long: `Run the zoom engine of a map: starting from --from (the base zoom when
omitted), move to --to and print which cached level becomes active, the scale
applied to dependent elements and the image of every tile set at that level.`,
	RunE: runZoom,
}

func init() {
	rootCmd.AddCommand(zoomCmd)

	zoomCmd.Flags().Float64("from", -1, "Zoom the map is at before the change (default: base zoom)")
	zoomCmd.Flags().Float64("to", 0, "Requested zoom")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"zoom.from", "from"},
		{"zoom.to", "to"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, zoomCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runZoom(cmd *cobra.Command, args []string) (err error) {
	from := viper.GetFloat64("zoom.from")
	to := viper.GetFloat64("zoom.to")

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

	if from >= 0 {
		if _, err := m.SetZoom(from); err != nil {
			return fmt.Errorf("failed to set starting zoom: %w", err)
		}
	}
	res, err := m.SetZoom(to)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
