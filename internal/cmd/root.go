package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilemap/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tilemap",
	Short: "Web Mercator tile and zoom engine for geospatial maps",
	Long: `tilemap converts between geographic coordinates, projected meters, pixels
and slippy-map tiles, caches raster tiles and routed journeys per map, and
keeps a map's active cached zoom level in sync with its requested zoom.

Maps are persisted to SQLite, a folder of JSON files or Redis, and their
cached tiles can be prefetched, served over HTTP or exported to MBTiles.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringP("map", "m", "default", "Name of the map to operate on")
	rootCmd.PersistentFlags().String("map-type", "roadmap", "Map type (roadmap, satellite, hybrid, terrain)")
	rootCmd.PersistentFlags().String("store", "sqlite", "Persistence driver (sqlite, file, redis, memory)")
	rootCmd.PersistentFlags().String("store-path", "./tilemap.db", "SQLite database file or JSON folder")
	rootCmd.PersistentFlags().String("images-dir", "./tiles", "Directory holding cached tile images")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"verbose", "verbose"},
		{"log.level", "log-level"},
		{"log.format", "log-format"},
		{"map.name", "map"},
		{"map.type", "map-type"},
		{"store.driver", "store"},
		{"store.path", "store-path"},
		{"map.image_dir", "images-dir"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
