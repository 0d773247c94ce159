package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/jvtubergen/gmaps-image/internal/export"
	"github.com/jvtubergen/gmaps-image/internal/fetch"
	"github.com/jvtubergen/gmaps-image/internal/region"
	"github.com/jvtubergen/gmaps-image/pkg/mercator"
)

var cfgFile string

var log = logrus.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gmaps-image",
	Short: "Compose Google Maps satellite tiles into one georeferenced raster",
	Long: `gmaps-image turns a geographic bounding box into a single seamless
satellite image assembled from Google Static Maps tiles, together with
per-pixel georeferencing output (world file, GeoJSON footprint).

The zoom level can be given directly or derived from a target ground
sampling distance (meters per pixel) at the region's center latitude.

Examples:
  # A neighbourhood in Utrecht at zoom 17
  gmaps-image --north 52.0975 --south 52.0885 --west 5.1015 --east 5.1165 --zoom 17 -o utrecht.png

  # Derive the zoom from a 0.5 m/pixel target and write a world file
  gmaps-image --north 52.0975 --south 52.0885 --west 5.1015 --east 5.1165 --gsd 0.5 -w -o utrecht.png

  # Square region plus a GeoJSON footprint
  gmaps-image --north 52.0975 --south 52.0885 --west 5.1015 --east 5.1165 --zoom 16 --square --footprint region.geojson -o region.png

  # Start the HTTP server
  gmaps-image serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !boundsGiven(cmd) {
			return cmd.Help()
		}
		return runRegion(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gmaps-image.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("api-key", "", "Google Static Maps API key (falls back to api_key.txt in the cache dir)")
	rootCmd.PersistentFlags().String("cache-dir", defaultCacheDir(), "tile cache directory (empty disables caching)")

	// Region bounds
	rootCmd.Flags().Float64("north", 0, "north boundary latitude")
	rootCmd.Flags().Float64("south", 0, "south boundary latitude")
	rootCmd.Flags().Float64("east", 0, "east boundary longitude")
	rootCmd.Flags().Float64("west", 0, "west boundary longitude")

	// Zoom selection
	rootCmd.Flags().Int("zoom", 0, "zoom level")
	rootCmd.Flags().Float64("gsd", 0, "derive zoom from this ground sampling distance in m/pixel")
	rootCmd.Flags().Float64("deviation", 0, "allowed slack above the GSD goal")

	// Tile options
	rootCmd.Flags().Int("scale", 1, "tile render scale (1 or 2)")
	rootCmd.Flags().Int("resolution", 640, "raw tile resolution in pixels")
	rootCmd.Flags().Int("margin", 22, "border cropped from each tile to drop the attribution band")
	rootCmd.Flags().Bool("square", false, "squarify the region before planning")
	rootCmd.Flags().Bool("full-tiles", false, "keep the full tile-aligned composite instead of cropping")
	rootCmd.Flags().Int("workers", 4, "concurrent tile fetches")

	// Output options
	rootCmd.Flags().StringP("output", "o", "region.png", "output image file")
	rootCmd.Flags().BoolP("worldfile", "w", false, "write a world file next to the image")
	rootCmd.Flags().String("footprint", "", "write a GeoJSON footprint to this path")

	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("api-key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("cache-dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("north", rootCmd.Flags().Lookup("north"))
	viper.BindPFlag("south", rootCmd.Flags().Lookup("south"))
	viper.BindPFlag("east", rootCmd.Flags().Lookup("east"))
	viper.BindPFlag("west", rootCmd.Flags().Lookup("west"))
	viper.BindPFlag("zoom", rootCmd.Flags().Lookup("zoom"))
	viper.BindPFlag("gsd", rootCmd.Flags().Lookup("gsd"))
	viper.BindPFlag("deviation", rootCmd.Flags().Lookup("deviation"))
	viper.BindPFlag("scale", rootCmd.Flags().Lookup("scale"))
	viper.BindPFlag("resolution", rootCmd.Flags().Lookup("resolution"))
	viper.BindPFlag("margin", rootCmd.Flags().Lookup("margin"))
	viper.BindPFlag("square", rootCmd.Flags().Lookup("square"))
	viper.BindPFlag("full-tiles", rootCmd.Flags().Lookup("full-tiles"))
	viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("worldfile", rootCmd.Flags().Lookup("worldfile"))
	viper.BindPFlag("footprint", rootCmd.Flags().Lookup("footprint"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".gmaps-image" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gmaps-image")
	}

	viper.SetEnvPrefix("GMAPS_IMAGE")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogger()
}

func initLogger() {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cache", "gmaps-image")
}

func boundsGiven(cmd *cobra.Command) bool {
	for _, name := range []string{"north", "south", "east", "west"} {
		if cmd.Flags().Changed(name) || viper.GetFloat64(name) != 0 {
			return true
		}
	}
	return false
}

// resolveAPIKey returns the configured key, falling back to the key file in
// the cache directory.
func resolveAPIKey() (string, error) {
	if key := viper.GetString("api-key"); key != "" {
		return key, nil
	}
	cacheDir := viper.GetString("cache-dir")
	if cacheDir == "" {
		return "", fmt.Errorf("no API key: set --api-key or GMAPS_IMAGE_API_KEY")
	}
	key, err := fetch.ReadKeyFile(cacheDir)
	if err != nil {
		return "", fmt.Errorf("no API key: set --api-key, GMAPS_IMAGE_API_KEY, or store one in %s", filepath.Join(cacheDir, "api_key.txt"))
	}
	return key, nil
}

// newEngine builds the fetch client and region engine shared by the region
// command and the server.
func newEngine(opts ...region.Option) (*region.Engine, error) {
	key, err := resolveAPIKey()
	if err != nil {
		return nil, err
	}
	client, err := fetch.New(fetch.Options{
		APIKey:   key,
		CacheDir: viper.GetString("cache-dir"),
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	opts = append([]region.Option{region.WithWorkers(viper.GetInt("workers"))}, opts...)
	return region.New(client, opts...), nil
}

func runRegion(cmd *cobra.Command) error {
	missing := false
	for _, name := range []string{"north", "south", "east", "west"} {
		if !cmd.Flags().Changed(name) && viper.GetFloat64(name) == 0 {
			missing = true
		}
	}
	if missing {
		return fmt.Errorf("region bounds require all of --north, --south, --east, --west")
	}

	north := viper.GetFloat64("north")
	south := viper.GetFloat64("south")
	east := viper.GetFloat64("east")
	west := viper.GetFloat64("west")
	scale := viper.GetInt("scale")

	zoom := viper.GetInt("zoom")
	if gsd := viper.GetFloat64("gsd"); gsd > 0 {
		if cmd.Flags().Changed("zoom") {
			return fmt.Errorf("give either --zoom or --gsd, not both")
		}
		centerLat := (north + south) / 2
		derived, err := mercator.DeriveZoom(centerLat, scale, gsd, viper.GetFloat64("deviation"))
		if err != nil {
			return err
		}
		zoom = derived
		log.Infof("derived zoom %d for %g m/pixel at latitude %.4f", zoom, gsd, centerLat)
	} else if zoom == 0 {
		return fmt.Errorf("either --zoom or --gsd is required")
	}

	// Progress over the planned tile fetches; the total is only known once
	// the first callback fires.
	var (
		bar     *pb.ProgressBar
		barOnce sync.Once
		barMu   sync.Mutex
	)
	progress := func(done, total int) {
		barOnce.Do(func() {
			bar = pb.New(total).Prefix("tiles ")
			bar.Start()
		})
		barMu.Lock()
		defer barMu.Unlock()
		bar.Set(done)
		if done == total {
			bar.Finish()
		}
	}

	engine, err := newEngine(region.WithProgress(progress))
	if err != nil {
		return err
	}

	cfg := region.Config{
		Zoom:       zoom,
		Scale:      scale,
		Margin:     viper.GetInt("margin"),
		Resolution: viper.GetInt("resolution"),
		Square:     viper.GetBool("square"),
		FullTiles:  viper.GetBool("full-tiles"),
	}

	raster, coords, err := engine.ComputeRegion(context.Background(), region.GeoBox{
		North: north,
		South: south,
		East:  east,
		West:  west,
	}, cfg)
	if err != nil {
		return err
	}

	output := viper.GetString("output")
	if err := export.WritePNG(output, raster); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	log.Infof("wrote %dx%d composite to %s (%.3g m/pixel)",
		raster.Width, raster.Height, output, mercator.ComputeGSD((north+south)/2, zoom, scale))

	if viper.GetBool("worldfile") {
		if err := export.WriteWorldFile(output, coords); err != nil {
			return fmt.Errorf("write world file: %w", err)
		}
	}
	if path := viper.GetString("footprint"); path != "" {
		if err := export.WriteFootprint(path, coords); err != nil {
			return fmt.Errorf("write footprint: %w", err)
		}
	}
	return nil
}
