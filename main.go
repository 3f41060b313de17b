package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries every CLI flag, parsed once in run and handed to
// the application.
type AppOptions struct {
	ConfigFile string

	// Map flags override the config file's map section.
	MapFile       string
	MapResolution float64
	MapOriginX    float64
	MapOriginY    float64

	// Simulation mode.
	Simulate bool
	Cycles   int
	Seed     uint64
	InitX    float64
	InitY    float64
	InitYaw  float64

	OutputFile   string
	RenderFormat string

	HttpMode bool
	HttpPort int
	MqttMode bool
}

// application is what run dispatches to; *App in production, a mock in
// tests.
type application interface {
	ApplyOptions(opts AppOptions)
	RunSimulate() error
	RunService() error
}

// run parses args, applies options, and dispatches to the right mode.
// Split from main so tests can drive it with a mock application.
func run(args []string, out io.Writer, app application) error {
	fs := flag.NewFlagSet("gridloc", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to configuration file")

	mapFile := fs.String("map", "", "Occupancy image (PNG); overrides the config file's map section")
	mapResolution := fs.Float64("map-resolution", 0.05, "Map resolution in meters per cell (with -map)")
	mapOriginX := fs.Float64("map-origin-x", 0, "World X of the map's lower-left corner (with -map)")
	mapOriginY := fs.Float64("map-origin-y", 0, "World Y of the map's lower-left corner (with -map)")

	simulate := fs.Bool("simulate", false, "Run a simulated localization session and exit")
	cycles := fs.Int("cycles", 50, "Number of filter cycles in -simulate mode")
	seed := fs.Uint64("seed", 0, "Noise seed for reproducible runs (0 = time-based)")
	initX := fs.Float64("init-x", 0, "Initial pose X in meters")
	initY := fs.Float64("init-y", 0, "Initial pose Y in meters")
	initYaw := fs.Float64("init-yaw", 0, "Initial pose yaw in radians")

	outputFile := fs.String("output", "particles.png", "Output file for -simulate mode")
	renderFormat := fs.String("format", "raster", "Output format: raster, vector, geojson, or all")

	mqttMode := fs.Bool("mqtt", false, "Subscribe to odometry/scan topics and publish estimates")
	httpMode := fs.Bool("http", false, "Enable HTTP server for estimates and cloud images")
	httpPort := fs.Int("http-port", 8080, "HTTP server port (default 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "gridloc version: %s\n", Version)

	app.ApplyOptions(AppOptions{
		ConfigFile:    *configFile,
		MapFile:       *mapFile,
		MapResolution: *mapResolution,
		MapOriginX:    *mapOriginX,
		MapOriginY:    *mapOriginY,
		Simulate:      *simulate,
		Cycles:        *cycles,
		Seed:          *seed,
		InitX:         *initX,
		InitY:         *initY,
		InitYaw:       *initYaw,
		OutputFile:    *outputFile,
		RenderFormat:  *renderFormat,
		HttpMode:      *httpMode,
		HttpPort:      *httpPort,
		MqttMode:      *mqttMode,
	})

	if *simulate {
		return app.RunSimulate()
	}

	if *mqttMode || *httpMode {
		return app.RunService()
	}

	fmt.Fprintln(out, "gridloc: Monte Carlo localization over occupancy grids")
	fmt.Fprintln(out, "Use -simulate to run a self-contained localization session")
	fmt.Fprintln(out, "Use -mqtt to track odometry/scan topics and publish estimates")
	fmt.Fprintln(out, "Use -http to serve estimates and particle-cloud images")
	fmt.Fprintln(out, "Use -mqtt -http to run both together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - filter tuning, map, sensor mount, MQTT settings")
	return nil
}

func main() {
	app := NewApp()
	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
