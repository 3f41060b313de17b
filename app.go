package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/gridloc/mcl"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *mcl.Config
	Tracker    *mcl.Tracker
	Costmap    *mcl.Costmap
	Lookup     *mcl.StaticTransformLookup
	MQTTClient *mcl.MQTTClient
	Publisher  *mcl.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile    string
	MapFile       string
	MapResolution float64
	MapOriginX    float64
	MapOriginY    float64
	Simulate      bool
	Cycles        int
	Seed          uint64
	InitX         float64
	InitY         float64
	InitYaw       float64
	OutputFile    string
	RenderFormat  string
	HttpMode      bool
	HttpPort      int
	MqttMode      bool

	// pendingDisplacement accumulates odometry between scans so one
	// filter cycle runs per scan with the full displacement since the
	// previous one.
	mu                  sync.Mutex
	pendingDisplacement mcl.Transform
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Lookup:              mcl.NewStaticTransformLookup(),
		pendingDisplacement: mcl.IdentityTransform(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.MapFile = opts.MapFile
	a.MapResolution = opts.MapResolution
	a.MapOriginX = opts.MapOriginX
	a.MapOriginY = opts.MapOriginY
	a.Simulate = opts.Simulate
	a.Cycles = opts.Cycles
	a.Seed = opts.Seed
	a.InitX = opts.InitX
	a.InitY = opts.InitY
	a.InitYaw = opts.InitYaw
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.HttpMode = opts.HttpMode
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
}

// loadConfig loads the YAML config, falling back to defaults when the
// file is absent and required is false.
func (a *App) loadConfig(required bool) error {
	if _, err := os.Stat(a.ConfigFile); err != nil {
		if required {
			return fmt.Errorf("config file not found: %s", a.ConfigFile)
		}
		log.Printf("No config file at %s, using defaults", a.ConfigFile)
		def := mcl.DefaultFilterConfig()
		a.Config = &mcl.Config{
			Filter:  def,
			Tracker: mcl.TrackerConfig{MaxHypotheses: 4},
			Sensor:  mcl.SensorConfig{Frame: "laser"},
		}
		return nil
	}

	config, err := mcl.LoadConfig(a.ConfigFile)
	if err != nil {
		return err
	}
	a.Config = config
	log.Printf("Loaded config from %s", a.ConfigFile)
	return nil
}

// setupCostmap builds the occupancy grid: the -map flag wins, then the
// config's map section, and simulation mode falls back to a built-in
// test arena so -simulate works with no files at all.
func (a *App) setupCostmap() error {
	mapFile := a.MapFile
	resolution := a.MapResolution
	originX, originY := a.MapOriginX, a.MapOriginY

	if mapFile == "" && a.Config.Map.Image != "" {
		mapFile = a.Config.Map.Image
		resolution = a.Config.Map.Resolution
		originX = a.Config.Map.OriginX
		originY = a.Config.Map.OriginY
		// Relative map paths resolve next to the config file.
		if !filepath.IsAbs(mapFile) {
			mapFile = filepath.Join(filepath.Dir(a.ConfigFile), mapFile)
		}
	}

	if mapFile != "" {
		costmap, err := mcl.LoadCostmap(mapFile, resolution, originX, originY)
		if err != nil {
			return err
		}
		a.Costmap = costmap
		w, h := costmap.Size()
		log.Printf("Loaded costmap %s: %dx%d cells at %.3fm", mapFile, w, h, resolution)
		return nil
	}

	if !a.Simulate {
		return fmt.Errorf("no map configured: set -map or map.image in %s", a.ConfigFile)
	}

	a.Costmap = buildArena()
	log.Printf("No map configured, using built-in 10x10m arena")
	return nil
}

// buildArena creates a walled 10x10m room with a center pillar,
// centered on the origin. Enough structure for the sensor model to
// localize against.
func buildArena() *mcl.Costmap {
	const res = 0.05
	const cells = 200 // 10m

	cm := mcl.NewCostmap(cells, cells, res, -5.0, -5.0)
	for i := 0; i < cells; i++ {
		cm.SetCellCost(i, 0, mcl.LethalObstacle)
		cm.SetCellCost(i, cells-1, mcl.LethalObstacle)
		cm.SetCellCost(0, i, mcl.LethalObstacle)
		cm.SetCellCost(cells-1, i, mcl.LethalObstacle)
	}
	// Pillar offset from center so the room is not rotationally symmetric.
	for my := 120; my < 130; my++ {
		for mx := 130; mx < 140; mx++ {
			cm.SetCellCost(mx, my, mcl.LethalObstacle)
		}
	}
	return cm
}

// setupLookup registers the sensor mount from config.
func (a *App) setupLookup() {
	s := a.Config.Sensor
	a.Lookup.Set(s.Frame, mcl.BaseFrame, mcl.FromXYYaw(s.X, s.Y, s.Yaw))
}

// RunSimulate drives a self-contained localization session: a simulated
// robot moves through the map, scans are ray-cast from its true pose,
// and the filter tracks it. The final particle cloud is written to the
// output file.
func (a *App) RunSimulate() error {
	if err := a.loadConfig(false); err != nil {
		return err
	}
	if a.Seed != 0 {
		a.Config.Filter.Seed = a.Seed
	}
	if err := a.setupCostmap(); err != nil {
		return err
	}
	a.setupLookup()

	a.Tracker = mcl.NewTracker(a.Config.Tracker, a.Config.Filter)

	initPose := mcl.FromXYYaw(a.InitX, a.InitY, a.InitYaw)
	id, err := a.Tracker.AddHypothesis(initPose)
	if err != nil {
		return err
	}

	sensorMount := mcl.FromXYYaw(a.Config.Sensor.X, a.Config.Sensor.Y, a.Config.Sensor.Yaw)
	truePose := initPose

	// A gentle arc: forward 5cm and 0.02rad left per cycle.
	displacement := mcl.FromXYYaw(0.05, 0, 0.02)

	fmt.Printf("Simulating %d cycles from (%.2f, %.2f, %.2f)\n", a.Cycles, a.InitX, a.InitY, a.InitYaw)

	for cycle := 1; cycle <= a.Cycles; cycle++ {
		truePose = truePose.Compose(displacement)

		scan := mcl.SimulateScan(a.Costmap, truePose.Compose(sensorMount),
			180, 8.0, a.Config.Sensor.Frame, time.Now())

		a.Tracker.Cycle(displacement, scan, a.Costmap, a.Lookup)

		if cycle%10 == 0 || cycle == a.Cycles {
			if best, ok := a.Tracker.Best(); ok {
				est := best.Estimate.Pose.Translation
				fmt.Printf("cycle %3d: true(%.2f, %.2f) est(%.2f, %.2f) spread=%.3fm quality=%.4f\n",
					cycle, truePose.Translation.X, truePose.Translation.Y,
					est.X, est.Y, best.Estimate.SpreadXY, best.Quality)
			}
		}
	}

	best, ok := a.Tracker.Best()
	if !ok {
		return fmt.Errorf("no hypothesis survived the run")
	}
	return a.writeOutputs(id, best)
}

// writeOutputs renders the final cloud in the requested format(s).
func (a *App) writeOutputs(hypothesisID int, best mcl.HypothesisStatus) error {
	format := a.RenderFormat
	if format != "raster" && format != "vector" && format != "geojson" && format != "all" {
		return fmt.Errorf("invalid format: %s (must be raster, vector, geojson, or all)", format)
	}

	particles := a.Tracker.BestParticles()
	name := mcl.HypothesisColor(hypothesisID)

	withExt := func(ext string) string {
		if format != "all" {
			return a.OutputFile
		}
		return strings.TrimSuffix(a.OutputFile, filepath.Ext(a.OutputFile)) + ext
	}

	if format == "raster" || format == "all" {
		path := withExt(".png")
		renderer := mcl.NewCloudRenderer(a.Costmap)
		if err := renderer.SavePNG(path, particles, best.Estimate, name); err != nil {
			return fmt.Errorf("rendering raster: %w", err)
		}
		fmt.Printf("Created raster: %s\n", path)
	}

	if format == "vector" || format == "all" {
		path := withExt(".svg")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", path, err)
		}
		renderer := mcl.NewVectorCloudRenderer(a.Costmap)
		renderErr := renderer.RenderToSVG(f, particles, best.Estimate, name)
		if closeErr := f.Close(); renderErr == nil {
			renderErr = closeErr
		}
		if renderErr != nil {
			return fmt.Errorf("rendering vector SVG: %w", renderErr)
		}
		fmt.Printf("Created vector SVG: %s\n", path)
	}

	if format == "geojson" || format == "all" {
		path := withExt(".geojson")
		data, err := mcl.ExportGeoJSON(particles, best, a.Costmap)
		if err != nil {
			return fmt.Errorf("exporting GeoJSON: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("writing GeoJSON: %w", err)
		}
		fmt.Printf("Created GeoJSON: %s\n", path)
	}

	return nil
}

// RunService starts the combined MQTT and/or HTTP service
// handleOdometry folds an odometry delta into the displacement pending
// for the next scan.
func (a *App) handleOdometry(displacement mcl.Transform, stamp time.Time) {
	a.mu.Lock()
	a.pendingDisplacement = a.pendingDisplacement.Compose(displacement)
	a.mu.Unlock()
}

// handleScan consumes the pending displacement, runs one filter cycle,
// and publishes the best estimate when a publisher is wired up.
func (a *App) handleScan(scan *mcl.LaserScan) {
	// The publisher is wired up after InitMQTT returns; snapshot it under
	// the same lock so an early scan never races the write.
	a.mu.Lock()
	displacement := a.pendingDisplacement
	a.pendingDisplacement = mcl.IdentityTransform()
	publisher := a.Publisher
	a.mu.Unlock()

	a.Tracker.Cycle(displacement, scan, a.Costmap, a.Lookup)

	best, ok := a.Tracker.Best()
	if !ok {
		return
	}
	if publisher != nil {
		if err := publisher.PublishEstimate(best); err != nil {
			log.Printf("Error publishing estimate: %v", err)
		}
		if err := publisher.PublishParticles(best.ID, a.Tracker.BestParticles()); err != nil {
			log.Printf("Error publishing particles: %v", err)
		}
	}
}

func (a *App) RunService() error {
	fmt.Println("Starting gridloc service...")

	if err := a.loadConfig(true); err != nil {
		return err
	}
	if a.Seed != 0 {
		a.Config.Filter.Seed = a.Seed
	}
	if err := a.setupCostmap(); err != nil {
		return err
	}
	a.setupLookup()

	a.Tracker = mcl.NewTracker(a.Config.Tracker, a.Config.Filter)

	initPose := mcl.FromXYYaw(a.InitX, a.InitY, a.InitYaw)
	if _, err := a.Tracker.AddHypothesis(initPose); err != nil {
		return err
	}
	log.Printf("Initial hypothesis at (%.2f, %.2f, %.2f)", a.InitX, a.InitY, a.InitYaw)

	if a.MqttMode {
		mqttClient, err := mcl.InitMQTT(&a.Config.MQTT, a.handleOdometry, a.handleScan)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = mqttClient

		a.mu.Lock()
		a.Publisher = mcl.NewPublisher(mqttClient.GetClient())
		a.mu.Unlock()
		fmt.Println("MQTT estimate publisher initialized")
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.Tracker, a.Costmap)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		fmt.Printf("    - %s (odometry)\n", a.Config.MQTT.OdometryTopic)
		fmt.Printf("    - %s (scans)\n", a.Config.MQTT.ScanTopic)
		publishPrefix := a.Config.MQTT.PublishPrefix
		if publishPrefix == "" {
			publishPrefix = "gridloc"
		}
		fmt.Printf("  Publishing to: %s/estimate and %s/particles\n", publishPrefix, publishPrefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health            - Health check")
		fmt.Println("  GET  /estimate          - Best hypothesis as JSON")
		fmt.Println("  GET  /hypotheses        - All hypotheses as JSON")
		fmt.Println("  POST /hypotheses        - Add a hypothesis {x, y, yaw}")
		fmt.Println("  GET  /particles.png     - Particle cloud over the map")
		fmt.Println("  GET  /particles.svg     - Particle cloud as vector graphics")
		fmt.Println("  GET  /particles.geojson - Particle cloud as GeoJSON")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}
