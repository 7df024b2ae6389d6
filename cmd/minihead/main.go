// Command minihead serves the head controller over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minihead/minihead/internal/api"
	"github.com/minihead/minihead/internal/config"
	"github.com/minihead/minihead/internal/db"
	"github.com/minihead/minihead/internal/dxl"
	"github.com/minihead/minihead/internal/kinematics"
	"github.com/minihead/minihead/internal/link"
	"github.com/minihead/minihead/internal/motion"
	"github.com/minihead/minihead/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the JSON configuration file")
	devMode     = flag.Bool("dev", false, "Run against a simulated motor bus served at /bridge")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db", "", "Recording store path (overrides config)")
	noStore     = flag.Bool("no-store", false, "Run without the recording store")
	socketURL   = flag.String("socket-url", "", "WebSocket bridge URL (overrides config)")
	serialPort  = flag.String("serial-port", "", "Serial device path (overrides config)")
	geometry    = flag.String("geometry", "", "Embedded geometry name (overrides config)")
	traceLog    = flag.Bool("trace", false, "Log every bus exchange")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadConfig reads path. A missing file at the default path is not an
// error: every setting has a default.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if path == config.DefaultConfigPath && errors.Is(err, os.ErrNotExist) {
		log.Printf("no config at %s, using defaults", path)
		return config.EmptyConfig(), nil
	}
	return nil, err
}

// applyFlags copies explicitly set flags over the file values.
func applyFlags(cfg *config.Config) {
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&cfg.Listen, *listen)
	set(&cfg.DBPath, *dbPath)
	set(&cfg.SocketURL, *socketURL)
	set(&cfg.SerialPort, *serialPort)
	set(&cfg.Geometry, *geometry)
}

// newSolver builds a solver from the configured geometry.
func newSolver(cfg *config.Config) (*kinematics.Solver, error) {
	var (
		geom kinematics.Geometry
		err  error
	)
	if path := cfg.GetGeometryFile(); path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read geometry: %w", readErr)
		}
		geom, err = kinematics.ParseGeometry(data)
	} else {
		geom, err = kinematics.LoadGeometry(cfg.GetGeometry())
	}
	if err != nil {
		return nil, err
	}
	return kinematics.NewSolver(geom,
		kinematics.WithArmLength(cfg.GetArmLength()),
		kinematics.WithRodLength(cfg.GetRodLength()),
		kinematics.WithIterations(cfg.GetFKIterations()),
		kinematics.WithTolerance(cfg.GetFKTolerance()),
	)
}

// motorIDs returns the configured ids or 1..n.
func motorIDs(cfg *config.Config, n int) []uint8 {
	if ids := cfg.GetMotorIDs(); ids != nil {
		return ids
	}
	ids := make([]uint8, n)
	for i := range ids {
		ids[i] = uint8(i + 1)
	}
	return ids
}

// newConnector builds the link connector: the WebSocket bridge first, then
// the serial port.
func newConnector(cfg *config.Config) *link.Connector {
	return &link.Connector{
		SocketURL:   cfg.GetSocketURL(),
		DialTimeout: cfg.GetDialTimeout(),
		ReadTimeout: cfg.GetSocketReadTimeout(),
		Requester: &link.PortRequester{
			Path:        cfg.GetSerialPort(),
			Options:     link.PortOptions{BaudRate: cfg.GetBaudRate()},
			VendorIDs:   link.KnownVendorIDs,
			ReadTimeout: cfg.GetSerialReadTimeout(),
		},
	}
}

// devConnector dials the simulated bus through the local bridge only.
func devConnector(cfg *config.Config, addr string) *link.Connector {
	return &link.Connector{
		SocketURL:   "ws://" + addr + "/bridge",
		DialTimeout: cfg.GetDialTimeout(),
		ReadTimeout: cfg.GetSocketReadTimeout(),
	}
}

// dialAddr turns a listen address into one a local client can dial.
func dialAddr(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return listenAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var trace io.Writer
	if *traceLog {
		trace = os.Stderr
	}
	link.SetLogWriters(os.Stderr, os.Stderr, trace)
	motion.SetLogWriters(os.Stderr, os.Stderr, trace)

	solver, err := newSolver(cfg)
	if err != nil {
		log.Fatalf("failed to build solver: %v", err)
	}
	// the solver-only routes get their own estimate
	apiSolver, err := newSolver(cfg)
	if err != nil {
		log.Fatalf("failed to build solver: %v", err)
	}
	ids := motorIDs(cfg, solver.NumBranches())

	mux := http.NewServeMux()
	var connector motion.Connector
	if *devMode {
		bus := dxl.NewSimBus(ids)
		defer bus.Close()
		mux.Handle("/bridge", link.NewBridge(bus, time.Millisecond))
		connector = devConnector(cfg, dialAddr(cfg.GetListen()))
		log.Printf("dev mode: simulated bus with ids %v at /bridge", ids)
	} else {
		connector = newConnector(cfg)
	}

	var store *db.DB
	if !*noStore {
		store, err = db.NewDB(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("failed to open recording store: %v", err)
		}
		defer store.Close()
	}

	hub := api.NewHub()
	ctrl, err := motion.NewController(solver, connector,
		motion.WithMotorIDs(ids),
		motion.WithSink(hub),
		motion.WithCadence(cfg.GetCadence()),
		motion.WithReplayInterval(cfg.GetReplayInterval()),
		motion.WithReadWait(cfg.GetReadWait()),
	)
	if err != nil {
		log.Fatalf("failed to build controller: %v", err)
	}

	srv := api.NewServer(api.Config{
		Controller: ctrl,
		Solver:     apiSolver,
		Store:      store,
		Hub:        hub,
		Geometry:   cfg.GetGeometry(),
		MaxRecord:  cfg.GetMaxRecordDuration(),
	})
	defer srv.Close()

	mux.Handle("/api/", srv.ServeMux())
	srv.AttachAdminRoutes(mux)
	if store != nil {
		store.AttachAdminRoutes(mux)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(mux),
	}
	// telemetry streams never finish on their own
	server.RegisterOnShutdown(hub.Close)

	wg.Add(1)
	go func() {
		defer wg.Done()

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("minihead %s listening on %s", version.Version, cfg.GetListen())

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
