package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/presence.report/internal/api"
	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/leapmmw"
	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/presence"
	"github.com/banshee-data/presence.report/internal/radar"
	"github.com/banshee-data/presence.report/internal/serialport"
	"github.com/banshee-data/presence.report/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to a JSON or YAML config file")
	port          = flag.String("port", "", "Serial port (overrides config)")
	baud          = flag.Int("baud", 0, "Serial baud rate (overrides config)")
	listen        = flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPathFlag    = flag.String("db", "", "SQLite database path (overrides config)")
	interval      = flag.Duration("interval", 0, "Presence poll interval (overrides config)")
	applySettings = flag.Bool("apply-settings", false, "Apply the config file's sensor settings at startup")
	disableRadar  = flag.Bool("disable-radar", false, "Use the built-in sensor simulator instead of a serial port")
	logFormat     = flag.String("log-format", "", "Log format: text or json (overrides config)")
	versionFlag   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}

	cfg, err := buildConfig(explicitFlags())
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath(), os.Stdout); err != nil {
				log.Fatalf("❌ migrate: %v", err)
			}
			return
		default:
			usage()
			os.Exit(2)
		}
	}

	if err := setupLogging(cfg, os.Stderr); err != nil {
		log.Fatalf("❌ %v", err)
	}
	monitoring.Logf("starting %s", version.String())

	transport, sim, err := openTransport(cfg, *disableRadar)
	if err != nil {
		log.Fatalf("❌ failed to open sensor: %v", err)
	}
	defer transport.Close()
	if sim != nil {
		monitoring.Logf("using simulated sensor")
	}

	sensor := radar.New(transport, leapmmw.WithTimeout(cfg.GetCommandTimeout()))

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("❌ failed to open database: %v", err)
	}
	defer database.Close()

	if *applySettings {
		settings := cfg.RadarSettings()
		if settings.IsEmpty() {
			monitoring.Logf("-apply-settings given but the config has no sensor settings")
		} else if err := sensor.Apply(settings); err != nil {
			log.Fatalf("❌ failed to apply sensor settings: %v", err)
		} else {
			monitoring.Logf("✓ sensor settings applied")
		}
	}

	monitor := presence.NewMonitor(sensor, database, presence.WithInterval(cfg.GetPollInterval()))

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := monitor.Run(ctx); err != nil && err != context.Canceled {
			monitoring.Logf("presence monitor error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := api.NewServer(sensor, monitor, database).ServeMux()
		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			monitoring.Logf("HTTP server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("❌ failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")
}

// openTransport opens the configured serial port, or a simulator when
// simulate is set. The simulator is returned so callers can drive it.
func openTransport(cfg *config.SensorConfig, simulate bool) (*serialport.Stream, *radar.Simulator, error) {
	if simulate {
		sim := radar.NewSimulator()
		return serialport.NewStream(sim.Port()), sim, nil
	}
	stream, err := serialport.Open(cfg.GetPort(), cfg.PortOptions())
	if err != nil {
		return nil, nil, err
	}
	return stream, nil, nil
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: presence [flags] [migrate <action>]\n\n")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	db.PrintMigrateHelp(out)
}
