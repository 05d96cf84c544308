// Command stageviewd is StageView's core process: it loads configuration,
// probes the encoder registry, spawns one Stream Supervisor per configured
// camera, and serves the HTTP Stream Server, Control API, event bus and
// embedded UI from a single listener.
//
// Follows the familiar daemon wiring shape: flag-parsed config path,
// config.Manager.Load with a default-config fallback, internal/logger
// initialization, a single mux assembled from each package's
// Register-style hook, and signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stageview/internal/burnin"
	"stageview/internal/codecprofile"
	"stageview/internal/config"
	"stageview/internal/controlapi"
	"stageview/internal/encoder"
	"stageview/internal/eventbus"
	"stageview/internal/logger"
	"stageview/internal/streamserver"
	"stageview/internal/supervisor"
	"stageview/internal/system"
	"stageview/internal/version"
	"stageview/pkg/web"
)

func main() {
	configPath := flag.String("config", "stageview.json", "Path to configuration file")
	profilePath := flag.String("profiles", "", "Path to an external codec profile override document (optional)")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "Path to the ffmpeg binary")
	logPath := flag.String("log-file", "", "Path to a log file (stdout only if empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.DetailedInfo())
		return
	}

	if err := logger.Init(*logPath, 10, 5, *debug); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Get().Close()

	cfgManager := config.NewManager(*configPath)
	if err := cfgManager.Load(); err != nil {
		logger.Fatal("failed to load configuration: %v", err)
	}
	defer cfgManager.Close()

	profile, err := codecprofile.Load(*profilePath)
	if err != nil {
		logger.Warn("failed to load codec profile overrides, using defaults: %v", err)
		profile = codecprofile.Default()
	}

	if dep := system.CheckFFmpeg(); !dep.Installed {
		logger.Warn("ffmpeg was not found on PATH; install it with: %s", dep.InstallCommand)
	} else {
		logger.Printf("found ffmpeg %s at %s", dep.Version, dep.Path)
	}

	registry := encoder.NewRegistry(*ffmpegPath)
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 30*time.Second)
	if err := registry.Refresh(probeCtx); err != nil {
		logger.Warn("encoder registry refresh failed: %v", err)
	}
	cancelProbe()

	bus := eventbus.NewHub()
	go bus.Run()

	pool := newSupervisorPool(*ffmpegPath, profile, registry, bus)
	cfg := cfgManager.Get()
	pool.reload(cfg)

	scheduler := burnin.New(pool.cameraList, bus, time.Duration(cfg.ShuffleIntervalSecs)*time.Second, rand.New(rand.NewPCG(seed64(), seed64())))
	go scheduler.Run()

	streamSrv := streamserver.NewServer(pool.lookup, 64)
	controlSrv := controlapi.NewServer(pool.cameraList, cfgManager, bus, func(cfg config.Config) error {
		pool.reload(cfg)
		scheduler.SetMode(burnin.ModeGrid, 0)
		return nil
	})

	mux := http.NewServeMux()
	streamSrv.Register(mux)
	controlSrv.Register(mux)
	mux.HandleFunc("GET /ws", bus.HandleConnection)
	if err := web.Register(mux); err != nil {
		logger.Fatal("failed to mount embedded UI: %v", err)
	}

	addr := ":8090"
	if cfg.APIPort != 0 {
		addr = formatAddr(cfg.APIPort)
	}

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Printf("stageviewd listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Printf("shutting down")

	scheduler.Stop()
	pool.stopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed: %v", err)
	}
}

func formatAddr(port uint16) string {
	return ":" + strconv.Itoa(int(port))
}

// seed64 derives a seed from the current time; only used to vary the
// burn-in scheduler's shuffle ordering across process restarts, never for
// anything security-sensitive.
func seed64() uint64 {
	return uint64(time.Now().UnixNano())
}
