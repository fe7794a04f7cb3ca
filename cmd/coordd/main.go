// Command coordd runs a coordination core node: it loads configuration,
// wires the storage backend, session manager, cache, lock manager, and
// exchange transport together, opens a post-restart grace period for
// every session the backend lists as alive at startup, and
// serves Prometheus metrics until told to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/coordcore/internal/logger"
	"github.com/marmos91/coordcore/internal/metrics"
	"github.com/marmos91/coordcore/internal/telemetry"
	"github.com/marmos91/coordcore/internal/waitmgr"
	"github.com/marmos91/coordcore/pkg/cache"
	"github.com/marmos91/coordcore/pkg/config"
	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/coordination"
	"github.com/marmos91/coordcore/pkg/lockmgr"
	"github.com/marmos91/coordcore/pkg/path"
	"github.com/marmos91/coordcore/pkg/session"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/coordcore/config.yaml)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coordd %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	if *configFile == "" && !config.DefaultConfigExists() {
		fmt.Fprintf(os.Stderr, "Error: no configuration file found at default location: %s\n\n", config.GetDefaultConfigPath())
		fmt.Fprintln(os.Stderr, "Initialize one first: coordctl init")
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "coordcore",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "coordcore",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("starting coordd", "version", version, "listen_address", cfg.ListenAddress)

	backend, err := config.BuildBackend(ctx, cfg.Storage, logger.With())
	if err != nil {
		log.Fatalf("failed to build storage backend: %v", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("error closing storage backend", "error", err)
		}
	}()
	logger.Info("storage backend ready", "backend", cfg.Storage.Backend)

	nodeIdentity := session.NewProvider([]byte(cfg.Exchange.GRPC.ListenAddress)).New()

	transport, err := config.BuildExchangeTransport(cfg.Exchange, nodeIdentity, logger.With())
	if err != nil {
		log.Fatalf("failed to build exchange transport: %v", err)
	}
	logger.Info("exchange transport ready", "transport", cfg.Exchange.Transport)

	var promRegistry *prometheus.Registry
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		promRegistry = prometheus.NewRegistry()
		m = metrics.New(promRegistry)
	}

	sessions := session.NewManager(backend, logger.With())
	sessions.Start()
	defer sessions.Stop()

	existing, err := sessions.ListSessions(ctx)
	if err != nil {
		log.Fatalf("failed to list existing sessions: %v", err)
	}
	if len(existing) > 0 {
		sessions.EnterGracePeriod(existing, cfg.Session.GracePeriodDuration)
		logger.Info("post-restart grace period opened",
			"sessions", len(existing),
			"duration", cfg.Session.GracePeriodDuration)
	}

	entryCache := cache.New()

	waits := waitmgr.New(backend, sessions, logger.With())
	waits.SetCacheInvalidator(entryCache.Invalidate)
	waits.AttachTransport(transport)

	locks := lockmgr.New(backend, entryCache, waits, transport, m, logger.With())

	coord := coordination.New(backend, entryCache, locks, sessions, int(cfg.Storage.MaxValueSize), logger.With())
	logger.Info("coordination manager ready", "max_value_size", cfg.Storage.MaxValueSize)

	reaperDone := make(chan struct{})
	go runEphemeralReaper(ctx, sessions, coord, logger.With(), reaperDone)

	healthzHandler := func(w http.ResponseWriter, r *http.Request) {
		_, err := coord.GetChildren(r.Context(), path.New())
		if err != nil && !coorderr.Is(err, coorderr.EntryNotFound) {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "backend unreachable: %v\n", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", healthzHandler)
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("metrics server listening", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	logger.Info("coordd is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, shutting down")
	cancel()
	<-reaperDone

	if metricsServer != nil {
		_ = metricsServer.Shutdown(context.Background())
	}
	if closer, ok := transport.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	logger.Info("coordd stopped")
}

// runEphemeralReaper repeatedly waits for any tracked session to terminate
// and deletes the ephemeral entries it owned, so a crashed or cleanly-ended
// client's ephemeral entries don't outlive it. Returns once ctx is
// cancelled, closing done.
func runEphemeralReaper(ctx context.Context, sessions *session.Manager, coord *coordination.Manager, log *slog.Logger, done chan struct{}) {
	defer close(done)
	for {
		id, err := sessions.WaitForAnyTermination(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("reaper failed waiting for session termination", "error", err)
			continue
		}
		if err := coord.ReapSession(ctx, id); err != nil {
			log.Warn("failed to reap terminated session", "session", id.String(), "error", err)
		}
	}
}
