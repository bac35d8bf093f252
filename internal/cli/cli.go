// Package cli builds the liminal command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"liminal/internal/active"
	"liminal/internal/api"
	"liminal/internal/config"
	"liminal/internal/db"
	"liminal/internal/emitter"
	"liminal/internal/health"
	"liminal/internal/history"
	"liminal/internal/hub"
	"liminal/internal/metrics"
	"liminal/internal/scheduler"
	"liminal/internal/spin"
)

var (
	configFile string
	serverURL  string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "liminal",
		Short: "Liminal: a live spinner hub",
		Long: `Liminal runs decision spins on the server and streams every tick
to connected websocket observers while the submitter waits for the result.`,
		Version:       health.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/liminal.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:8081", "hub base URL for client commands")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildSpinCommand())
	rootCmd.AddCommand(buildHistoryCommand())
	rootCmd.AddCommand(buildActiveCommand())
	rootCmd.AddCommand(buildPresetsCommand())
	rootCmd.AddCommand(buildWatchCommand())
	rootCmd.AddCommand(buildArchiveCommand())

	return rootCmd
}

func buildServeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if debug {
				cfg.Log.Level = "debug"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// runServer wires every component, serves until ctx is done, then shuts down
// in dependency order: stop intake, drain spins, drop observers, close sinks.
func runServer(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector(reg)

	hubOpts := []hub.Option{hub.WithMetrics(m), hub.WithLogger(logger.With("component", "hub"))}

	var mirror *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mirror = emitter.NewMQTTEmitter(cfg.MQTT, logger.With("component", "mqtt"))
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := mirror.Connect(connectCtx)
		cancel()
		if err != nil {
			logger.Warn("mqtt mirror disabled", "broker", cfg.MQTT.Broker, "error", err)
			mirror = nil
		} else {
			hubOpts = append(hubOpts, hub.WithMirror(mirror))
			defer mirror.Disconnect()
		}
	}

	h := hub.New(hubOpts...)
	table := active.NewTable()
	store := history.NewStore(cfg.Spinner.HistoryCapacity)

	spinOpts := []spin.Option{spin.WithMetrics(m), spin.WithLogger(logger.With("component", "spin"))}

	var archive *db.Archive
	if cfg.Archive.Path != "" {
		var err error
		archive, err = db.Open(ctx, cfg.Archive.Path, logger.With("component", "archive"))
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()
		spinOpts = append(spinOpts, spin.WithArchive(archive))
	}

	svc := spin.NewService(spin.Config{
		BaseTicks:  cfg.Spinner.BaseTicks,
		TickJitter: cfg.Spinner.TickJitter,
		BaseDelay:  cfg.Spinner.BaseDelay,
		DelayStep:  cfg.Spinner.DelayStep,
	}, h, table, store, spinOpts...)

	sweeper, err := scheduler.NewSweeper(table, cfg.Active.SweepSchedule, cfg.Active.Retention, m, logger.With("component", "sweeper"))
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	sources := health.Sources{
		Observers: h.Observers,
		Spins:     table.Stats,
		History:   store.Len,
		NextSweep: sweeper.NextRun,
	}
	if mirror != nil {
		sources.MQTT = func() bool { return mirror.Stats().Connected }
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	router := api.NewRouter(api.Deps{
		Hub:       h,
		Spins:     svc,
		Active:    table,
		History:   store,
		Archive:   archive,
		Health:    health.NewReporter(sources),
		Metrics:   metricsHandler,
		Server:    cfg.Server,
		Spinner:   cfg.Spinner,
		WebSocket: cfg.WebSocket,
		Log:       logger.With("component", "api"),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcHealth *health.GRPCServer
	if cfg.GRPC.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.HealthAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.HealthAddr, err)
		}
		grpcHealth = health.NewGRPCServer(logger.With("component", "grpc"))
		go func() {
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Error("grpc health server stopped", "error", err)
			}
		}()
		grpcHealth.SetServing(true)
		defer grpcHealth.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("liminal hub listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	}

	if grpcHealth != nil {
		grpcHealth.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("spins still running at shutdown", "error", err)
	}
	h.Close()

	logger.Info("liminal hub stopped")
	return nil
}

// splitOptions turns spin arguments into options. Separate arguments are
// taken verbatim; a single argument is read as a comma-separated list.
func splitOptions(args []string) []string {
	if len(args) != 1 {
		return args
	}
	var out []string
	for _, part := range strings.Split(args[0], ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
