package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/meetup/internal/clock"
	"github.com/me/meetup/internal/config"
	"github.com/me/meetup/internal/directory"
	"github.com/me/meetup/internal/events"
	"github.com/me/meetup/internal/logging"
	"github.com/me/meetup/internal/notify"
	"github.com/me/meetup/internal/planner"
	"github.com/me/meetup/internal/random"
	"github.com/me/meetup/internal/ratelimit"
	"github.com/me/meetup/internal/scheduler"
	"github.com/me/meetup/internal/server"
	"github.com/me/meetup/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env-file", ".env", "Path to .env file (ignored if missing)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	noScheduler := flag.Bool("no-scheduler", false, "Serve the API without running the scheduler loop")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Flags win over file and environment.
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, !*noScheduler, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, withScheduler bool, logger *slog.Logger) error {
	// Open store and run migrations.
	st, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "path", cfg.DBPath)

	// Group directory.
	roster, err := directory.LoadRoster(cfg.Directory.RosterPath, logger)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	dir, err := directory.NewCached(roster, cfg.Directory.CacheTTL, logger)
	if err != nil {
		return fmt.Errorf("directory cache: %w", err)
	}
	defer dir.Close()

	go reloadOnHangup(ctx, roster, dir, logger)

	clk := clock.Real{}
	rnd := random.New()
	svc := events.NewService(st, clk, rnd, cfg.Capacity, logger)

	policy, err := cfg.PlannerPolicy()
	if err != nil {
		return err
	}
	pl := planner.New(dir, svc, rnd, policy, logger)

	// Notification sink.
	var sink notify.Sink
	switch cfg.Notifier.Kind {
	case "amqp":
		amqpSink, err := notify.DialAMQP(ctx, cfg.AMQPConfig(), logger)
		if err != nil {
			return fmt.Errorf("connect notifier: %w", err)
		}
		defer amqpSink.Close()
		sink = amqpSink
	default:
		sink = notify.NewLogSink(logger)
	}

	sendLimiter := ratelimit.New(cfg.Notifier.RatePerSecond, cfg.Notifier.Burst, cfg.Notifier.IdleTTL)
	defer sendLimiter.Stop()
	notifier := notify.NewRateLimited(notify.NewMessenger(sink, cfg.Groups, clk), sendLimiter)

	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		return err
	}
	loop := scheduler.NewLoop(svc, pl, notifier, clk, cfg.Groups, schedCfg, logger)

	serverOpts := []server.Option{server.WithNotifier(notifier)}
	if cfg.Server.RequestsPerSecond > 0 {
		apiLimiter := ratelimit.New(cfg.Server.RequestsPerSecond, cfg.Server.Burst, cfg.Notifier.IdleTTL)
		defer apiLimiter.Stop()
		serverOpts = append(serverOpts, server.WithRateLimiter(apiLimiter))
	}

	var sched scheduler.Scheduler
	if withScheduler {
		sched = loop
	}
	srv := server.New(svc, sched, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	// Start scheduler in background.
	if withScheduler {
		go func() {
			if err := loop.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler exited", "error", err)
			}
		}()
	} else {
		logger.Warn("scheduler disabled; events only change through user actions")
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "groups", len(cfg.Groups), "capacity", cfg.Capacity)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	// Stop scheduler before HTTP server.
	if err := loop.Stop(); err != nil {
		logger.Error("scheduler stop error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// reloadOnHangup re-reads the roster file on SIGHUP and drops cached lookups.
func reloadOnHangup(ctx context.Context, roster *directory.Roster, dir *directory.Cached, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := roster.Reload(); err != nil {
				logger.Error("roster reload failed", "error", err)
				continue
			}
			dir.Invalidate()
			logger.Info("roster reloaded")
		}
	}
}
