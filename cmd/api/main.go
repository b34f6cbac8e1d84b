package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gate-tracker/gate_tracker/internal/audit"
	"github.com/gate-tracker/gate_tracker/internal/config"
	"github.com/gate-tracker/gate_tracker/internal/infra"
	"github.com/gate-tracker/gate_tracker/internal/logging"
	"github.com/gate-tracker/gate_tracker/internal/notification"
	"github.com/gate-tracker/gate_tracker/internal/otp"
	"github.com/gate-tracker/gate_tracker/internal/routes"
	"github.com/gate-tracker/gate_tracker/internal/scheduler"
	"github.com/gate-tracker/gate_tracker/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	deps := routes.Deps{Cfg: cfg, Logger: logger}

	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := infra.MigratePostgres(ctx, db); err != nil {
			logger.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		deps.DB = db
	case config.DriverSQLite:
		db, err := infra.NewSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Error("open sqlite", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := infra.MigrateSQLite(ctx, db); err != nil {
			logger.Error("migrate sqlite", "error", err)
			os.Exit(1)
		}
		deps.SQL = db
	default:
		logger.Warn("using in-memory storage; data is lost on restart")
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		deps.Cache = cache
	}

	sink, closeAudit, err := buildAuditSink(cfg, logger)
	if err != nil {
		logger.Error("build audit sink", "error", err)
		os.Exit(1)
	}
	defer closeAudit()
	deps.Audit = sink
	deps.Notifier = notification.NewLoggerNotifier(logger)

	jobs := scheduler.New(logger)
	if deps.Cache == nil {
		tickets, logins := otp.NewMemoryStore(), otp.NewMemoryStore()
		for name, store := range map[string]*otp.MemoryStore{"otp-tickets": tickets, "login-tickets": logins} {
			if err := jobs.Sweep(name, scheduler.DefaultSweepInterval, store); err != nil {
				logger.Error("schedule otp sweep", "job", name, "error", err)
				os.Exit(1)
			}
		}
		deps.OTPStore = tickets
		deps.LoginOTPStore = logins
	}
	jobs.Start()
	defer jobs.Stop()

	srv, err := server.New(deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// buildAuditSink writes audit events to the log (or AUDIT_LOG_PATH) and,
// with AUDIT_SINK=kafka, to the audit topic as well.
func buildAuditSink(cfg config.Config, logger *slog.Logger) (audit.Sink, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("close audit sink", "error", err)
			}
		}
	}

	auditLogger := logger
	if cfg.AuditLogPath != "" {
		fileLogger, f, err := logging.OpenFile(cfg.AuditLogPath)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, f)
		auditLogger = fileLogger
	}
	sinks := audit.Multi{audit.NewLoggerSink(auditLogger)}

	if cfg.AuditSink == config.AuditSinkKafka {
		producer, err := audit.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		kafka := audit.NewKafkaSink(producer, cfg.AuditTopic, logger)
		// Close the producer before the log file so late errors still land.
		closers = append([]io.Closer{kafka}, closers...)
		sinks = append(sinks, kafka)
	}
	return sinks, closeAll, nil
}
