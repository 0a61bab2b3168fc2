package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/verifier/internal/channel"
	"github.com/JonMunkholm/verifier/internal/config"
	"github.com/JonMunkholm/verifier/internal/logging"
	"github.com/JonMunkholm/verifier/internal/report"
	"github.com/JonMunkholm/verifier/internal/session"
	"github.com/JonMunkholm/verifier/internal/store"
	"github.com/JonMunkholm/verifier/internal/verify"
	"github.com/JonMunkholm/verifier/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"channel_enabled", cfg.ChannelEnabled(),
		"report_mode", cfg.Report.Mode,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if cfg.Database.MigrateOnStart {
		if err := store.Migrate(cfg.Database.URL); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied")
	}

	ctx := context.Background()
	pool, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	directory := store.New(pool)

	// Live channel and reconciler
	recOpts := []verify.Option{
		verify.WithCapacity(cfg.Verify.Capacity),
		verify.WithLogger(logging.ForComponent("reconciler")),
	}
	var ch *channel.Client
	if cfg.ChannelEnabled() {
		ch = channel.New(channel.Config{
			URL:               cfg.Channel.URL,
			Token:             cfg.Channel.Token,
			ReconnectAttempts: cfg.Channel.ReconnectAttempts,
			ReconnectDelay:    cfg.Channel.ReconnectDelay,
			HandshakeTimeout:  cfg.Channel.HandshakeTimeout,
		}, logging.ForComponent("channel"))
		recOpts = append(recOpts, verify.WithSource(ch, cfg.Channel.EventName))
	}
	reconciler := verify.NewReconciler(recOpts...)

	// Report export
	var transport report.Transport
	if cfg.Report.Mode == config.ReportModeRemote {
		transport = report.NewHTTPTransport(cfg.Report.URL, &http.Client{Timeout: cfg.Report.Timeout})
	} else {
		transport = report.NewXLSXTransport()
	}
	exporter := report.NewExporter(transport,
		report.WithLimiter(report.NewLimiter(cfg.Report.MaxConcurrent, cfg.Report.MaxWait)),
		report.WithFilePrefix(cfg.Report.FilePrefix),
		report.WithLogger(logging.ForComponent("report")),
	)

	opts := session.Options{
		MaxFileSize: cfg.Upload.MaxFileSize,
		PreviewRows: cfg.Upload.PreviewRows,
		Logger:      logging.ForComponent("session"),
	}
	if cfg.Verify.IngestURL != "" {
		opts.Publisher = channel.NewPublisher(cfg.Verify.IngestURL, cfg.Channel.Token,
			&http.Client{Timeout: cfg.Verify.IngestTimeout})
	}
	svc := session.NewService(directory, reconciler, exporter, opts)

	deps := web.Deps{
		Session:    svc,
		Reconciler: reconciler,
		Directory:  directory,
	}
	if ch != nil {
		deps.Channel = ch
	}
	server := web.NewServer(deps, cfg)

	// A failed connect is reported through the channel state; the HTTP
	// event endpoint keeps working.
	if ch != nil {
		if err := reconciler.Connect(ctx); err != nil {
			slog.Warn("channel connect failed", "error", err)
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if ch != nil {
			if err := reconciler.Disconnect(); err != nil {
				slog.Warn("channel disconnect error", "error", err)
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
