// Command affiche runs the event catalog service: HTTP API, scheduled
// pipeline runs, document ingestion, and optional MCP access over QUIC.
//
// Usage:
//
//	affiche                        # serve with defaults
//	affiche -config affiche.yaml   # serve with config file
//	affiche -ingest ./uploads      # ingest documents, run once, print the outcome, exit
//	affiche -once                  # run the pipeline once, print the outcome, exit
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"
	_ "time/tzdata"

	"github.com/hazyhaar/affiche/affiche"
	"github.com/hazyhaar/affiche/dbopen"
	"github.com/hazyhaar/affiche/mcpquic"
	"github.com/hazyhaar/affiche/observability"
	"github.com/hazyhaar/affiche/shield"
)

// maxRequestBody caps API request bodies. Intake payloads are single JSON
// records; anything bigger belongs in the document ingest path.
const maxRequestBody = 1 << 20

func main() {
	configPath := flag.String("config", "", "path to affiche.yaml config file")
	dbPath := flag.String("db", "", "path to the catalog database (overrides DB_PATH)")
	ingestDir := flag.String("ingest", "", "ingest documents from a directory, run the pipeline once, and exit")
	runOnce := flag.Bool("once", false, "run the pipeline once and exit")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// Logs go to stderr: the one-shot modes print their outcome on stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *ingestDir, *runOnce); err != nil {
		logger.Error("affiche: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, ingestDir string, runOnce bool) error {
	cfg := &affiche.Config{}
	if configPath != "" {
		c, err := affiche.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg = c
	}
	if ep := os.Getenv("LLM_ENDPOINT"); ep != "" {
		cfg.LLM.Endpoint = ep
	}

	path := dbPath
	if path == "" {
		path = env("DB_PATH", "db/affiche.db")
	}
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open catalog db: %w", err)
	}
	defer db.Close()

	// Observability lives in its own database so metric flushes never
	// contend with pipeline writes.
	obsPath := env("OBS_DB", filepath.Join(filepath.Dir(path), "observability.db"))
	obsDB, err := dbopen.Open(obsPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open observability db: %w", err)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		return fmt.Errorf("observability schema: %w", err)
	}

	metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second)
	defer metrics.Close()
	heartbeat := observability.NewHeartbeatWriter(obsDB, "affiche", 30*time.Second)

	svc, err := affiche.New(db, cfg, logger,
		affiche.WithMetrics(metrics),
		affiche.WithHeartbeat(heartbeat),
	)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	// One-shot: ingest a directory, drain the backlog, report.
	if ingestDir != "" {
		n, err := svc.IngestDir(ctx, ingestDir)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", ingestDir, err)
		}
		logger.Info("documents ingested", "dir", ingestDir, "records", n)
		return printRun(ctx, svc)
	}

	// One-shot: single pipeline run.
	if runOnce {
		return printRun(ctx, svc)
	}

	// Daemon mode.
	svc.Start(ctx)
	defer heartbeat.Stop()

	// Daily retention sweep over the observability database.
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				err := observability.Cleanup(ctx, obsDB, observability.RetentionConfig{
					MetricsDays:    30,
					HeartbeatsDays: 7,
				})
				if err != nil {
					logger.Warn("observability cleanup", "error", err)
				}
			}
		}
	}()

	// Optional MCP over QUIC.
	if env("MCP_TRANSPORT", "") == "quic" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "affiche",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)

		quicAddr := env("MCP_QUIC_ADDR", ":9444")
		certFile := env("TLS_CERT", "")
		keyFile := env("TLS_KEY", "")

		var tlsCfg *tls.Config
		var tlsErr error
		if certFile != "" && keyFile != "" {
			tlsCfg, tlsErr = mcpquic.ServerTLSConfig(certFile, keyFile)
		} else {
			tlsCfg, tlsErr = mcpquic.SelfSignedTLSConfig()
		}
		if tlsErr != nil {
			logger.Error("mcp quic tls", "error", tlsErr)
		} else {
			ql, qErr := mcpquic.NewListener(quicAddr, tlsCfg, mcpSrv, logger)
			if qErr != nil {
				logger.Error("mcp quic listener", "error", qErr)
			} else {
				defer ql.Close()
				go func() {
					if sErr := ql.Serve(ctx); sErr != nil && ctx.Err() == nil {
						logger.Error("mcp quic serve", "error", sErr)
					}
				}()
			}
		}
	}

	// HTTP API behind the shield stack. Rate limit rules live in the
	// catalog database so they can be tuned at runtime.
	if err := shield.Init(db); err != nil {
		return fmt.Errorf("shield schema: %w", err)
	}

	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(maxRequestBody) {
		r.Use(mw)
	}
	rl := shield.NewRateLimiter(db, "/healthz")
	rl.StartReloader(ctx.Done())
	r.Use(rl.Middleware)
	svc.RegisterHTTP(r)

	port := env("PORT", "8088")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("affiche: http listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("affiche: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	return nil
}

// printRun drives one batch and writes the outcome to stdout. The aligned
// per-source table goes to stderr next to the logs so stdout stays
// machine-readable.
func printRun(ctx context.Context, svc *affiche.Service) error {
	out, err := svc.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	fmt.Fprint(os.Stderr, out.Report())
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
