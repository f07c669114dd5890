package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"pv-telemetry/internal/audit"
	"pv-telemetry/internal/auth"
	diagapp "pv-telemetry/internal/diagnostics/application"
	diagnostics "pv-telemetry/internal/diagnostics/domain"
	diagrepo "pv-telemetry/internal/diagnostics/infrastructure/postgres"
	"pv-telemetry/internal/measurement/application"
	"pv-telemetry/internal/measurement/application/eventbus"
	"pv-telemetry/internal/measurement/application/events"
	"pv-telemetry/internal/measurement/decoders"
	"pv-telemetry/internal/measurement/infrastructure/postgres"
	measurementhttp "pv-telemetry/internal/measurement/interfaces/http"
	"pv-telemetry/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	ingestCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("ingest config error: %v", err)
	}
	location, err := ingestCfg.Location()
	if err != nil {
		logger.Fatalf("timezone error: %v", err)
	}
	reconstructor, err := ingestCfg.Reconstructor()
	if err != nil {
		logger.Fatalf("reconstruction config error: %v", err)
	}

	decoderList, err := decoders.Standard(ingestCfg.Decoders())
	if err != nil {
		logger.Fatalf("decoder setup error: %v", err)
	}
	dispatcher, err := application.NewDispatcher(decoderList...)
	if err != nil {
		logger.Fatalf("dispatcher error: %v", err)
	}

	measurementRepo := postgres.NewMeasurementRepository(db)
	measurementQuery := postgres.NewMeasurementQuery(db)

	bus := eventbus.NewInMemoryBus()
	eventbus.SubscribeTyped(bus, func(ctx context.Context, evt events.IngestionCompleted) error {
		logger.Printf("ingestion completed: run=%s type=%s source=%s loggers=%s inserted=%d skipped=%d range=%s..%s",
			evt.RunID, evt.LoggerType, evt.Source, strings.Join(evt.LoggerIDs, ","), evt.Inserted, evt.Skipped,
			evt.From.Format(time.RFC3339), evt.To.Format(time.RFC3339))
		return nil
	})

	ingestService, err := application.NewIngestService(dispatcher, measurementRepo, logger,
		application.WithBatchSize(ingestCfg.BatchSize),
		application.WithLocation(location),
		application.WithEventBus(bus),
	)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}
	queryService, err := application.NewQueryService(measurementQuery, reconstructor, logger)
	if err != nil {
		logger.Fatalf("query service error: %v", err)
	}

	catalog := diagnostics.DefaultCatalog()
	if cfg.DiagnosticsCatalog != "" {
		catalog, err = diagnostics.LoadCatalog(cfg.DiagnosticsCatalog)
		if err != nil {
			logger.Fatalf("diagnostics catalog error: %v", err)
		}
	}
	diagService, err := diagapp.NewService(diagrepo.NewErrorScanner(db, ""), catalog, logger)
	if err != nil {
		logger.Fatalf("diagnostics service error: %v", err)
	}

	ingestHandler, err := measurementhttp.NewIngestHandler(ingestService, logger, cfg.MaxUploadBytes,
		measurementhttp.WithAuditLogger(audit.NewRepository(db)))
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	loggerHandler, err := measurementhttp.NewLoggerHandler(queryService, diagService, location, logger)
	if err != nil {
		logger.Fatalf("logger handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, auth.WithDenyLogger(logger))
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second, cfg.MaxUploadBytes,
		auth.WithSpoolDir(ingestCfg.SpoolDir), auth.WithIngestDenyLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/ingest/", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/ingest", ingestHandler)
	mux.Handle("/api/v1/loggers", loggerHandler)
	mux.Handle("/api/v1/loggers/", loggerHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s (decoders: %v)", cfg.HTTPAddr, dispatcher.Types())
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	JWTSecret          string
	IngestSecret       string
	IngestSkewSeconds  int
	MaxUploadBytes     int64
	DiagnosticsCatalog string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:       getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:  getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		MaxUploadBytes:     getenvInt64Default("MAX_UPLOAD_BYTES", measurementhttp.DefaultMaxUploadBytes),
		DiagnosticsCatalog: getenvDefault("DIAGNOSTICS_CATALOG", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64Default(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
