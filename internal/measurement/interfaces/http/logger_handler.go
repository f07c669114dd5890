package http

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	diagapp "pv-telemetry/internal/diagnostics/application"
	"pv-telemetry/internal/measurement/application"
	measurement "pv-telemetry/internal/measurement/domain"
	"pv-telemetry/internal/measurement/interfaces/export"
	"pv-telemetry/internal/observability/metrics"
)

const (
	loggersPath  = "/api/v1/loggers"
	loggerPrefix = loggersPath + "/"
	dateLayout   = "2006-01-02"
)

// LoggerHandler serves logger listings, series, exports and diagnostics.
type LoggerHandler struct {
	query       *application.QueryService
	diagnostics *diagapp.Service
	location    *time.Location
	logger      *log.Logger
}

// NewLoggerHandler constructs the handler. diagnostics may be nil, which
// disables the diagnostics routes.
func NewLoggerHandler(query *application.QueryService, diagnostics *diagapp.Service, location *time.Location, logger *log.Logger) (*LoggerHandler, error) {
	if query == nil {
		return nil, errors.New("logger handler: nil query service")
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LoggerHandler{query: query, diagnostics: diagnostics, location: location, logger: logger}, nil
}

// ServeHTTP routes /api/v1/loggers and /api/v1/loggers/{id}/{resource}.
func (h *LoggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path == loggersPath {
		h.handleList(w, r)
		return
	}
	if !strings.HasPrefix(r.URL.Path, loggerPrefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, loggerPrefix), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	loggerID, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "invalid logger id", http.StatusBadRequest)
		return
	}

	switch parts[1] {
	case "measurements":
		h.handleSeries(w, r, loggerID, false)
	case "measurements.xlsx":
		h.handleSeries(w, r, loggerID, true)
	case "diagnostics":
		h.handleDiagnostics(w, r, loggerID, false)
	case "diagnostics.pdf":
		h.handleDiagnostics(w, r, loggerID, true)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *LoggerHandler) handleList(w http.ResponseWriter, r *http.Request) {
	loggers, err := h.query.Loggers(r.Context())
	if err != nil {
		h.logger.Printf("loggers: list error: %v", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if loggers == nil {
		loggers = []measurement.LoggerSummary{}
	}
	writeJSON(w, http.StatusOK, loggers)
}

func (h *LoggerHandler) handleSeries(w http.ResponseWriter, r *http.Request, loggerID string, xlsx bool) {
	from, err := h.parseTime(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := h.parseTime(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	start := time.Now()
	series, err := h.query.Series(r.Context(), loggerID, from, to)
	if err != nil {
		h.logger.Printf("loggers: series %s: %v", loggerID, err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if !xlsx {
		if series == nil {
			series = []measurement.Measurement{}
		}
		writeJSON(w, http.StatusOK, series)
		return
	}

	data, err := export.BuildSeriesXLSX(loggerID, series, h.location)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(start))
		h.logger.Printf("loggers: xlsx %s: %v", loggerID, err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(loggerID)+`.xlsx"`)
	_, _ = w.Write(data)
}

func (h *LoggerHandler) handleDiagnostics(w http.ResponseWriter, r *http.Request, loggerID string, pdf bool) {
	if h.diagnostics == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "days must be an integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	start := time.Now()
	report, err := h.diagnostics.Diagnose(r.Context(), loggerID, days)
	switch {
	case errors.Is(err, measurement.ErrLoggerNotFound):
		http.Error(w, "logger not found", http.StatusNotFound)
		return
	case errors.Is(err, diagapp.ErrInvalidDays):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Printf("diagnostics: %s: %v", loggerID, err)
		http.Error(w, "diagnostics error", http.StatusInternalServerError)
		return
	}
	if !pdf {
		writeJSON(w, http.StatusOK, report)
		return
	}

	data, err := export.BuildDiagnosticsPDF(report)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(start))
		h.logger.Printf("diagnostics: pdf %s: %v", loggerID, err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+safeFilename(loggerID)+`-diagnostics.pdf"`)
	_, _ = w.Write(data)
}

// parseTime accepts RFC 3339 or a plain date, read as local midnight.
// Missing values are open bounds.
func (h *LoggerHandler) parseTime(r *http.Request, key string) (time.Time, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.ParseInLocation(dateLayout, value, h.location); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, errors.New(key + " must be RFC3339 or YYYY-MM-DD")
}

func safeFilename(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, value)
}
