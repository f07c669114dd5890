package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"pv-telemetry/internal/audit"
	"pv-telemetry/internal/auth"
	"pv-telemetry/internal/measurement/application"
	measurement "pv-telemetry/internal/measurement/domain"
)

const (
	// DefaultMaxUploadBytes bounds one uploaded file.
	DefaultMaxUploadBytes int64 = 64 << 20
	machineIngestPrefix         = "/ingest/"
	multipartMemory             = 8 << 20
)

// IngestHandler accepts logger files on /api/v1/ingest and /ingest/{type}.
type IngestHandler struct {
	service  *application.IngestService
	logger   *log.Logger
	maxBytes int64
	audit    audit.Logger
}

// IngestHandlerOption configures the handler.
type IngestHandlerOption func(*IngestHandler)

// WithAuditLogger records every stored upload.
func WithAuditLogger(logger audit.Logger) IngestHandlerOption {
	return func(h *IngestHandler) {
		h.audit = logger
	}
}

// NewIngestHandler constructs the handler. maxBytes <= 0 uses
// DefaultMaxUploadBytes.
func NewIngestHandler(service *application.IngestService, logger *log.Logger, maxBytes int64, opts ...IngestHandlerOption) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	h := &IngestHandler{service: service, logger: logger, maxBytes: maxBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP decodes and stores one file. The logger type comes from the
// logger_type query parameter or the path suffix of /ingest/{type}.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	loggerType := r.URL.Query().Get("logger_type")
	if strings.HasPrefix(r.URL.Path, machineIngestPrefix) {
		loggerType = strings.Trim(strings.TrimPrefix(r.URL.Path, machineIngestPrefix), "/")
	}
	if loggerType == "" {
		http.Error(w, "logger_type is required", http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	up, err := h.upload(r)
	if err != nil {
		h.respondUploadError(w, err)
		return
	}
	defer up.body.Close()
	digest := audit.NewDigest(up.body)

	result, err := h.service.Ingest(r.Context(), application.IngestRequest{
		LoggerType: loggerType,
		LoggerID:   up.loggerID,
		Source:     up.source,
		Body:       digest,
	})
	if err != nil {
		h.logger.Printf("ingest: %s %s: %v", loggerType, up.source, err)
		respondIngestError(w, err, result)
		return
	}
	h.record(r, result, digest.Sum())
	writeJSON(w, http.StatusOK, result)
}

func (h *IngestHandler) record(r *http.Request, result application.IngestResult, digest string) {
	if h.audit == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]any{
		"source":   result.Source,
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
		"loggers":  result.Loggers,
	})
	entry := audit.Entry{
		Actor:         auth.SubjectFromContext(r.Context()),
		Role:          string(auth.RoleFromContext(r.Context())),
		Action:        audit.ActionIngest,
		ResourceType:  audit.ResourceIngestRun,
		ResourceID:    result.RunID,
		LoggerType:    string(result.LoggerType),
		Metadata:      metadata,
		PayloadDigest: digest,
		IP:            audit.ClientIP(r),
		UserAgent:     r.UserAgent(),
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		h.logger.Printf("ingest: run %s: audit error: %v", result.RunID, err)
	}
}

type upload struct {
	body     io.ReadCloser
	source   string
	loggerID string
}

// upload returns the file part of a multipart form, or the raw body.
// Form fields fill in what the query string leaves empty.
func (h *IngestHandler) upload(r *http.Request) (upload, error) {
	q := r.URL.Query()
	up := upload{
		body:     r.Body,
		source:   q.Get("source"),
		loggerID: firstNonEmpty(q.Get("logger_id"), r.Header.Get("X-Logger-ID")),
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return up, nil
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return upload{}, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return upload{}, err
	}
	up.body = file
	up.source = firstNonEmpty(up.source, header.Filename)
	up.loggerID = firstNonEmpty(up.loggerID, r.FormValue("logger_id"))
	return up, nil
}

func (h *IngestHandler) respondUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	h.logger.Printf("ingest: read upload: %v", err)
	http.Error(w, "invalid upload", http.StatusBadRequest)
}

type errorResponse struct {
	Error      string                   `json:"error"`
	Kind       measurement.ErrorKind    `json:"kind,omitempty"`
	LoggerType measurement.LoggerType   `json:"loggerType,omitempty"`
	Line       int                      `json:"line,omitempty"`
	RunID      string                   `json:"runId,omitempty"`
	Inserted   int                      `json:"inserted,omitempty"`
	Warnings   []measurement.RowWarning `json:"warnings,omitempty"`
}

func respondIngestError(w http.ResponseWriter, err error, result application.IngestResult) {
	resp := errorResponse{Error: err.Error(), RunID: result.RunID, Inserted: result.Inserted}
	var decodeErr *measurement.DecodeError
	if errors.As(err, &decodeErr) {
		resp.Kind = decodeErr.Kind
		resp.LoggerType = decodeErr.LoggerType
		resp.Line = decodeErr.Line
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, measurement.ErrUnknownFormat):
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, measurement.ErrStructuralViolation):
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, resp)
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusRequestTimeout, resp)
	default:
		resp.Warnings = result.Warnings
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
