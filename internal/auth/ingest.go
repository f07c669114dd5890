package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderIngestTimestamp = "X-Ingest-Timestamp"
	HeaderIngestSignature = "X-Ingest-Signature"
)

// IngestAuthMiddleware verifies signed machine uploads. The signature is
// hex(HMAC-SHA256(secret, timestamp + "\n" + body)). The body is hashed
// while it is spooled to a temp file, then replayed from that file.
type IngestAuthMiddleware struct {
	Secret  []byte
	MaxSkew time.Duration
	// MaxBody bounds the upload size. Zero means no limit.
	MaxBody int64

	spoolDir string
	logger   *log.Logger
	now      func() time.Time
}

// IngestOption configures an IngestAuthMiddleware.
type IngestOption func(*IngestAuthMiddleware)

// WithSpoolDir sets the directory for buffered uploads. Empty means os.TempDir.
func WithSpoolDir(dir string) IngestOption {
	return func(m *IngestAuthMiddleware) { m.spoolDir = dir }
}

// WithIngestDenyLogger logs every rejected upload.
func WithIngestDenyLogger(logger *log.Logger) IngestOption {
	return func(m *IngestAuthMiddleware) { m.logger = logger }
}

// NewIngestAuthMiddleware constructs the signature check.
func NewIngestAuthMiddleware(secret []byte, maxSkew time.Duration, maxBody int64, opts ...IngestOption) *IngestAuthMiddleware {
	m := &IngestAuthMiddleware{Secret: secret, MaxSkew: maxSkew, MaxBody: maxBody, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap rejects unsigned, stale or tampered uploads.
func (m *IngestAuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.Secret) == 0 {
			m.deny(w, r, http.StatusUnauthorized, "ingest auth not configured")
			return
		}
		timestamp := strings.TrimSpace(r.Header.Get(HeaderIngestTimestamp))
		signature := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderIngestSignature)))
		if timestamp == "" || signature == "" {
			m.deny(w, r, http.StatusUnauthorized, "missing ingest signature")
			return
		}
		unix, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			m.deny(w, r, http.StatusUnauthorized, "invalid ingest timestamp")
			return
		}
		now := m.now
		if now == nil {
			now = time.Now
		}
		if m.MaxSkew > 0 && absDuration(now().Sub(time.Unix(unix, 0))) > m.MaxSkew {
			m.deny(w, r, http.StatusUnauthorized, "ingest signature expired")
			return
		}

		spool, err := os.CreateTemp(m.spoolDir, "ingest-*")
		if err != nil {
			m.deny(w, r, http.StatusInternalServerError, "spool upload")
			return
		}
		defer func() {
			_ = spool.Close()
			_ = os.Remove(spool.Name())
		}()

		mac := hmac.New(sha256.New, m.Secret)
		_, _ = io.WriteString(mac, timestamp+"\n")
		var src io.Reader = r.Body
		if m.MaxBody > 0 {
			src = http.MaxBytesReader(w, r.Body, m.MaxBody)
		}
		if _, err := io.Copy(io.MultiWriter(spool, mac), src); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				m.deny(w, r, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			m.deny(w, r, http.StatusBadRequest, "read body error")
			return
		}
		_ = r.Body.Close()

		if !hmac.Equal([]byte(signature), []byte(hex.EncodeToString(mac.Sum(nil)))) {
			m.deny(w, r, http.StatusUnauthorized, "invalid ingest signature")
			return
		}
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			m.deny(w, r, http.StatusInternalServerError, "spool upload")
			return
		}
		r.Body = io.NopCloser(spool)
		next.ServeHTTP(w, r)
	})
}

func (m *IngestAuthMiddleware) deny(w http.ResponseWriter, r *http.Request, status int, reason string) {
	if m.logger != nil {
		m.logger.Printf("ingest auth: %s %s from %s: %s", r.Method, r.URL.Path, r.RemoteAddr, reason)
	}
	writeDenial(w, status, reason)
}

// SignIngest computes the upload signature for a timestamp and body.
func SignIngest(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = io.WriteString(mac, timestamp+"\n")
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
