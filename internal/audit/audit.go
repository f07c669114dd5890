// Package audit records who uploaded which logger file.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	ActionIngest        = "ingest"
	ResourceIngestRun   = "ingestion_run"
	defaultActorMachine = "machine"
)

// Entry is one audit log row.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	LoggerType    string
	Metadata      []byte
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// MachineActor names uploads authenticated by signature rather than token.
func MachineActor() string { return defaultActorMachine }

// Digest hashes everything read through it.
type Digest struct {
	r io.Reader
	h hash.Hash
}

// NewDigest wraps r.
func NewDigest(r io.Reader) *Digest {
	h := sha256.New()
	return &Digest{r: io.TeeReader(r, h), h: h}
}

func (d *Digest) Read(p []byte) (int, error) { return d.r.Read(p) }

// Sum returns the hex SHA-256 of the bytes read so far.
func (d *Digest) Sum() string { return hex.EncodeToString(d.h.Sum(nil)) }
