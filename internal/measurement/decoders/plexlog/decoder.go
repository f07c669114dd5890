// Package plexlog decodes Plexlog SQLite databases. Readings live in a
// data_values table with one row per device and instant; the device id
// range decides the role of the value column.
package plexlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"zombiezen.com/go/sqlite"

	"pv-telemetry/internal/measurement/decoders/parse"
	measurement "pv-telemetry/internal/measurement/domain"
)

const selectValues = `SELECT timestamp, device_id, value, info FROM data_values ORDER BY timestamp, device_id`

// Option configures a Decoder.
type Option func(*Decoder)

// WithRoles replaces the default role table.
func WithRoles(roles RoleTable) Option {
	return func(d *Decoder) {
		if len(roles) > 0 {
			d.roles = roles
		}
	}
}

// WithTempDir sets where uploaded databases are spooled.
func WithTempDir(dir string) Option {
	return func(d *Decoder) {
		d.tempDir = dir
	}
}

// Decoder implements measurement.Decoder for Plexlog databases.
type Decoder struct {
	roles   RoleTable
	tempDir string
}

// New constructs a decoder.
func New(opts ...Option) (*Decoder, error) {
	d := &Decoder{roles: DefaultRoles()}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.roles.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Type returns the logger type.
func (*Decoder) Type() measurement.LoggerType { return measurement.LoggerPlexlog }

// Decode spools src to a temporary file, opens it read-only and prepares the
// ordered scan. Unreadable databases and a missing table are structural
// violations.
func (d *Decoder) Decode(ctx context.Context, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	if src == nil {
		return nil, errors.New("plexlog: nil source")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	path, err := spool(d.tempDir, src)
	if err != nil {
		return nil, err
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		os.Remove(path)
		return nil, measurement.Structural(measurement.LoggerPlexlog, 0, fmt.Sprintf("open database: %v", err))
	}
	conn.SetInterrupt(ctx.Done())
	stmt, err := conn.Prepare(selectValues)
	if err != nil {
		conn.Close()
		os.Remove(path)
		return nil, measurement.Structural(measurement.LoggerPlexlog, 0, fmt.Sprintf("read data_values: %v", err))
	}

	s := &scan{
		roles:    d.roles,
		prefix:   opts.LoggerID,
		stmt:     stmt,
		warnings: parse.NewWarnings(measurement.LoggerPlexlog),
	}
	closer := func() error {
		ferr := stmt.Finalize()
		cerr := conn.Close()
		os.Remove(path)
		if ferr != nil {
			return ferr
		}
		return cerr
	}
	return parse.NewStream(ctx, s.warnings, s.next, closer), nil
}

func spool(dir string, src io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "plexlog-*.db")
	if err != nil {
		return "", fmt.Errorf("plexlog: spool: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("plexlog: spool: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("plexlog: spool: %w", err)
	}
	return f.Name(), nil
}

type scan struct {
	roles    RoleTable
	prefix   string
	stmt     *sqlite.Stmt
	warnings *parse.Warnings
	row      int
}

func (s *scan) next() (*measurement.Builder, error) {
	hasRow, err := s.stmt.Step()
	if err != nil {
		return nil, measurement.Structural(measurement.LoggerPlexlog, s.row, fmt.Sprintf("read data_values: %v", err))
	}
	if !hasRow {
		return nil, io.EOF
	}
	s.row++

	unix := s.stmt.ColumnInt64(0)
	deviceID := s.stmt.ColumnInt64(1)
	if s.stmt.ColumnIsNull(0) || unix <= 0 {
		s.warnings.Addf(s.row, "device %d: missing timestamp", deviceID)
		return nil, nil
	}
	role, ok := s.roles.Classify(deviceID)
	if !ok {
		s.warnings.Addf(s.row, "device %d: no role for device id", deviceID)
		return nil, nil
	}

	b := measurement.NewBuilder(measurement.LoggerPlexlog, s.loggerID(deviceID), time.Unix(unix, 0))
	b.Meta(measurement.MetaDeviceRole, measurement.Text(string(role)))
	if !s.stmt.ColumnIsNull(2) {
		v := s.stmt.ColumnFloat(2)
		switch role {
		case RoleInverter:
			b.Power(&v)
		case RoleIrradiance:
			b.Irradiance(&v)
		case RoleMeter:
			b.MetaFloat(metaGridPowerW, &v)
		}
	}
	if !s.stmt.ColumnIsNull(3) {
		for _, problem := range applyPacked(b, s.stmt.ColumnText(3)) {
			s.warnings.AddKeptf(s.row, "device %d: %v", deviceID, problem)
		}
	}
	return b, nil
}

func (s *scan) loggerID(deviceID int64) string {
	id := strconv.FormatInt(deviceID, 10)
	if s.prefix != "" {
		return s.prefix + "-" + id
	}
	return id
}
