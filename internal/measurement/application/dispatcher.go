package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	measurement "pv-telemetry/internal/measurement/domain"
)

var (
	// ErrDuplicateDecoder is returned when two decoders claim one logger type.
	ErrDuplicateDecoder = errors.New("dispatcher: duplicate decoder")
	// ErrNilDecoder is returned for nil registrations.
	ErrNilDecoder = errors.New("dispatcher: nil decoder")
)

// Dispatcher routes a declared logger type to its decoder. The table is
// fixed at construction and safe for concurrent use.
type Dispatcher struct {
	decoders map[measurement.LoggerType]measurement.Decoder
}

// NewDispatcher builds the routing table.
func NewDispatcher(decoders ...measurement.Decoder) (*Dispatcher, error) {
	table := make(map[measurement.LoggerType]measurement.Decoder, len(decoders))
	for _, d := range decoders {
		if d == nil {
			return nil, ErrNilDecoder
		}
		t := d.Type()
		if !t.IsValid() {
			return nil, fmt.Errorf("dispatcher: decoder for unknown logger type %q", t)
		}
		if _, exists := table[t]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDecoder, t)
		}
		table[t] = d
	}
	return &Dispatcher{decoders: table}, nil
}

// Decode resolves declaredType and starts its decoder. Unknown types and
// known types without a decoder fail with an UnknownFormat DecodeError.
func (d *Dispatcher) Decode(ctx context.Context, declaredType string, src io.Reader, opts measurement.Options) (measurement.Stream, error) {
	decoder, err := d.Resolve(declaredType)
	if err != nil {
		return nil, err
	}
	return decoder.Decode(ctx, src, opts)
}

// Resolve returns the decoder for a declared logger type.
func (d *Dispatcher) Resolve(declaredType string) (measurement.Decoder, error) {
	t, err := measurement.ParseLoggerType(strings.TrimSpace(declaredType))
	if err != nil {
		return nil, err
	}
	decoder, ok := d.decoders[t]
	if !ok {
		return nil, measurement.UnknownFormat(t)
	}
	return decoder, nil
}

// Types lists the logger types with a registered decoder, sorted.
func (d *Dispatcher) Types() []measurement.LoggerType {
	out := make([]measurement.LoggerType, 0, len(d.decoders))
	for t := range d.decoders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
