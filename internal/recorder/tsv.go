// Package recorder provides sinks for observation rows.
package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"grain_sim/internal/domain"
)

var header = []string{
	"timepoint", "Year", "Month",
	"Precip(cm)", "Temp(C)", "Height(cm)",
	"NumDeer", "NumLocust (100x)",
}

// TSV writes one tab-separated line per observation, converted to metric
// units, under a fixed header line.
type TSV struct {
	closer io.Closer
	w      *bufio.Writer
}

// OpenTSV creates (or truncates) path and writes the header.
func OpenTSV(path string) (*TSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	t := NewTSV(f)
	if err := t.writeLine(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return t, nil
}

// NewTSV wraps w without writing a header. If w is an io.Closer, Close
// closes it.
func NewTSV(w io.Writer) *TSV {
	t := &TSV{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

func (t *TSV) Record(_ context.Context, obs domain.Observation) error {
	return t.writeLine([]string{
		strconv.Itoa(obs.Timepoint),
		strconv.Itoa(obs.Year),
		strconv.Itoa(obs.Month),
		formatFloat(InchesToCentimeters(obs.Precipitation)),
		formatFloat(FahrenheitToCelsius(obs.Temperature)),
		formatFloat(InchesToCentimeters(obs.CropHeight)),
		strconv.Itoa(obs.GrazerCount),
		formatFloat(float64(obs.PestCount) / 100.0),
	})
}

func (t *TSV) Close() error {
	err := t.w.Flush()
	if t.closer != nil {
		err = errors.Join(err, t.closer.Close())
	}
	return err
}

func (t *TSV) writeLine(fields []string) error {
	if _, err := t.w.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
		return err
	}
	return t.w.Flush()
}

func InchesToCentimeters(v float64) float64 {
	return 2.54 * v
}

func FahrenheitToCelsius(v float64) float64 {
	return (v - 32.0) * 5.0 / 9.0
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
