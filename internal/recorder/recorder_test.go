package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"grain_sim/internal/domain"
)

func TestOpenTSVWritesHeaderAndMetricRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "grain_sim.txt")
	rec, err := OpenTSV(path)
	require.NoError(t, err)

	err = rec.Record(context.Background(), domain.Observation{
		Timepoint:     1,
		Year:          2019,
		Month:         1,
		Precipitation: 10,
		Temperature:   212,
		CropHeight:    1,
		GrazerCount:   2,
		PestCount:     150,
	})
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "timepoint\tYear\tMonth\tPrecip(cm)\tTemp(C)\tHeight(cm)\tNumDeer\tNumLocust (100x)", lines[0])
	require.Equal(t, "1\t2019\t1\t25.400\t100.000\t2.540\t2\t1.500", lines[1])
}

func TestOpenTSVFailsForUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := OpenTSV(filepath.Join(blocker, "grain_sim.txt"))
	require.Error(t, err)
}

type failingSink struct{ err error }

func (f failingSink) Record(context.Context, domain.Observation) error { return f.err }

func TestTeeRecordsToEverySink(t *testing.T) {
	var a, b bytes.Buffer
	boom := errors.New("boom")
	sink := Tee(NewTSV(&a), nil, failingSink{err: boom}, NewTSV(&b))

	err := sink.Record(context.Background(), domain.Observation{Timepoint: 4, Year: 2020, Month: 3})
	require.ErrorIs(t, err, boom)
	require.Equal(t, a.String(), b.String())
	require.True(t, strings.HasPrefix(a.String(), "4\t2020\t3\t"))
}
