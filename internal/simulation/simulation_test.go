package simulation

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"grain_sim/internal/barrier"
	"grain_sim/internal/domain"
	"grain_sim/internal/ecology"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memoryRecorder struct {
	rows   []domain.Observation
	failAt int
}

func (r *memoryRecorder) Record(_ context.Context, obs domain.Observation) error {
	r.rows = append(r.rows, obs)
	if r.failAt > 0 && obs.Timepoint == r.failAt {
		return errors.New("disk full")
	}
	return nil
}

func scenarioWorld() *domain.World {
	return domain.NewWorld(domain.Seed{Year: 2019, GrazerCount: 1, PestCount: 100, CropHeight: 1.0})
}

func TestRunOneYearRecordsTwelveRows(t *testing.T) {
	rec := &memoryRecorder{}
	res, err := Run(context.Background(), scenarioWorld(), rec, Options{
		HorizonYear: 2020,
		Producer:    ecology.NewWeather(1).Next,
		Logger:      zaptest.NewLogger(t),
		TracePhases: true,
	})
	require.NoError(t, err)

	require.Len(t, rec.rows, 12)
	first := rec.rows[0]
	require.Equal(t, 1, first.Timepoint)
	require.Equal(t, 2019, first.Year)
	require.Equal(t, 1, first.Month)

	last := rec.rows[11]
	require.Equal(t, 12, last.Timepoint)
	require.Equal(t, 2020, last.Year)
	require.Equal(t, 0, last.Month)

	require.Equal(t, 2020, res.Final.CalendarYear)
	for _, id := range domain.Agents {
		require.Equal(t, 12, res.Rounds[id], "agent %s", id)
	}
}

func TestRunStopsImmediatelyAtHorizon(t *testing.T) {
	rec := &memoryRecorder{}
	res, err := Run(context.Background(), scenarioWorld(), rec, Options{HorizonYear: 2019})
	require.NoError(t, err)
	require.Empty(t, rec.rows)
	for _, id := range domain.Agents {
		require.Zero(t, res.Rounds[id])
	}
}

func TestRunRequiresRecorder(t *testing.T) {
	_, err := Run(context.Background(), scenarioWorld(), nil, Options{HorizonYear: 2020})
	require.Error(t, err)
}

func TestCalendarAdvancesOncePerRound(t *testing.T) {
	const years = 5
	rec := &memoryRecorder{}
	_, err := Run(context.Background(), scenarioWorld(), rec, Options{
		HorizonYear: 2019 + years,
		Producer:    ecology.NewWeather(3).Next,
	})
	require.NoError(t, err)
	require.Len(t, rec.rows, 12*years)

	year, month := 2019, 0
	for i, row := range rec.rows {
		month++
		if month == 12 {
			month = 0
			year++
		}
		require.Equal(t, i+1, row.Timepoint)
		require.Equal(t, year, row.Year, "row %d", i)
		require.Equal(t, month, row.Month, "row %d", i)
	}
	require.Equal(t, 2019+years, rec.rows[len(rec.rows)-1].Year)
}

// jitter yields a random number of times so agents reach the barrier in a
// different order every round.
func jitter(rng *rand.Rand) {
	for i := rng.Intn(4); i > 0; i-- {
		runtime.Gosched()
	}
}

type couplingRules struct {
	grazer   GrazerFunc
	pest     PestFunc
	producer ProducerFunc
}

// newCouplingRules returns transition functions that each read fields owned
// by other agents. If any of them sees a value committed in the same round,
// its output diverges from the sequential model.
func newCouplingRules(seed int64) couplingRules {
	gr := rand.New(rand.NewSource(seed))
	pr := rand.New(rand.NewSource(seed + 1))
	cr := rand.New(rand.NewSource(seed + 2))
	return couplingRules{
		grazer: func(w domain.World) int {
			jitter(gr)
			return (w.GrazerCount + w.PestCount%7 + int(w.CropHeight)%3 + 1) % 500
		},
		pest: func(w domain.World) int {
			jitter(pr)
			return (w.PestCount + w.GrazerCount + w.CalendarMonth) % 1000
		},
		producer: func(w domain.World) domain.Growth {
			jitter(cr)
			return domain.Growth{
				Precipitation: float64(w.CalendarMonth),
				Temperature:   float64(w.PestCount),
				CropHeight:    math.Mod(w.CropHeight+float64(w.GrazerCount%5)+1, 1000),
			}
		},
	}
}

func sequentialModel(seed domain.Seed, horizon int) []domain.Observation {
	rules := newCouplingRules(0)
	w := domain.NewWorld(seed)
	var rows []domain.Observation
	for !w.Done(horizon) {
		snapshot := *w
		g := rules.grazer(snapshot)
		p := rules.pest(snapshot)
		c := rules.producer(snapshot)
		w.GrazerCount = g
		w.PestCount = p
		w.CropHeight = c.CropHeight
		w.Precipitation = c.Precipitation
		w.Temperature = c.Temperature
		w.AdvanceCalendar()
		rows = append(rows, w.Observe(len(rows)+1))
	}
	return rows
}

func TestComputeReadsOnlyPreviousRoundState(t *testing.T) {
	seed := domain.Seed{Year: 2019, GrazerCount: 1, PestCount: 100, CropHeight: 1.0}
	const horizon = 2029
	want := sequentialModel(seed, horizon)

	for attempt := int64(0); attempt < 20; attempt++ {
		rules := newCouplingRules(attempt * 31)
		rec := &memoryRecorder{}
		_, err := Run(context.Background(), domain.NewWorld(seed), rec, Options{
			HorizonYear: horizon,
			Grazer:      rules.grazer,
			Pest:        rules.pest,
			Producer:    rules.producer,
		})
		require.NoError(t, err)
		require.Equal(t, want, rec.rows, "attempt %d", attempt)
	}
}

func TestRecorderFailureDoesNotStallAgents(t *testing.T) {
	rec := &memoryRecorder{failAt: 3}
	res, err := Run(context.Background(), scenarioWorld(), rec, Options{
		HorizonYear: 2020,
		Producer:    ecology.NewWeather(5).Next,
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "record timepoint 3")
	require.Len(t, rec.rows, 12)
	for _, id := range domain.Agents {
		require.Equal(t, 12, res.Rounds[id], "agent %s", id)
	}
}

func TestMissingPartyBlocksEveryAgent(t *testing.T) {
	world := scenarioWorld()
	b := barrier.New(domain.PartyCount)
	agents := []Agent{
		NewGrazer(world, b, 2020, ecology.Grazer, nil, false),
		NewPest(world, b, 2020, ecology.Pest, nil, false),
		NewProducer(world, b, 2020, ecology.NewWeather(9).Next, nil, false),
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := launch(context.Background(), world, agents)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-done:
		t.Fatalf("agents returned without the observer")
	case <-time.After(200 * time.Millisecond):
	}
	arrived, _ := b.Counts()
	require.Equal(t, 3, arrived)

	// Late observer completes the quorum; the run then finishes normally.
	rec := &memoryRecorder{}
	rounds, err := NewObserver(world, b, 2020, rec, nil, false).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, rounds)

	select {
	case out := <-done:
		require.NoError(t, out.err)
		for _, a := range agents {
			require.Equal(t, 12, out.res.Rounds[a.ID()])
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("agents did not finish after the observer joined")
	}
	require.Len(t, rec.rows, 12)
}
