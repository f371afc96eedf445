// Package ecology holds the default per-agent transition functions: grazers
// and pests feed on the crop, and the crop grows with the seasonal weather.
// Each function reads a snapshot of the world and returns next values; none
// of them writes shared state.
package ecology

import (
	"math"
	"math/rand"
	"sync"

	"grain_sim/internal/domain"
)

const (
	GrowthPerMonth     = 8.0
	GrazerEatsPerMonth = 0.5
	PestEatsPerMonth   = 0.002

	AvgPrecipPerMonth = 6.0
	AmpPrecipPerMonth = 6.0
	RandomPrecip      = 2.0

	AvgTemp    = 50.0
	AmpTemp    = 20.0
	RandomTemp = 10.0

	MidTemp   = 40.0
	MidPrecip = 10.0
)

// Grazer shrinks the herd by one when it outnumbers the crop height and
// grows it by one otherwise.
func Grazer(w domain.World) int {
	if float64(w.GrazerCount) > w.CropHeight {
		return w.GrazerCount - 1
	}
	return w.GrazerCount + 1
}

// Pest halves the swarm above its carrying capacity (a third of the crop)
// and grows it by half below.
func Pest(w domain.World) int {
	capacity := w.CropHeight / 3.0 / PestEatsPerMonth
	if float64(w.PestCount) > capacity {
		return w.PestCount / 2
	}
	return w.PestCount/2 + w.PestCount
}

// Weather draws this month's temperature and precipitation and grows the
// crop accordingly. The zero value is not usable; call NewWeather.
type Weather struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewWeather(seed int64) *Weather {
	return &Weather{rng: rand.New(rand.NewSource(seed))}
}

// Next returns the weather and crop height for the month in w.
func (g *Weather) Next(w domain.World) domain.Growth {
	ang := (30.0*float64(w.CalendarMonth) + 15.0) * (math.Pi / 180.0)

	temp := AvgTemp - AmpTemp*math.Cos(ang) + g.uniform(-RandomTemp, RandomTemp)
	precip := AvgPrecipPerMonth + AmpPrecipPerMonth*math.Sin(ang) + g.uniform(-RandomPrecip, RandomPrecip)
	if precip < 0 {
		precip = 0
	}

	tempFactor := math.Exp(-sqr((temp - MidTemp) / 10.0))
	precipFactor := math.Exp(-sqr((precip - MidPrecip) / 10.0))

	height := w.CropHeight + tempFactor*precipFactor*GrowthPerMonth
	height -= float64(w.GrazerCount) * GrazerEatsPerMonth
	height -= float64(w.PestCount) * PestEatsPerMonth
	if height < 0 {
		height = 0
	}
	return domain.Growth{
		Precipitation: precip,
		Temperature:   temp,
		CropHeight:    height,
	}
}

func (g *Weather) uniform(low, high float64) float64 {
	g.mu.Lock()
	r := g.rng.Float64()
	g.mu.Unlock()
	return low + r*(high-low)
}

func sqr(x float64) float64 { return x * x }
