package domain

// World is the state shared by all agents. It has no locking of its own:
// the barrier separates reads from writes and FieldOwners keeps writers
// disjoint. Do not add a mutex here.
type World struct {
	CalendarMonth int
	CalendarYear  int
	Precipitation float64
	Temperature   float64
	CropHeight    float64
	GrazerCount   int
	PestCount     int
}

// Seed holds the starting values of a run.
type Seed struct {
	Year        int
	GrazerCount int
	PestCount   int
	CropHeight  float64
}

func NewWorld(seed Seed) *World {
	return &World{
		CalendarMonth: 0,
		CalendarYear:  seed.Year,
		CropHeight:    seed.CropHeight,
		GrazerCount:   seed.GrazerCount,
		PestCount:     seed.PestCount,
	}
}

// AdvanceCalendar moves the calendar forward one month, rolling 12 over
// into the next year.
func (w *World) AdvanceCalendar() {
	w.CalendarMonth++
	if w.CalendarMonth == 12 {
		w.CalendarMonth = 0
		w.CalendarYear++
	}
}

// Done reports whether the calendar has reached the horizon year.
func (w *World) Done(horizonYear int) bool {
	return w.CalendarYear >= horizonYear
}

// Observe stamps the current field values with a timepoint.
func (w *World) Observe(timepoint int) Observation {
	return Observation{
		Timepoint:     timepoint,
		Year:          w.CalendarYear,
		Month:         w.CalendarMonth,
		Precipitation: w.Precipitation,
		Temperature:   w.Temperature,
		CropHeight:    w.CropHeight,
		GrazerCount:   w.GrazerCount,
		PestCount:     w.PestCount,
	}
}
