package domain

import (
	"encoding/json"
	"time"
)

// PartyCount is the number of agents that meet at the barrier every round.
const PartyCount = 4

type AgentID string

const (
	AgentGrazer   AgentID = "grazer"
	AgentPest     AgentID = "pest"
	AgentProducer AgentID = "producer"
	AgentObserver AgentID = "observer"
)

// Agents lists every party in launch order.
var Agents = []AgentID{AgentGrazer, AgentPest, AgentProducer, AgentObserver}

type Field string

const (
	FieldCalendarMonth Field = "calendar_month"
	FieldCalendarYear  Field = "calendar_year"
	FieldPrecipitation Field = "precipitation"
	FieldTemperature   Field = "temperature"
	FieldCropHeight    Field = "crop_height"
	FieldGrazerCount   Field = "grazer_count"
	FieldPestCount     Field = "pest_count"
)

// FieldOwners maps every World field to the only agent allowed to write it.
// Writes happen in the commit phase, except the calendar which the observer
// advances in the settle phase.
var FieldOwners = map[Field]AgentID{
	FieldGrazerCount:   AgentGrazer,
	FieldPestCount:     AgentPest,
	FieldCropHeight:    AgentProducer,
	FieldPrecipitation: AgentProducer,
	FieldTemperature:   AgentProducer,
	FieldCalendarMonth: AgentObserver,
	FieldCalendarYear:  AgentObserver,
}

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// Observation is one recorded row: the calendar stamp plus every field of
// the world right after a round was committed.
type Observation struct {
	Timepoint     int     `json:"timepoint"`
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	Precipitation float64 `json:"precipitation"`
	Temperature   float64 `json:"temperature"`
	CropHeight    float64 `json:"crop_height"`
	GrazerCount   int     `json:"grazer_count"`
	PestCount     int     `json:"pest_count"`
}

// Growth is the producer's per-round output.
type Growth struct {
	Precipitation float64 `json:"precipitation"`
	Temperature   float64 `json:"temperature"`
	CropHeight    float64 `json:"crop_height"`
}

type Run struct {
	ID          string          `json:"id"`
	Status      RunStatus       `json:"status"`
	StartYear   int             `json:"start_year"`
	HorizonYear int             `json:"horizon_year"`
	Seed        int64           `json:"seed"`
	Rows        int             `json:"rows"`
	Config      json.RawMessage `json:"config"`
	LastError   string          `json:"last_error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

type RunEvent struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
