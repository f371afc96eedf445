package simulation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"grain_sim/internal/domain"
)

// Phase names the three barrier-delimited segments of a round.
type Phase string

const (
	PhaseCompute Phase = "compute"
	PhaseCommit  Phase = "commit"
	PhaseSettle  Phase = "settle"
)

type Barrier interface {
	Await()
}

type Recorder interface {
	Record(ctx context.Context, obs domain.Observation) error
}

type (
	GrazerFunc   func(domain.World) int
	PestFunc     func(domain.World) int
	ProducerFunc func(domain.World) domain.Growth
)

// Agent is one party of the simulation. Run loops over rounds until the
// calendar reaches the horizon and returns how many rounds it completed.
// Every agent must call Await exactly three times per round.
type Agent interface {
	ID() domain.AgentID
	Run(ctx context.Context) (int, error)
}

type party struct {
	id      domain.AgentID
	world   *domain.World
	sync    Barrier
	horizon int
	logger  *zap.Logger
	trace   bool
	round   int
}

func newParty(id domain.AgentID, world *domain.World, sync Barrier, horizon int, logger *zap.Logger, trace bool) party {
	if logger == nil {
		logger = zap.NewNop()
	}
	return party{
		id:      id,
		world:   world,
		sync:    sync,
		horizon: horizon,
		logger:  logger.With(zap.String("agent", string(id))),
		trace:   trace,
	}
}

func (p *party) ID() domain.AgentID {
	return p.id
}

func (p *party) done() bool {
	return p.world.Done(p.horizon)
}

func (p *party) await(phase Phase) {
	if p.trace {
		p.logger.Debug("waiting at barrier", zap.Int("round", p.round), zap.String("phase", string(phase)))
	}
	p.sync.Await()
	if p.trace {
		p.logger.Debug("resuming", zap.Int("round", p.round), zap.String("phase", string(phase)))
	}
}

// Grazer owns GrazerCount.
type Grazer struct {
	party
	next GrazerFunc
}

func NewGrazer(world *domain.World, sync Barrier, horizon int, next GrazerFunc, logger *zap.Logger, trace bool) *Grazer {
	return &Grazer{
		party: newParty(domain.AgentGrazer, world, sync, horizon, logger, trace),
		next:  next,
	}
}

func (g *Grazer) Run(context.Context) (int, error) {
	for !g.done() {
		next := g.next(*g.world)
		g.await(PhaseCompute)

		g.world.GrazerCount = next
		g.await(PhaseCommit)

		g.await(PhaseSettle)
		g.round++
	}
	return g.round, nil
}

// Pest owns PestCount.
type Pest struct {
	party
	next PestFunc
}

func NewPest(world *domain.World, sync Barrier, horizon int, next PestFunc, logger *zap.Logger, trace bool) *Pest {
	return &Pest{
		party: newParty(domain.AgentPest, world, sync, horizon, logger, trace),
		next:  next,
	}
}

func (p *Pest) Run(context.Context) (int, error) {
	for !p.done() {
		next := p.next(*p.world)
		p.await(PhaseCompute)

		p.world.PestCount = next
		p.await(PhaseCommit)

		p.await(PhaseSettle)
		p.round++
	}
	return p.round, nil
}

// Producer owns CropHeight, Precipitation and Temperature.
type Producer struct {
	party
	next ProducerFunc
}

func NewProducer(world *domain.World, sync Barrier, horizon int, next ProducerFunc, logger *zap.Logger, trace bool) *Producer {
	return &Producer{
		party: newParty(domain.AgentProducer, world, sync, horizon, logger, trace),
		next:  next,
	}
}

func (p *Producer) Run(context.Context) (int, error) {
	for !p.done() {
		next := p.next(*p.world)
		p.await(PhaseCompute)

		p.world.CropHeight = next.CropHeight
		p.world.Precipitation = next.Precipitation
		p.world.Temperature = next.Temperature
		p.await(PhaseCommit)

		p.await(PhaseSettle)
		p.round++
	}
	return p.round, nil
}

// Observer owns the calendar. In the settle phase it advances the calendar
// by one month and records the committed state stamped with the new date,
// so the first row of a run is month 1.
type Observer struct {
	party
	recorder Recorder
}

func NewObserver(world *domain.World, sync Barrier, horizon int, recorder Recorder, logger *zap.Logger, trace bool) *Observer {
	return &Observer{
		party:    newParty(domain.AgentObserver, world, sync, horizon, logger, trace),
		recorder: recorder,
	}
}

// Run keeps going when the recorder fails: leaving early would strand the
// other agents at the barrier. The first recorder error is returned once
// the horizon is reached.
func (o *Observer) Run(ctx context.Context) (int, error) {
	var firstErr error
	for !o.done() {
		o.await(PhaseCompute)
		o.await(PhaseCommit)

		o.world.AdvanceCalendar()
		timepoint := o.round + 1
		if err := o.recorder.Record(ctx, o.world.Observe(timepoint)); err != nil {
			o.logger.Warn("record observation failed", zap.Int("timepoint", timepoint), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("record timepoint %d: %w", timepoint, err)
			}
		}
		o.await(PhaseSettle)
		o.round++
	}
	return o.round, firstErr
}
