package simulation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grain_sim/internal/barrier"
	"grain_sim/internal/domain"
	"grain_sim/internal/ecology"
)

type Options struct {
	HorizonYear int
	Grazer      GrazerFunc
	Pest        PestFunc
	Producer    ProducerFunc
	Logger      *zap.Logger
	TracePhases bool
}

func (o Options) withDefaults() Options {
	if o.Grazer == nil {
		o.Grazer = ecology.Grazer
	}
	if o.Pest == nil {
		o.Pest = ecology.Pest
	}
	if o.Producer == nil {
		o.Producer = ecology.NewWeather(time.Now().UnixNano()).Next
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type Result struct {
	Rounds map[domain.AgentID]int
	Final  domain.World
}

// Run launches the four agents against one barrier and the given world and
// blocks until all of them pass the horizon. world must not be touched by
// the caller until Run returns.
func Run(ctx context.Context, world *domain.World, recorder Recorder, opts Options) (Result, error) {
	if world == nil {
		return Result{}, errors.New("world is required")
	}
	if recorder == nil {
		return Result{}, errors.New("recorder is required")
	}
	opts = opts.withDefaults()

	b := barrier.New(domain.PartyCount)
	agents := []Agent{
		NewGrazer(world, b, opts.HorizonYear, opts.Grazer, opts.Logger, opts.TracePhases),
		NewPest(world, b, opts.HorizonYear, opts.Pest, opts.Logger, opts.TracePhases),
		NewProducer(world, b, opts.HorizonYear, opts.Producer, opts.Logger, opts.TracePhases),
		NewObserver(world, b, opts.HorizonYear, recorder, opts.Logger, opts.TracePhases),
	}

	opts.Logger.Info("simulation started",
		zap.Int("start_year", world.CalendarYear),
		zap.Int("horizon_year", opts.HorizonYear),
		zap.Int("parties", b.Parties()),
	)
	started := time.Now()
	res, err := launch(ctx, world, agents)
	opts.Logger.Info("simulation finished",
		zap.Int("rounds", res.Rounds[domain.AgentObserver]),
		zap.Duration("elapsed", time.Since(started)),
		zap.Error(err),
	)
	return res, err
}

func launch(ctx context.Context, world *domain.World, agents []Agent) (Result, error) {
	rounds := make([]int, len(agents))
	var g errgroup.Group
	for i, a := range agents {
		i, a := i, a
		g.Go(func() error {
			n, err := a.Run(ctx)
			rounds[i] = n
			return err
		})
	}
	err := g.Wait()

	res := Result{
		Rounds: make(map[domain.AgentID]int, len(agents)),
		Final:  *world,
	}
	for i, a := range agents {
		res.Rounds[a.ID()] = rounds[i]
	}
	return res, err
}
