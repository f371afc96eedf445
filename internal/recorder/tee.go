package recorder

import (
	"context"
	"errors"

	"grain_sim/internal/domain"
)

type Sink interface {
	Record(ctx context.Context, obs domain.Observation) error
}

type tee []Sink

// Tee records every observation to all sinks, in order. A failing sink does
// not stop the others; the errors are joined.
func Tee(sinks ...Sink) Sink {
	out := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t tee) Record(ctx context.Context, obs domain.Observation) error {
	var errs []error
	for _, s := range t {
		if err := s.Record(ctx, obs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
