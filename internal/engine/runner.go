package engine

import (
	"context"
	"time"
)

// Simulation drives an Engine on a clock. It is the single ticking task of a
// simulated run; cancelling its context stops every future tick.
type Simulation struct {
	*Engine
	clock Clock
	scale float64
}

// NewSimulation wraps an engine. Scale multiplies every nominal duration
// (0.5 runs twice as fast); zero or negative means 1.
func NewSimulation(e *Engine, clock Clock, scale float64) *Simulation {
	if clock == nil {
		clock = RealClock{}
	}
	if scale <= 0 {
		scale = 1
	}
	return &Simulation{Engine: e, clock: clock, scale: scale}
}

// Run starts the engine and applies ticks as they fall due. It returns nil
// once nothing is scheduled (completed, cancelled or failed) and ctx.Err()
// when the context ends first, in which case the engine is cancelled.
func (s *Simulation) Run(ctx context.Context) error {
	s.Start()
	origin := s.clock.Now()
	for {
		due, ok := s.NextDue()
		if !ok {
			return nil
		}
		wait := time.Duration(float64(due)*s.scale) - s.clock.Now().Sub(origin)
		if wait > 0 {
			select {
			case <-ctx.Done():
				s.Cancel()
				return ctx.Err()
			case <-s.clock.After(wait):
			}
		}
		if ctx.Err() != nil {
			s.Cancel()
			return ctx.Err()
		}
		s.AdvanceTo(due)
	}
}
