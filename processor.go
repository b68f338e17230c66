package websub

import (
	"context"
	"fmt"
	"time"
)

// Processor drives an Engine in a loop. Errors and panics raised by the engine
// are logged and treated as "no job", so one bad job never stops the loop.
//
// A Processor is single-threaded; run several to scale out.
type Processor struct {
	engine Engine
	settings
}

// NewProcessor creates a processor for engine.
//
// Optional options: WithLogger, WithIdleInterval (default 1s), WithName.
func NewProcessor(engine Engine, opts ...Option) (*Processor, error) {
	if engine == nil {
		return nil, NewError(ErrCodeConfiguration, "Engine is required")
	}

	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Processor{engine: engine, settings: s}, nil
}

// Next runs exactly one engine iteration.
func (p *Processor) Next(ctx context.Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("%s: engine panicked: %v", p.name, r)
			result = ResultNoJob
		}
	}()

	result, err := p.engine.Execute(ctx)
	if err != nil {
		p.logger.Errorf("%s: %v", p.name, err)
		return ResultNoJob
	}
	return result
}

// Run loops until ctx is done. After an empty poll it sleeps for the idle
// interval; otherwise it polls again immediately. Cancellation is observed
// only between iterations: the running iteration gets a context that is not
// canceled with ctx, so a job is never abandoned halfway.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info(fmt.Sprintf("%s processor started", p.name))

	iterationCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			p.logger.Info(fmt.Sprintf("%s processor stopped", p.name))
			return nil
		}

		if p.Next(iterationCtx) != ResultNoJob {
			continue
		}

		if p.idleInterval <= 0 {
			continue
		}
		timer := time.NewTimer(p.idleInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}
