package orchestratornode

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

type FanOut struct {
	Parallel    bool
	MaxParallel int
}

// RunSpecialists executes every routed specialist once. Sequential by
// default; with Parallel the specialists run in an errgroup bounded by
// MaxParallel. Either way each start/complete pair is reported around its
// own Execute call.
func RunSpecialists(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
	fan FanOut,
) (*GraphState, error) {
	if err := checkpoint(ctx, in); err != nil {
		return nil, err
	}

	ids := in.Run.RoutingDecision()
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: routing decision missing", contractx.ErrValidation)
	}

	if !fan.Parallel || len(ids) == 1 {
		for _, id := range ids {
			if err := dispatchToSpecialist(ctx, in, registry, id); err != nil {
				return nil, err
			}
		}
		return in, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if fan.MaxParallel > 0 {
		g.SetLimit(fan.MaxParallel)
	}
	for _, id := range ids {
		g.Go(func() error {
			return dispatchToSpecialist(gctx, in, registry, id)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return in, nil
}

func dispatchToSpecialist(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
	id contractx.SpecialistID,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	specialist, ok := registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: specialist %s is not registered", contractx.ErrRouting, id)
	}

	if err := in.Progress.SpecialistStart(id); err != nil {
		return err
	}

	sink := &captureSink{dst: in.Run}
	specialist.Execute(ctx, in.Run.UserQuery, sink)

	// Nothing further is reported once the run has been stopped.
	if err := ctx.Err(); err != nil {
		return err
	}
	return in.Progress.SpecialistComplete(id, sink.succeeded)
}

// captureSink forwards to the run state and remembers the outcome of the
// single entry the specialist records.
type captureSink struct {
	dst       contractx.SummarySink
	succeeded bool
}

func (s *captureSink) AppendSummary(entry contractx.SpecialistSummary) {
	s.succeeded = entry.Succeeded
	s.dst.AppendSummary(entry)
}
