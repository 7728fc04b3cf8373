package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

// RouteQuery asks the router for specialists, keeps those the registry can
// serve and records the decision.
func RouteQuery(
	ctx context.Context,
	in *GraphState,
	router contractx.Router,
	registry contractx.Registry,
) (*GraphState, error) {
	if err := checkpoint(ctx, in); err != nil {
		return nil, err
	}

	ids, err := router.Route(ctx, in.Run.UserQuery, in.Run.History)
	if err != nil {
		return nil, err
	}

	runnable := make([]contractx.SpecialistID, 0, len(ids))
	for _, id := range ids {
		if _, ok := registry.Lookup(id); ok {
			runnable = append(runnable, id)
		}
	}
	if len(runnable) == 0 {
		return nil, fmt.Errorf("%w: routed to %v, none registered", contractx.ErrRouting, ids)
	}

	if err := in.Run.SetRoutingDecision(runnable); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Interface("specialists", runnable).Msg("query routed")

	if err := in.Progress.Routed(runnable); err != nil {
		return nil, err
	}
	return in, nil
}
