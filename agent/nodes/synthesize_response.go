package orchestratornode

import (
	"context"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

func SynthesizeResponse(
	ctx context.Context,
	in *GraphState,
	synthesizer contractx.Synthesizer,
) (*GraphState, error) {
	if err := checkpoint(ctx, in); err != nil {
		return nil, err
	}
	if err := in.Progress.Synthesizing(); err != nil {
		return nil, err
	}

	text, err := synthesizer.Synthesize(ctx, in.Run.UserQuery, in.Run.History, in.Run.Summaries())
	if err != nil {
		return nil, err
	}
	if err := in.Run.SetFinalResponse(text); err != nil {
		return nil, err
	}
	return in, nil
}
