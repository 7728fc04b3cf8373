package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Run == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Run.FinalResponse())
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: synthesizer returned empty response", contractx.ErrValidation)
	}
	return GraphOutput{
		Response:  reply,
		ToolsUsed: in.Run.ToolsUsed(),
		HasErrors: in.Run.HasErrors(),
	}, nil
}
