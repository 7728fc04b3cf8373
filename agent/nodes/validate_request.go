package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	statex "github.com/tanpawarit/brain-orchestrator/agent/state"
)

var ErrInvalidMessage = errors.New("message is empty")

// Progress is the part of the progress reporter the nodes drive. It is bound
// to the caller's context, not the run's.
type Progress interface {
	Routed(ids []contractx.SpecialistID) error
	SpecialistStart(id contractx.SpecialistID) error
	SpecialistComplete(id contractx.SpecialistID, succeeded bool) error
	Synthesizing() error
}

type GraphInput struct {
	RunID    string
	Message  string
	History  []contractx.ConversationTurn
	Progress Progress
}

type GraphOutput struct {
	Response  string
	ToolsUsed []string
	HasErrors bool
}

type GraphState struct {
	Run      *statex.Orchestration
	Progress Progress
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	if in.Progress == nil {
		return nil, fmt.Errorf("%w: progress reporter is required", contractx.ErrValidation)
	}

	run, err := statex.NewOrchestration(in.RunID, in.Message, in.History, nowFn())
	if err != nil {
		if errors.Is(err, statex.ErrEmptyQuery) {
			return nil, ErrInvalidMessage
		}
		return nil, err
	}

	return &GraphState{Run: run, Progress: in.Progress}, nil
}

// checkpoint stops the run once its context is done.
func checkpoint(ctx context.Context, in *GraphState) error {
	if in == nil || in.Run == nil {
		return fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	return ctx.Err()
}
