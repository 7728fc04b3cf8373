package state

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

var (
	ErrEmptyQuery           = errors.New("user query is empty")
	ErrRoutingAlreadySet    = errors.New("routing decision already written")
	ErrEmptyRouting         = errors.New("routing decision is empty")
	ErrFinalResponseWritten = errors.New("final response already written")
)

// Orchestration is the single mutable object threaded through one pipeline run.
// Every field has exactly one writer; summaries are guarded so specialists may
// append from separate goroutines.
type Orchestration struct {
	RunID     string
	UserQuery string
	History   []contractx.ConversationTurn
	StartedAt time.Time

	routing       []contractx.SpecialistID
	finalResponse string
	finalized     bool

	mu        sync.Mutex
	summaries []contractx.SpecialistSummary
}

func NewOrchestration(runID, query string, history []contractx.ConversationTurn, now time.Time) (*Orchestration, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	turns := make([]contractx.ConversationTurn, 0, len(history))
	for _, turn := range history {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		turns = append(turns, turn)
	}

	return &Orchestration{
		RunID:     runID,
		UserQuery: query,
		History:   turns,
		StartedAt: now.UTC(),
	}, nil
}

/* ----------------------------- routing ----------------------------- */

func (o *Orchestration) SetRoutingDecision(ids []contractx.SpecialistID) error {
	if o.routing != nil {
		return ErrRoutingAlreadySet
	}
	if len(ids) == 0 {
		return ErrEmptyRouting
	}
	for _, id := range ids {
		if !id.Valid() {
			return fmt.Errorf("%w: unknown specialist %q", contractx.ErrValidation, id)
		}
	}
	o.routing = append([]contractx.SpecialistID(nil), ids...)
	return nil
}

func (o *Orchestration) RoutingDecision() []contractx.SpecialistID {
	return append([]contractx.SpecialistID(nil), o.routing...)
}

/* ---------------------------- summaries ---------------------------- */

var _ contractx.SummarySink = (*Orchestration)(nil)

func (o *Orchestration) AppendSummary(entry contractx.SpecialistSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, entry)
}

// Summaries returns a copy in append order.
func (o *Orchestration) Summaries() []contractx.SpecialistSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]contractx.SpecialistSummary(nil), o.summaries...)
}

// ToolsUsed aggregates tool identifiers in first-seen order.
func (o *Orchestration) ToolsUsed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[string]struct{}, len(o.summaries))
	out := make([]string, 0, len(o.summaries))
	for _, s := range o.summaries {
		tool := strings.TrimSpace(s.ToolUsed)
		if tool == "" {
			continue
		}
		if _, ok := seen[tool]; ok {
			continue
		}
		seen[tool] = struct{}{}
		out = append(out, tool)
	}
	return out
}

func (o *Orchestration) HasErrors() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.summaries {
		if !s.Succeeded {
			return true
		}
	}
	return false
}

/* -------------------------- final response -------------------------- */

func (o *Orchestration) SetFinalResponse(text string) error {
	if o.finalized {
		return ErrFinalResponseWritten
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: final response is empty", contractx.ErrValidation)
	}
	o.finalResponse = text
	o.finalized = true
	return nil
}

func (o *Orchestration) FinalResponse() string {
	return o.finalResponse
}
