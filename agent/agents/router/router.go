package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	llmx "github.com/tanpawarit/brain-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
	toolx "github.com/tanpawarit/brain-orchestrator/agent/tool"
)

const (
	historyTurns    = 4
	historyTurnSize = 300
)

var routingParams = llmx.Params{Temperature: 0, MaxTokens: 200}

type Config struct {
	DefaultSpecialist string `envconfig:"DEFAULT_SPECIALIST" split_words:"true" default:"data_query"`
}

type decision struct {
	Specialists []string `json:"specialists"`
}

// Router picks the specialists for a question. The model decides first; a
// keyword heuristic and then the configured default cover model failures.
type Router struct {
	runner     *llmx.StructuredRunner[decision]
	prompts    promptx.Source
	registered []contractx.SpecialistID
	fallback   contractx.SpecialistID
}

var _ contractx.Router = (*Router)(nil)

func New(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	prompts promptx.Source,
	registered []contractx.SpecialistID,
	cfg Config,
) (*Router, error) {
	if prompts == nil {
		return nil, errors.New("prompt source is required")
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("%w: no specialists registered", contractx.ErrValidation)
	}

	fallback := contractx.SpecialistID(strings.TrimSpace(cfg.DefaultSpecialist))
	if fallback != "" && !contains(registered, fallback) {
		return nil, fmt.Errorf("%w: default specialist %q is not registered", contractx.ErrValidation, fallback)
	}

	runner, err := llmx.NewStructuredRunner[decision](ctx, chatModel, "router.route")
	if err != nil {
		return nil, fmt.Errorf("%w: compile router graph: %v", contractx.ErrModelInvoke, err)
	}

	return &Router{
		runner:     runner,
		prompts:    prompts,
		registered: append([]contractx.SpecialistID(nil), registered...),
		fallback:   fallback,
	}, nil
}

func (r *Router) Route(ctx context.Context, query string, history []contractx.ConversationTurn) ([]contractx.SpecialistID, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", contractx.ErrValidation)
	}
	logger := zerolog.Ctx(ctx)

	system := promptx.Fill(r.prompts.Current().Router, map[string]string{
		"capabilities": toolx.Describe(r.registered),
	})
	out, err := r.runner.Generate(ctx, system, routingInput(query, history), routingParams)
	if err == nil {
		if ids := r.filter(out.Specialists); len(ids) > 0 {
			return ids, nil
		}
		err = fmt.Errorf("%w: no registered specialist in %v", contractx.ErrSchemaViolation, out.Specialists)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if ids := heuristic(query, r.registered); len(ids) > 0 {
		logger.Warn().Err(err).Interface("specialists", ids).Msg("router fell back to keyword heuristic")
		return ids, nil
	}
	if r.fallback != "" {
		logger.Warn().Err(err).Str("specialist", string(r.fallback)).Msg("router fell back to default specialist")
		return []contractx.SpecialistID{r.fallback}, nil
	}
	return nil, fmt.Errorf("%w: %v", contractx.ErrRouting, err)
}

// filter keeps registered names in order, without duplicates.
func (r *Router) filter(names []string) []contractx.SpecialistID {
	seen := make(map[contractx.SpecialistID]struct{}, len(names))
	out := make([]contractx.SpecialistID, 0, len(names))
	for _, name := range names {
		id := contractx.SpecialistID(strings.ToLower(strings.TrimSpace(name)))
		if !contains(r.registered, id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func routingInput(query string, history []contractx.ConversationTurn) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}

	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, llmx.Truncate(strings.TrimSpace(turn.Content), historyTurnSize))
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
