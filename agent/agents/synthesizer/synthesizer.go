package synthesizer

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
	historyTurns       = 6
	assistantTurnChars = 200
	userTurnChars      = 500
)

var synthesisParams = llmx.Params{Temperature: 0.5, MaxTokens: 1000}

// Synthesizer writes the final answer from specialist summaries only.
type Synthesizer struct {
	text    *llmx.TextRunner
	prompts promptx.Source
}

var _ contractx.Synthesizer = (*Synthesizer)(nil)

func New(ctx context.Context, chatModel einomodel.BaseChatModel, prompts promptx.Source) (*Synthesizer, error) {
	if prompts == nil {
		return nil, errors.New("prompt source is required")
	}
	text, err := llmx.NewTextRunner(ctx, chatModel, "synthesizer.answer")
	if err != nil {
		return nil, fmt.Errorf("%w: compile synthesizer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Synthesizer{text: text, prompts: prompts}, nil
}

func (s *Synthesizer) Synthesize(
	ctx context.Context,
	query string,
	history []contractx.ConversationTurn,
	summaries []contractx.SpecialistSummary,
) (string, error) {
	if len(summaries) == 0 {
		return "", fmt.Errorf("%w: no specialist summaries", contractx.ErrSynthesis)
	}

	input := BuildInput(query, history, summaries)
	out, err := s.text.Generate(ctx, s.prompts.Current().Synthesizer, input, synthesisParams)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contractx.ErrSynthesis, err)
	}

	final := postProcess(out, summaries)
	zerolog.Ctx(ctx).Info().
		Int("summaries", len(summaries)).
		Int("input_chars", len(input)).
		Int("response_chars", len(final)).
		Msg("response synthesized")
	return final, nil
}

// BuildInput renders the synthesis prompt input. Only summary text, diagram
// markup and reference titles and urls are included.
func BuildInput(query string, history []contractx.ConversationTurn, summaries []contractx.SpecialistSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(query))

	if window := historyWindow(history); window != "" {
		b.WriteString("\nEarlier conversation:\n")
		b.WriteString(window)
	}

	b.WriteString("\nFindings:\n")
	for _, s := range summaries {
		label := toolx.Label(s.SpecialistID)
		if !s.Succeeded {
			fmt.Fprintf(&b, "\n### %s (unavailable)\n%s\n", label, s.SummaryText)
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n%s\n", label, s.SummaryText)
		if s.Diagram != "" {
			fmt.Fprintf(&b, "\nDiagram to include exactly as given:\n%s\n", s.Diagram)
		}
		if len(s.References) > 0 {
			b.WriteString("\nSources consulted:\n")
			for _, r := range s.References {
				fmt.Fprintf(&b, "- %s (%s)\n", r.Title, r.URL)
			}
		}
	}
	return b.String()
}

func historyWindow(history []contractx.ConversationTurn) string {
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	var b strings.Builder
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		limit := userTurnChars
		if turn.Role == contractx.RoleAssistant {
			limit = assistantTurnChars
		}
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, llmx.Truncate(content, limit))
	}
	return b.String()
}
