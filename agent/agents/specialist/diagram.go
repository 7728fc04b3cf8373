package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	llmx "github.com/tanpawarit/brain-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/mermaid"
)

const fallbackDescription = "The diagram below visualizes the requested information."

var (
	diagramParams     = llmx.Params{Temperature: 0.4, MaxTokens: 1200}
	descriptionParams = llmx.Params{Temperature: 0.4, MaxTokens: 300}
)

// Diagram produces validated mermaid markup plus a short description. The
// markup is display data and travels to the synthesizer as is.
type Diagram struct {
	prompts promptx.Source
	text    *llmx.TextRunner
}

var _ contractx.Specialist = (*Diagram)(nil)

func (s *Diagram) ID() contractx.SpecialistID {
	return contractx.SpecialistDiagram
}

func (s *Diagram) Execute(ctx context.Context, query string, sink contractx.SummarySink) {
	record(ctx, s.ID(), sink, func(ctx context.Context) (contractx.SpecialistSummary, error) {
		return s.answer(ctx, query)
	})
}

func (s *Diagram) answer(ctx context.Context, query string) (contractx.SpecialistSummary, error) {
	prompts := s.prompts.Current()

	system := promptx.Fill(prompts.DiagramGeneration, map[string]string{
		"diagram_types": strings.Join(mermaid.DiagramTypes, ", "),
	})
	raw, err := s.text.Generate(ctx, system, query, diagramParams)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	code, err := mermaid.Validate(mermaid.Extract(raw))
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	input := fmt.Sprintf("Request: %s\n\nDiagram:\n%s", query, code)
	description, err := s.text.Generate(ctx, prompts.DiagramDescription, input, descriptionParams)
	if err != nil {
		if ctx.Err() != nil {
			return contractx.SpecialistSummary{}, ctx.Err()
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("diagram description failed, using fallback")
		description = fallbackDescription
	}

	return contractx.SpecialistSummary{
		SummaryText: description,
		Diagram:     mermaid.Fence(code),
	}, nil
}
