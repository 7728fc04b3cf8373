package specialist

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	llmx "github.com/tanpawarit/brain-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
)

const programOutputChars = 4000

var (
	codeGenParams     = llmx.Params{Temperature: 0.2, MaxTokens: 800}
	codeSummaryParams = llmx.Params{Temperature: 0.2, MaxTokens: 400}
)

// Sandbox executes generated programs and reports which packages they may
// import.
type Sandbox interface {
	contractx.CodeExecutor
	Packages() []string
}

// CodeAnalysis writes a program for the request, runs it in the sandbox and
// explains the output.
type CodeAnalysis struct {
	sandbox Sandbox
	prompts promptx.Source
	text    *llmx.TextRunner
}

var _ contractx.Specialist = (*CodeAnalysis)(nil)

func (s *CodeAnalysis) ID() contractx.SpecialistID {
	return contractx.SpecialistCodeAnalysis
}

func (s *CodeAnalysis) Execute(ctx context.Context, query string, sink contractx.SummarySink) {
	record(ctx, s.ID(), sink, func(ctx context.Context) (contractx.SpecialistSummary, error) {
		return s.answer(ctx, query)
	})
}

func (s *CodeAnalysis) answer(ctx context.Context, query string) (contractx.SpecialistSummary, error) {
	prompts := s.prompts.Current()

	system := promptx.Fill(prompts.CodeGeneration, map[string]string{
		"packages": strings.Join(s.sandbox.Packages(), ", "),
	})
	source, err := s.text.Generate(ctx, system, query, codeGenParams)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	output, err := s.sandbox.Execute(ctx, llmx.StripFences(source))
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	input := fmt.Sprintf("Question: %s\n\nAnalysis output:\n%s", query, llmx.Truncate(output, programOutputChars))
	summary, err := s.text.Generate(ctx, prompts.CodeSummary, input, codeSummaryParams)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}
	logReduction(ctx, len(output), len(summary))

	return contractx.SpecialistSummary{SummaryText: summary}, nil
}
