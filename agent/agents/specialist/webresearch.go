package specialist

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	llmx "github.com/tanpawarit/brain-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
)

const snippetChars = 600

var researchParams = llmx.Params{Temperature: 0.4, MaxTokens: 400}

type researchSummary struct {
	Summary     string `json:"summary"`
	UsedSources []int  `json:"used_sources"`
}

// WebResearch summarizes the top search hits and cites only hits that were
// actually returned.
type WebResearch struct {
	search     contractx.SearchProvider
	prompts    promptx.Source
	structured *llmx.StructuredRunner[researchSummary]
	maxResults int
}

var _ contractx.Specialist = (*WebResearch)(nil)

func (s *WebResearch) ID() contractx.SpecialistID {
	return contractx.SpecialistWebResearch
}

func (s *WebResearch) Execute(ctx context.Context, query string, sink contractx.SummarySink) {
	record(ctx, s.ID(), sink, func(ctx context.Context) (contractx.SpecialistSummary, error) {
		return s.answer(ctx, query)
	})
}

func (s *WebResearch) answer(ctx context.Context, query string) (contractx.SpecialistSummary, error) {
	result, err := s.search.Search(ctx, query, s.maxResults)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}
	hits := result.Hits
	if len(hits) > s.maxResults {
		hits = hits[:s.maxResults]
	}
	if len(hits) == 0 {
		return contractx.SpecialistSummary{}, errNoResults
	}

	input := researchInput(query, result.Answer, hits)
	out, err := s.structured.Generate(ctx, s.prompts.Current().ResearchSummary, input, researchParams)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}
	summary := strings.TrimSpace(out.Summary)
	logReduction(ctx, len(input), len(summary))

	return contractx.SpecialistSummary{
		SummaryText: summary,
		References:  pickReferences(hits, out.UsedSources),
	}, nil
}

func researchInput(query, answer string, hits []contractx.SearchHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	if answer != "" {
		fmt.Fprintf(&b, "Search engine overview: %s\n\n", llmx.Truncate(answer, snippetChars))
	}
	b.WriteString("Search results:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, h.Title, llmx.Truncate(h.Snippet, snippetChars))
	}
	return strings.TrimSpace(b.String())
}

// pickReferences maps the 1-based source numbers the model reported onto
// real hits. When none of them is valid, every hit shown to the model is
// cited. References are unique by URL.
func pickReferences(hits []contractx.SearchHit, used []int) []contractx.Reference {
	var chosen []contractx.SearchHit
	for _, n := range used {
		if n >= 1 && n <= len(hits) {
			chosen = append(chosen, hits[n-1])
		}
	}
	if len(chosen) == 0 {
		chosen = hits
	}

	seen := make(map[string]struct{}, len(chosen))
	refs := make([]contractx.Reference, 0, len(chosen))
	for _, h := range chosen {
		if _, ok := seen[h.URL]; ok {
			continue
		}
		seen[h.URL] = struct{}{}
		refs = append(refs, contractx.Reference{Title: h.Title, URL: h.URL})
	}
	return refs
}
