package synthesizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	"github.com/tanpawarit/brain-orchestrator/agent/llm/llmtest"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
)

const diagram = "```mermaid\nflowchart TD\n  A[Admission] --> B[Triage]\n```"

func newTestSynthesizer(t *testing.T, model *llmtest.ChatModel) *Synthesizer {
	t.Helper()
	s, err := New(context.Background(), model, promptx.Static(promptx.LoadPromptSet()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSynthesizeAppendsReferencesAndKeepsDiagram(t *testing.T) {
	t.Parallel()

	model := llmtest.Reply("There are **42** patients with asthma, and recent studies favour early treatment.\n\n" +
		"```mermaid\nflowchart TD\n  A --> B\n```\n\n---\n\n**References:**\n- [Made up](https://invented.example)\n")
	s := newTestSynthesizer(t, model)

	summaries := []contractx.SpecialistSummary{
		{SpecialistID: contractx.SpecialistDataQuery, SummaryText: "There are 42 patients with asthma.", ToolUsed: "data_query", Succeeded: true},
		{
			SpecialistID: contractx.SpecialistWebResearch,
			SummaryText:  "Studies favour early treatment.",
			ToolUsed:     "web_research",
			Succeeded:    true,
			References: []contractx.Reference{
				{Title: "Early treatment [2024]", URL: "https://a.example"},
				{Title: "Guideline", URL: "https://b.example"},
			},
		},
		{SpecialistID: contractx.SpecialistDiagram, SummaryText: "Admission then triage.", ToolUsed: "diagram", Succeeded: true, Diagram: diagram},
	}

	got, err := s.Synthesize(context.Background(), "How many patients have asthma and what do studies say?", nil, summaries)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if strings.Contains(got, "invented.example") {
		t.Fatalf("fabricated reference survived:\n%s", got)
	}
	if !strings.Contains(got, diagram) || strings.Contains(got, "A --> B\n") {
		t.Fatalf("diagram not placed verbatim:\n%s", got)
	}
	wantRefs := "---\n\n**References**\n- [Early treatment \\[2024\\]](https://a.example)\n- [Guideline](https://b.example)"
	if !strings.HasSuffix(got, wantRefs) {
		t.Fatalf("unexpected references section:\n%s", got)
	}
	if strings.Count(got, "**References**") != 1 {
		t.Fatalf("expected exactly one references section:\n%s", got)
	}

	call := model.Calls()[0]
	if *call.Temperature != 0.5 || *call.MaxTokens != 1000 {
		t.Fatalf("unexpected sampling params: %v %v", *call.Temperature, *call.MaxTokens)
	}
}

func TestSynthesizeAppendsMissingDiagram(t *testing.T) {
	t.Parallel()

	s := newTestSynthesizer(t, llmtest.Reply("The admission process has two steps."))
	got, err := s.Synthesize(context.Background(), "draw admission", nil, []contractx.SpecialistSummary{
		{SpecialistID: contractx.SpecialistDiagram, SummaryText: "Two steps.", ToolUsed: "diagram", Succeeded: true, Diagram: diagram},
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got != "The admission process has two steps.\n\n"+diagram {
		t.Fatalf("unexpected response:\n%s", got)
	}
}

func TestSynthesizeWithoutResearchHasNoReferences(t *testing.T) {
	t.Parallel()

	s := newTestSynthesizer(t, llmtest.Reply("There are **42** patients.\n\n### Sources\n- somewhere"))
	got, err := s.Synthesize(context.Background(), "how many", nil, []contractx.SpecialistSummary{
		{SpecialistID: contractx.SpecialistDataQuery, SummaryText: "42 patients.", ToolUsed: "data_query", Succeeded: true},
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got != "There are **42** patients." {
		t.Fatalf("unexpected response:\n%s", got)
	}
}

func TestSynthesizeFailure(t *testing.T) {
	t.Parallel()

	s := newTestSynthesizer(t, llmtest.Fail(errors.New("provider down")))
	_, err := s.Synthesize(context.Background(), "q", nil, []contractx.SpecialistSummary{
		{SpecialistID: contractx.SpecialistDataQuery, SummaryText: "x", Succeeded: true},
	})
	if !errors.Is(err, contractx.ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}

	if _, err := s.Synthesize(context.Background(), "q", nil, nil); !errors.Is(err, contractx.ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis without summaries, got %v", err)
	}
}

func TestBuildInputUsesOnlySummaries(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 400)
	history := []contractx.ConversationTurn{
		{Role: contractx.RoleUser, Content: "oldest question"},
		{Role: contractx.RoleAssistant, Content: "old answer"},
		{Role: contractx.RoleUser, Content: "q2"},
		{Role: contractx.RoleAssistant, Content: "a2"},
		{Role: contractx.RoleUser, Content: "q3"},
		{Role: contractx.RoleAssistant, Content: "a3"},
		{Role: contractx.RoleUser, Content: "q4"},
		{Role: contractx.RoleAssistant, Content: long},
	}
	summaries := []contractx.SpecialistSummary{
		{SpecialistID: contractx.SpecialistDataQuery, SummaryText: "The database could not be reached right now.", Succeeded: false},
		{SpecialistID: contractx.SpecialistCodeAnalysis, SummaryText: "Age and stay are related.", Succeeded: true},
	}

	got := BuildInput("and now?", history, summaries)

	if strings.Contains(got, "oldest question") || strings.Contains(got, "old answer") {
		t.Fatalf("history window too wide:\n%s", got)
	}
	if !strings.Contains(got, "assistant: "+strings.Repeat("a", 200)+"...") {
		t.Fatalf("assistant turn not truncated:\n%s", got)
	}
	if !strings.Contains(got, "### Database (unavailable)") || !strings.Contains(got, "### Statistical analysis\nAge and stay are related.") {
		t.Fatalf("labels missing:\n%s", got)
	}
}

func TestBuildInputSizeIndependentOfArtifacts(t *testing.T) {
	t.Parallel()

	summary := contractx.SpecialistSummary{SpecialistID: contractx.SpecialistDataQuery, SummaryText: "42 patients.", Succeeded: true}
	small := BuildInput("q", nil, []contractx.SpecialistSummary{summary})
	// A summary entry carries no raw artifact, so nothing else can grow the input.
	if len(small) > len("q")+len(summary.SummaryText)+64 {
		t.Fatalf("input larger than summaries warrant: %d chars", len(small))
	}
}
