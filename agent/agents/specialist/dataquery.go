package specialist

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	llmx "github.com/tanpawarit/brain-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/sqlstore"
)

var (
	sqlParams         = llmx.Params{Temperature: 0, MaxTokens: 500}
	dataSummaryParams = llmx.Params{Temperature: 0.3, MaxTokens: 400}
)

// DataQuery answers questions against the structured store through a
// generated, guarded, read-only statement.
type DataQuery struct {
	store       contractx.DataStore
	prompts     promptx.Source
	text        *llmx.TextRunner
	maxRows     int
	displayRows int
}

var _ contractx.Specialist = (*DataQuery)(nil)

func (s *DataQuery) ID() contractx.SpecialistID {
	return contractx.SpecialistDataQuery
}

func (s *DataQuery) Execute(ctx context.Context, query string, sink contractx.SummarySink) {
	record(ctx, s.ID(), sink, func(ctx context.Context) (contractx.SpecialistSummary, error) {
		return s.answer(ctx, query)
	})
}

func (s *DataQuery) answer(ctx context.Context, query string) (contractx.SpecialistSummary, error) {
	prompts := s.prompts.Current()

	schema, err := s.store.Schema(ctx)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	system := promptx.Fill(prompts.DataQuerySQL, map[string]string{
		"schema":   schema,
		"max_rows": strconv.Itoa(s.maxRows),
	})
	generated, err := s.text.Generate(ctx, system, query, sqlParams)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	// Refused statements never reach the store.
	statement, err := sqlstore.Guard(cleanStatement(generated))
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	result, err := s.store.Query(ctx, statement, s.maxRows)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}

	table := formatTable(result, s.displayRows)
	input := fmt.Sprintf("Question: %s\n\nQuery result:\n%s", query, table)
	summary, err := s.text.Generate(ctx, prompts.DataQuerySummary, input, dataSummaryParams)
	if err != nil {
		return contractx.SpecialistSummary{}, err
	}
	logReduction(ctx, len(table), len(summary))

	return contractx.SpecialistSummary{SummaryText: summary}, nil
}

func cleanStatement(generated string) string {
	stmt := strings.TrimSpace(llmx.StripFences(generated))
	return strings.TrimSpace(strings.TrimRight(stmt, "; \n\t"))
}
