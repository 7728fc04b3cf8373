package specialist

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/mermaid"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/sandbox"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/sqlstore"
	"github.com/tanpawarit/brain-orchestrator/agent/tool/websearch"
)

var (
	errNoResults = errors.New("no results")
	errPanic     = errors.New("specialist panicked")
)

// Reader-facing failure texts. Internal error text never goes into a summary.
const (
	msgUnsafeQuery       = "The data question could not be turned into a safe read-only lookup, so nothing was run against the database."
	msgStoreUnavailable  = "The database could not be reached right now, so the data part of the question is unavailable."
	msgQueryFailed       = "The database lookup did not produce a usable result."
	msgSearchUnavailable = "Web search is unavailable right now, so no external sources could be consulted."
	msgNoSources         = "The web search did not find relevant sources for this question."
	msgSandboxTimeout    = "The calculation took too long and was stopped."
	msgSandboxFailed     = "The calculation could not be completed."
	msgDiagramInvalid    = "A valid diagram could not be produced for this request."
	msgModelUnavailable  = "The language service did not respond properly, so this part could not be prepared."
	msgUnexpected        = "This part of the analysis failed unexpectedly."
)

func failureText(err error) string {
	switch {
	case errors.Is(err, sqlstore.ErrUnsafeStatement):
		return msgUnsafeQuery
	case errors.Is(err, sqlstore.ErrPoolTimeout), errors.Is(err, sqlstore.ErrUnavailable):
		return msgStoreUnavailable
	case errors.Is(err, sqlstore.ErrQuery):
		return msgQueryFailed
	case errors.Is(err, websearch.ErrSearchUnavailable):
		return msgSearchUnavailable
	case errors.Is(err, errNoResults):
		return msgNoSources
	case errors.Is(err, sandbox.ErrTimeout):
		return msgSandboxTimeout
	case errors.Is(err, sandbox.ErrForbiddenImport),
		errors.Is(err, sandbox.ErrInvalidProgram),
		errors.Is(err, sandbox.ErrExecution):
		return msgSandboxFailed
	case errors.Is(err, mermaid.ErrInvalidDiagram):
		return msgDiagramInvalid
	case errors.Is(err, contractx.ErrModelInvoke),
		errors.Is(err, contractx.ErrSchemaViolation),
		errors.Is(err, contractx.ErrPromptMissing),
		errors.Is(err, context.DeadlineExceeded):
		return msgModelUnavailable
	default:
		return msgUnexpected
	}
}

type produceFunc func(ctx context.Context) (contractx.SpecialistSummary, error)

// record runs produce and appends exactly one entry to sink, whatever
// produce returns or however it fails.
func record(ctx context.Context, id contractx.SpecialistID, sink contractx.SummarySink, produce produceFunc) {
	logger := zerolog.Ctx(ctx).With().Str("specialist", string(id)).Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	var entry contractx.SpecialistSummary
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("specialist panicked")
			entry = failed(id, errPanic)
		}
		sink.AppendSummary(entry)
	}()

	out, err := produce(ctx)
	if err == nil && strings.TrimSpace(out.SummaryText) == "" {
		err = fmt.Errorf("%w: empty summary", contractx.ErrSchemaViolation)
	}
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("specialist failed")
		entry = failed(id, err)
		return
	}

	out.SpecialistID = id
	out.ToolUsed = string(id)
	out.Succeeded = true
	out.SummaryText = strings.TrimSpace(out.SummaryText)
	logger.Info().Dur("elapsed", time.Since(start)).Msg("specialist finished")
	entry = out
}

func failed(id contractx.SpecialistID, err error) contractx.SpecialistSummary {
	return contractx.SpecialistSummary{
		SpecialistID: id,
		SummaryText:  failureText(err),
		ToolUsed:     string(id),
		Succeeded:    false,
	}
}

// logReduction reports how much the summary shrank the raw artifact.
func logReduction(ctx context.Context, rawChars, summaryChars int) {
	if rawChars <= 0 {
		return
	}
	pct := float64(rawChars-summaryChars) / float64(rawChars) * 100
	zerolog.Ctx(ctx).Info().
		Int("raw_chars", rawChars).
		Int("summary_chars", summaryChars).
		Str("reduction", fmt.Sprintf("%.1f%%", pct)).
		Msg("artifact summarized")
}
