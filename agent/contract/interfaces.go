package contract

import "context"

type Router interface {
	Route(ctx context.Context, query string, history []ConversationTurn) ([]SpecialistID, error)
}

// SummarySink is the write-only view of the run state handed to specialists.
type SummarySink interface {
	AppendSummary(entry SpecialistSummary)
}

// Specialist records exactly one summary per Execute call and never returns an error.
type Specialist interface {
	ID() SpecialistID
	Execute(ctx context.Context, query string, sink SummarySink)
}

type Registry interface {
	Lookup(id SpecialistID) (Specialist, bool)
	IDs() []SpecialistID
}

type Synthesizer interface {
	Synthesize(ctx context.Context, query string, history []ConversationTurn, summaries []SpecialistSummary) (string, error)
}

type DataStore interface {
	Query(ctx context.Context, statement string, maxRows int) (QueryResult, error)
	Schema(ctx context.Context) (string, error)
}

type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) (SearchResult, error)
}

type CodeExecutor interface {
	Execute(ctx context.Context, source string) (string, error)
}
