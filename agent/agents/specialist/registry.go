package specialist

import (
	"context"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	llmx "github.com/tanpawarit/brain-orchestrator/agent/llm"
	promptx "github.com/tanpawarit/brain-orchestrator/agent/prompt"
)

type Config struct {
	MaxRows       int `envconfig:"MAX_ROWS" split_words:"true" default:"500"`
	DisplayRows   int `envconfig:"DISPLAY_ROWS" split_words:"true" default:"50"`
	SearchResults int `envconfig:"SEARCH_RESULTS" split_words:"true" default:"5"`
}

// Deps are the collaborators specialists are built from. A nil tool leaves
// its specialist unregistered; Diagram only needs the model.
type Deps struct {
	Model   einomodel.BaseChatModel
	Prompts promptx.Source
	Store   contractx.DataStore
	Search  contractx.SearchProvider
	Sandbox Sandbox
}

type registryImpl struct {
	byID map[contractx.SpecialistID]contractx.Specialist
	ids  []contractx.SpecialistID
}

var _ contractx.Registry = (*registryImpl)(nil)

func (r *registryImpl) Lookup(id contractx.SpecialistID) (contractx.Specialist, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// IDs lists registered specialists in canonical order.
func (r *registryImpl) IDs() []contractx.SpecialistID {
	return append([]contractx.SpecialistID(nil), r.ids...)
}

func NewRegistry(ctx context.Context, deps Deps, cfg Config) (contractx.Registry, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("%w: specialist model is required", contractx.ErrValidation)
	}
	if deps.Prompts == nil {
		return nil, errors.New("prompt source is required")
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 500
	}
	if cfg.DisplayRows <= 0 {
		cfg.DisplayRows = 50
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = 5
	}

	var specialists []contractx.Specialist

	if deps.Store != nil {
		text, err := llmx.NewTextRunner(ctx, deps.Model, "specialist.data_query")
		if err != nil {
			return nil, fmt.Errorf("%w: compile data query graph: %v", contractx.ErrModelInvoke, err)
		}
		specialists = append(specialists, &DataQuery{
			store:       deps.Store,
			prompts:     deps.Prompts,
			text:        text,
			maxRows:     cfg.MaxRows,
			displayRows: cfg.DisplayRows,
		})
	}

	if deps.Search != nil {
		structured, err := llmx.NewStructuredRunner[researchSummary](ctx, deps.Model, "specialist.web_research")
		if err != nil {
			return nil, fmt.Errorf("%w: compile web research graph: %v", contractx.ErrModelInvoke, err)
		}
		specialists = append(specialists, &WebResearch{
			search:     deps.Search,
			prompts:    deps.Prompts,
			structured: structured,
			maxResults: cfg.SearchResults,
		})
	}

	if deps.Sandbox != nil {
		text, err := llmx.NewTextRunner(ctx, deps.Model, "specialist.code_analysis")
		if err != nil {
			return nil, fmt.Errorf("%w: compile code analysis graph: %v", contractx.ErrModelInvoke, err)
		}
		specialists = append(specialists, &CodeAnalysis{
			sandbox: deps.Sandbox,
			prompts: deps.Prompts,
			text:    text,
		})
	}

	text, err := llmx.NewTextRunner(ctx, deps.Model, "specialist.diagram")
	if err != nil {
		return nil, fmt.Errorf("%w: compile diagram graph: %v", contractx.ErrModelInvoke, err)
	}
	specialists = append(specialists, &Diagram{prompts: deps.Prompts, text: text})

	return NewStaticRegistry(specialists...), nil
}

// NewStaticRegistry registers the given specialists as is.
func NewStaticRegistry(specialists ...contractx.Specialist) contractx.Registry {
	r := &registryImpl{byID: make(map[contractx.SpecialistID]contractx.Specialist, len(specialists))}
	for _, s := range specialists {
		if s == nil {
			continue
		}
		r.byID[s.ID()] = s
	}
	for _, id := range contractx.AllSpecialists() {
		if _, ok := r.byID[id]; ok {
			r.ids = append(r.ids, id)
		}
	}
	return r
}
