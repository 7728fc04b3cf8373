package llm

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	openrouterx "github.com/tanpawarit/brain-orchestrator/pkg/openrouter"
)

// Models holds one chat model per pipeline role.
type Models struct {
	Router      einomodel.BaseChatModel
	Specialist  einomodel.BaseChatModel
	Synthesizer einomodel.BaseChatModel
}

func NewModels(ctx context.Context, cfg Config) (Models, error) {
	if err := cfg.Validate(); err != nil {
		return Models{}, err
	}

	router, err := NewChatModel(ctx, cfg, RoleRouter)
	if err != nil {
		return Models{}, err
	}
	specialist, err := NewChatModel(ctx, cfg, RoleSpecialist)
	if err != nil {
		return Models{}, err
	}
	synthesizer, err := NewChatModel(ctx, cfg, RoleSynthesizer)
	if err != nil {
		return Models{}, err
	}

	return Models{
		Router:      router,
		Specialist:  specialist,
		Synthesizer: synthesizer,
	}, nil
}

func NewChatModel(ctx context.Context, cfg Config, role Role) (einomodel.BaseChatModel, error) {
	switch cfg.provider() {
	case ProviderOpenRouter:
		orCfg := cfg.OpenRouterFor(role)
		m, err := orCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		return m, nil
	case ProviderAnthropic:
		m, err := NewAnthropicModel(ctx, cfg, cfg.ModelFor(role))
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		return m, nil
	case ProviderGemini:
		m, err := NewGeminiModel(ctx, cfg, cfg.ModelFor(role))
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider %q", contractx.ErrValidation, cfg.Provider)
	}
}

// Probe checks the configured provider. OpenRouter is asked for its model
// list; the other providers only have their configuration validated.
func Probe(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.provider() != ProviderOpenRouter {
		return nil
	}
	return openrouterx.Probe(ctx, openrouterx.NewClient(cfg.OpenRouterFor(RoleRouter)))
}
