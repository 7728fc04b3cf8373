package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	openrouterx "github.com/tanpawarit/brain-orchestrator/pkg/openrouter"
)

type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGemini     Provider = "gemini"
)

// Role selects which model override applies to a pipeline component.
type Role string

const (
	RoleRouter      Role = "router"
	RoleSpecialist  Role = "specialist"
	RoleSynthesizer Role = "synthesizer"
)

type Config struct {
	Provider           string        `envconfig:"PROVIDER" split_words:"true" default:"openrouter"`
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	// Anthropic through AWS Bedrock instead of the direct API.
	UseBedrock bool   `envconfig:"USE_BEDROCK" split_words:"true" default:"false"`
	AWSRegion  string `envconfig:"AWS_REGION" split_words:"true"`
	AWSProfile string `envconfig:"AWS_PROFILE" split_words:"true"`

	RouterModel      string `envconfig:"ROUTER_MODEL" split_words:"true"`
	SpecialistModel  string `envconfig:"SPECIALIST_MODEL" split_words:"true"`
	SynthesizerModel string `envconfig:"SYNTHESIZER_MODEL" split_words:"true"`
}

func (c Config) provider() Provider {
	p := Provider(strings.ToLower(strings.TrimSpace(c.Provider)))
	if p == "" {
		return ProviderOpenRouter
	}
	return p
}

func (c Config) Validate() error {
	switch c.provider() {
	case ProviderOpenRouter, ProviderGemini:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("%w: %s api key is required", contractx.ErrValidation, c.provider())
		}
	case ProviderAnthropic:
		if !c.UseBedrock && strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("%w: anthropic api key is required unless bedrock is enabled", contractx.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unsupported llm provider %q", contractx.ErrValidation, c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// ModelFor returns the model name for a role, falling back to the default.
func (c Config) ModelFor(role Role) string {
	modelName := strings.TrimSpace(c.Model)

	var override string
	switch role {
	case RoleRouter:
		override = c.RouterModel
	case RoleSpecialist:
		override = c.SpecialistModel
	case RoleSynthesizer:
		override = c.SynthesizerModel
	}
	if v := strings.TrimSpace(override); v != "" {
		modelName = v
	}
	return modelName
}

func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              c.ModelFor(role),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
