package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// GeminiModel adapts the Gemini API to eino's chat model interface.
type GeminiModel struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
}

var _ einomodel.BaseChatModel = (*GeminiModel)(nil)

func NewGeminiModel(ctx context.Context, cfg Config, modelName string) (*GeminiModel, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return nil, errors.New("gemini: model is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	maxTokens := cfg.MaxCompletionToken
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &GeminiModel{
		client:      client,
		model:       modelName,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (m *GeminiModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	common := einomodel.GetCommonOptions(&einomodel.Options{
		Temperature: &m.temperature,
		MaxTokens:   &m.maxTokens,
		Model:       &m.model,
	}, opts...)

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(*common.MaxTokens),
	}
	if common.Temperature != nil {
		genCfg.Temperature = genai.Ptr(*common.Temperature)
	}

	var system []string
	contents := make([]*genai.Content, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: at least one user message is required")
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, *common.Model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	out := &schema.Message{
		Role:    schema.Assistant,
		Content: resp.Text(),
	}
	if resp.UsageMetadata != nil {
		out.ResponseMeta = &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			},
		}
	}
	return out, nil
}

func (m *GeminiModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
