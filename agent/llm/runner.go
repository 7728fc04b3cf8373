package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

// Params are the sampling parameters of one call.
type Params struct {
	Temperature float32
	MaxTokens   int
}

func (p Params) options() []compose.Option {
	opts := []einomodel.Option{einomodel.WithTemperature(p.Temperature)}
	if p.MaxTokens > 0 {
		opts = append(opts, einomodel.WithMaxTokens(p.MaxTokens))
	}
	return []compose.Option{compose.WithChatModelOption(opts...)}
}

// Both prompt turns are placeholders so prompt text containing braces
// is never interpreted by the template engine.
func promptTemplate() einoprompt.ChatTemplate {
	return einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{input}"),
	)
}

func promptVars(system, input string) map[string]any {
	return map[string]any{
		"system": system,
		"input":  input,
	}
}

// TextRunner is a compiled prompt -> model graph returning plain text.
type TextRunner struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

func NewTextRunner(ctx context.Context, chatModel einomodel.BaseChatModel, graphName string) (*TextRunner, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", promptTemplate()); err != nil {
		return nil, fmt.Errorf("add text prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add text model node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "prompt"},
		{"prompt", "model"},
		{"model", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add text edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile text graph: %w", err)
	}
	return &TextRunner{runner: runner}, nil
}

func (r *TextRunner) Generate(ctx context.Context, system, input string, p Params) (string, error) {
	if strings.TrimSpace(system) == "" {
		return "", contractx.ErrPromptMissing
	}

	msg, err := r.runner.Invoke(ctx, promptVars(system, input), p.options()...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", contractx.ErrSchemaViolation)
	}
	return strings.TrimSpace(msg.Content), nil
}

// completionKey marks, per invocation, that the model returned a completion.
// A graph failure after that point is the reply's fault, not the provider's.
type completionKey struct{}

func markCompletion(ctx context.Context) {
	if seen, ok := ctx.Value(completionKey{}).(*atomic.Bool); ok {
		seen.Store(true)
	}
}

// StructuredRunner is a compiled prompt -> model -> json graph decoding into T.
type StructuredRunner[T any] struct {
	runner compose.Runnable[map[string]any, T]
}

func NewStructuredRunner[T any](ctx context.Context, chatModel einomodel.BaseChatModel, graphName string) (*StructuredRunner[T], error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}

	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", promptTemplate()); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("strip_fences",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (*schema.Message, error) {
			markCompletion(ctx)
			if msg == nil {
				return nil, fmt.Errorf("%w: empty completion", contractx.ErrSchemaViolation)
			}
			out := *msg
			out.Content = ExtractJSON(msg.Content)
			return &out, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add structured strip node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "prompt"},
		{"prompt", "model"},
		{"model", "strip_fences"},
		{"strip_fences", "parse_json"},
		{"parse_json", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add structured edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return &StructuredRunner[T]{runner: runner}, nil
}

func (r *StructuredRunner[T]) Generate(ctx context.Context, system, input string, p Params) (T, error) {
	var zero T
	if strings.TrimSpace(system) == "" {
		return zero, contractx.ErrPromptMissing
	}

	var completed atomic.Bool
	out, err := r.runner.Invoke(context.WithValue(ctx, completionKey{}, &completed), promptVars(system, input), p.options()...)
	if err != nil {
		if completed.Load() {
			return zero, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
		}
		return zero, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}
