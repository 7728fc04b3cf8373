// Package llmtest provides a scripted eino chat model for tests.
package llmtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Call is one recorded Generate invocation.
type Call struct {
	System      string
	Input       string
	Temperature *float32
	MaxTokens   *int
}

// Rule answers calls whose system prompt contains Match. An empty Match
// matches every call.
type Rule struct {
	Match string
	Reply string
	Err   error
}

type ChatModel struct {
	mu    sync.Mutex
	rules []Rule
	calls []Call
	hook  func(ctx context.Context, call Call)
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

func New(rules ...Rule) *ChatModel {
	return &ChatModel{rules: rules}
}

func Reply(content string) *ChatModel {
	return New(Rule{Reply: content})
}

func Fail(err error) *ChatModel {
	return New(Rule{Err: err})
}

// OnCall runs hook before each reply is produced, for example to block or
// cancel a context mid-run.
func (m *ChatModel) OnCall(hook func(ctx context.Context, call Call)) *ChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
	return m
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	common := einomodel.GetCommonOptions(&einomodel.Options{}, opts...)
	call := Call{
		Temperature: common.Temperature,
		MaxTokens:   common.MaxTokens,
	}
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			call.System = msg.Content
		case schema.User:
			call.Input = msg.Content
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	hook := m.hook
	rules := m.rules
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range rules {
		if r.Match != "" && !strings.Contains(call.System, r.Match) {
			continue
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return schema.AssistantMessage(r.Reply, nil), nil
	}
	return nil, fmt.Errorf("llmtest: no rule for system prompt %q", firstLine(call.System))
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("llmtest: stream not supported")
}

func (m *ChatModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsMatching returns the recorded calls whose system prompt contains s.
func (m *ChatModel) CallsMatching(s string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if strings.Contains(c.System, s) {
			out = append(out, c)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
