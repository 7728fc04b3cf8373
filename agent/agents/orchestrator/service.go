package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	nodex "github.com/tanpawarit/brain-orchestrator/agent/nodes"
	progressx "github.com/tanpawarit/brain-orchestrator/agent/progress"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrRunFailed      = errors.New("run failed")
	ErrNoResponse     = errors.New("run ended without a terminal event")
)

// User-safe terminal messages.
const (
	msgRoutingFailed   = "I couldn't work out how to answer that question. Please try rephrasing it."
	msgSynthesisFailed = "Sorry, I couldn't put the answer together right now. Please try again in a moment."
	msgTimeout         = "Sorry, answering took too long. Please try again or narrow the question."
	msgInternal        = "Sorry, something went wrong while answering. Please try again."
)

const visualizePrefix = "Generate a diagram for: "

type Config struct {
	RunTimeout             time.Duration `envconfig:"RUN_TIMEOUT" split_words:"true" default:"120s"`
	ParallelSpecialists    bool          `envconfig:"PARALLEL_SPECIALISTS" split_words:"true" default:"false"`
	MaxParallelSpecialists int           `envconfig:"MAX_PARALLEL_SPECIALISTS" split_words:"true" default:"4"`
	EventBuffer            int           `envconfig:"EVENT_BUFFER" split_words:"true" default:"16"`
}

// RunError is returned by Chat when the run ended with an error event. Its
// message is the user-safe text of that event.
type RunError struct {
	Message string
}

func (e *RunError) Error() string { return e.Message }

func (e *RunError) Unwrap() error { return ErrRunFailed }

type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDs overrides run id generation.
func WithRunIDs(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newRunID = newID
		}
	}
}

// WithHealthCheck adds a named component probe reported by Health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(o *Orchestrator) {
		name = strings.TrimSpace(name)
		if name != "" {
			o.checks = append(o.checks, namedCheck{name: name, check: check})
		}
	}
}

type Orchestrator struct {
	router      contractx.Router
	registry    contractx.Registry
	synthesizer contractx.Synthesizer

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	runTimeout  time.Duration
	fan         nodex.FanOut
	eventBuffer int
	checks      []namedCheck

	now      func() time.Time
	newRunID func() string
}

func New(
	router contractx.Router,
	registry contractx.Registry,
	synthesizer contractx.Synthesizer,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if router == nil {
		return nil, errors.New("router is required")
	}
	if registry == nil {
		return nil, errors.New("specialist registry is required")
	}
	if synthesizer == nil {
		return nil, errors.New("synthesizer is required")
	}

	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 120 * time.Second
	}
	maxParallel := cfg.MaxParallelSpecialists
	if maxParallel <= 0 {
		maxParallel = 4
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer < 0 {
		eventBuffer = 0
	}

	o := &Orchestrator{
		router:      router,
		registry:    registry,
		synthesizer: synthesizer,
		runTimeout:  runTimeout,
		fan:         nodex.FanOut{Parallel: cfg.ParallelSpecialists, MaxParallel: maxParallel},
		eventBuffer: eventBuffer,
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileAnswerGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Stream starts a run and returns its events. The channel is closed after the
// terminal event, or without one when ctx is cancelled. The caller must keep
// reading until the channel closes or cancel ctx.
func (o *Orchestrator) Stream(ctx context.Context, req contractx.ChatRequest) (<-chan contractx.ProgressEvent, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrInvalidMessage
	}

	events := make(chan contractx.ProgressEvent, o.eventBuffer)
	go o.run(ctx, req, events)
	return events, nil
}

func (o *Orchestrator) run(ctx context.Context, req contractx.ChatRequest, events chan<- contractx.ProgressEvent) {
	defer close(events)

	runID := o.newRunID()
	logger := zerolog.Ctx(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)
	start := o.now()

	reporter := progressx.NewReporter(events)
	if err := reporter.Begin(ctx); err != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	out, err := o.graphRunner.Invoke(runCtx, nodex.GraphInput{
		RunID:    runID,
		Message:  req.Message,
		History:  req.ConversationHistory,
		Progress: boundProgress{ctx: ctx, reporter: reporter},
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("run cancelled by caller")
			return
		}
		msg := userMessage(runCtx, err)
		logger.Error().Err(err).Dur("elapsed", o.now().Sub(start)).Msg("run failed")
		if ferr := reporter.Fail(ctx, msg); ferr != nil {
			logger.Debug().Err(ferr).Msg("error event not delivered")
		}
		return
	}

	if err := reporter.Complete(ctx, out.Response, out.ToolsUsed, out.HasErrors); err != nil {
		logger.Debug().Err(err).Msg("complete event not delivered")
		return
	}
	logger.Info().
		Strs("tools_used", out.ToolsUsed).
		Bool("has_errors", out.HasErrors).
		Dur("elapsed", o.now().Sub(start)).
		Msg("run complete")
}

func userMessage(runCtx context.Context, err error) string {
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded), errors.Is(err, contractx.ErrRunTimeout):
		return msgTimeout
	case errors.Is(err, contractx.ErrRouting):
		return msgRoutingFailed
	case errors.Is(err, contractx.ErrSynthesis):
		return msgSynthesisFailed
	default:
		return msgInternal
	}
}

// Chat runs the pipeline and returns only the final answer.
func (o *Orchestrator) Chat(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	events, err := o.Stream(ctx, req)
	if err != nil {
		return contractx.ChatResponse{}, err
	}

	var final *contractx.ProgressEvent
	for ev := range events {
		if ev.Type.Terminal() {
			last := ev
			final = &last
		}
	}

	if final == nil {
		if err := ctx.Err(); err != nil {
			return contractx.ChatResponse{}, err
		}
		return contractx.ChatResponse{}, ErrNoResponse
	}
	if final.Type == contractx.EventError {
		return contractx.ChatResponse{}, &RunError{Message: final.Message}
	}

	tools := final.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	return contractx.ChatResponse{
		Response:  final.Response,
		ToolsUsed: tools,
		HasErrors: final.HasErrors,
	}, nil
}

// Analyze answers a standalone question with no conversation history.
func (o *Orchestrator) Analyze(ctx context.Context, query string) (contractx.ChatResponse, error) {
	return o.Chat(ctx, contractx.ChatRequest{Message: query})
}

// Visualize asks for a diagram and splits the answer into markup and prose.
func (o *Orchestrator) Visualize(ctx context.Context, description string) (contractx.VisualizeResponse, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return contractx.VisualizeResponse{}, ErrInvalidMessage
	}

	resp, err := o.Chat(ctx, contractx.ChatRequest{Message: visualizePrefix + description})
	if err != nil {
		return contractx.VisualizeResponse{}, err
	}

	code, prose := splitDiagram(resp.Response)
	return contractx.VisualizeResponse{
		MermaidCode: code,
		Description: prose,
		Response:    resp.Response,
	}, nil
}

// boundProgress pins reporter calls to the caller's context so that a run
// deadline never suppresses the terminal event.
type boundProgress struct {
	ctx      context.Context
	reporter *progressx.Reporter
}

var _ nodex.Progress = boundProgress{}

func (b boundProgress) Routed(ids []contractx.SpecialistID) error {
	return b.reporter.Routed(b.ctx, ids)
}

func (b boundProgress) SpecialistStart(id contractx.SpecialistID) error {
	return b.reporter.SpecialistStart(b.ctx, id)
}

func (b boundProgress) SpecialistComplete(id contractx.SpecialistID, succeeded bool) error {
	return b.reporter.SpecialistComplete(b.ctx, id, succeeded)
}

func (b boundProgress) Synthesizing() error {
	return b.reporter.Synthesizing(b.ctx)
}
