package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
	toolx "github.com/tanpawarit/brain-orchestrator/agent/tool"
)

var (
	ErrInvalidTransition = errors.New("invalid progress transition")
	ErrClosed            = errors.New("progress stream closed")
)

type Stage int

const (
	StageIdle Stage = iota
	StageRouting
	StageSpecialists
	StageSynthesizing
	StageComplete
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageRouting:
		return "routing"
	case StageSpecialists:
		return "specialists"
	case StageSynthesizing:
		return "synthesizing"
	case StageComplete:
		return "complete"
	case StageError:
		return "error"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

type pairState int

const (
	pairPending pairState = iota
	pairStarted
	pairDone
)

// Reporter turns pipeline transitions into ProgressEvents on one channel.
// It is safe for concurrent use so specialist pairs may interleave.
type Reporter struct {
	mu     sync.Mutex
	out    chan<- contractx.ProgressEvent
	stage  Stage
	pairs  map[contractx.SpecialistID]pairState
	closed bool
}

func NewReporter(out chan<- contractx.ProgressEvent) *Reporter {
	return &Reporter{out: out, stage: StageIdle}
}

func (r *Reporter) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Closed reports whether the reporter will refuse further events, either
// because a terminal event was sent or because the consumer went away.
func (r *Reporter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Begin moves Idle -> Routing and announces that work has started.
func (r *Reporter) Begin(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.expect(StageIdle); err != nil {
		return err
	}
	r.stage = StageRouting
	return r.emit(ctx, contractx.ProgressEvent{
		Type:    contractx.EventThinking,
		Message: "Analyzing your question...",
	})
}

// Routed records the routing decision; every routed specialist must then
// report exactly one start/complete pair.
func (r *Reporter) Routed(ctx context.Context, ids []contractx.SpecialistID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.expect(StageRouting); err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty routing decision", ErrInvalidTransition)
	}

	r.pairs = make(map[contractx.SpecialistID]pairState, len(ids))
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := r.pairs[id]; dup {
			return fmt.Errorf("%w: %s routed twice", ErrInvalidTransition, id)
		}
		r.pairs[id] = pairPending
		labels = append(labels, toolx.Label(id))
	}
	r.stage = StageSpecialists

	return r.emit(ctx, contractx.ProgressEvent{
		Type:        contractx.EventRouting,
		Message:     "Consulting: " + strings.Join(labels, ", "),
		Specialists: append([]contractx.SpecialistID(nil), ids...),
	})
}

func (r *Reporter) SpecialistStart(ctx context.Context, id contractx.SpecialistID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.expect(StageSpecialists); err != nil {
		return err
	}
	st, ok := r.pairs[id]
	if !ok {
		return fmt.Errorf("%w: %s was not routed", ErrInvalidTransition, id)
	}
	if st != pairPending {
		return fmt.Errorf("%w: %s already started", ErrInvalidTransition, id)
	}
	r.pairs[id] = pairStarted

	return r.emit(ctx, contractx.ProgressEvent{
		Type:       contractx.EventSpecialistStart,
		Message:    "Working on it: " + toolx.Label(id),
		Specialist: id,
	})
}

func (r *Reporter) SpecialistComplete(ctx context.Context, id contractx.SpecialistID, succeeded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.expect(StageSpecialists); err != nil {
		return err
	}
	if r.pairs[id] != pairStarted {
		return fmt.Errorf("%w: %s completed without start", ErrInvalidTransition, id)
	}
	r.pairs[id] = pairDone

	msg := toolx.Label(id) + " finished"
	if !succeeded {
		msg = toolx.Label(id) + " was unavailable"
	}
	return r.emit(ctx, contractx.ProgressEvent{
		Type:       contractx.EventSpecialistComplete,
		Message:    msg,
		Specialist: id,
	})
}

// Synthesizing requires every routed specialist to have completed.
func (r *Reporter) Synthesizing(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.expect(StageSpecialists); err != nil {
		return err
	}
	for id, st := range r.pairs {
		if st != pairDone {
			return fmt.Errorf("%w: %s has not completed", ErrInvalidTransition, id)
		}
	}
	r.stage = StageSynthesizing

	return r.emit(ctx, contractx.ProgressEvent{
		Type:    contractx.EventSynthesizing,
		Message: "Putting the answer together...",
	})
}

func (r *Reporter) Complete(ctx context.Context, response string, toolsUsed []string, hasErrors bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.expect(StageSynthesizing); err != nil {
		return err
	}
	r.stage = StageComplete
	err := r.emit(ctx, contractx.ProgressEvent{
		Type:      contractx.EventComplete,
		Message:   "Done",
		Response:  response,
		ToolsUsed: append([]string{}, toolsUsed...),
		HasErrors: hasErrors,
	})
	r.closed = true
	return err
}

// Fail emits the terminal error event. message must already be user-safe.
func (r *Reporter) Fail(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.stage.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, r.stage)
	}
	r.stage = StageError
	err := r.emit(ctx, contractx.ProgressEvent{
		Type:    contractx.EventError,
		Message: message,
	})
	r.closed = true
	return err
}

func (r *Reporter) expect(want Stage) error {
	if r.closed {
		return ErrClosed
	}
	if r.stage != want {
		return fmt.Errorf("%w: in %s, want %s", ErrInvalidTransition, r.stage, want)
	}
	return nil
}

// emit must be called with mu held. A cancelled context closes the reporter
// so nothing is sent after the caller has gone.
func (r *Reporter) emit(ctx context.Context, ev contractx.ProgressEvent) error {
	if err := ctx.Err(); err != nil {
		r.closed = true
		return err
	}
	select {
	case r.out <- ev:
		return nil
	case <-ctx.Done():
		r.closed = true
		return ctx.Err()
	}
}
