package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	specialistx "github.com/tanpawarit/brain-orchestrator/agent/agents/specialist"
	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRouter struct {
	ids []contractx.SpecialistID
	err error
}

func (f *fakeRouter) Route(ctx context.Context, query string, history []contractx.ConversationTurn) ([]contractx.SpecialistID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]contractx.SpecialistID(nil), f.ids...), nil
}

type fakeSpecialist struct {
	id      contractx.SpecialistID
	summary contractx.SpecialistSummary
	block   bool // wait for ctx to end, then record a failure
	started chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeSpecialist) ID() contractx.SpecialistID { return f.id }

func (f *fakeSpecialist) Execute(ctx context.Context, query string, sink contractx.SummarySink) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		sink.AppendSummary(contractx.SpecialistSummary{
			SpecialistID: f.id,
			SummaryText:  "stopped",
			ToolUsed:     string(f.id),
		})
		return
	}

	entry := f.summary
	entry.SpecialistID = f.id
	entry.ToolUsed = string(f.id)
	sink.AppendSummary(entry)
}

func (f *fakeSpecialist) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okSpecialist(id contractx.SpecialistID, text string) *fakeSpecialist {
	return &fakeSpecialist{id: id, summary: contractx.SpecialistSummary{SummaryText: text, Succeeded: true}}
}

type fakeSynthesizer struct {
	err  error
	seen []contractx.SpecialistSummary
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, query string, history []contractx.ConversationTurn, summaries []contractx.SpecialistSummary) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.seen = summaries

	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		parts = append(parts, s.SummaryText)
		if s.Diagram != "" {
			parts = append(parts, s.Diagram)
		}
	}
	return "Answer: " + strings.Join(parts, "\n\n"), nil
}

func newTestOrchestrator(
	t *testing.T,
	router contractx.Router,
	synth contractx.Synthesizer,
	cfg Config,
	specialists ...contractx.Specialist,
) *Orchestrator {
	t.Helper()

	o, err := New(router, specialistx.NewStaticRegistry(specialists...), synth, cfg, WithRunIDs(func() string { return "run-test" }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func collect(t *testing.T, events <-chan contractx.ProgressEvent) []contractx.ProgressEvent {
	t.Helper()

	var out []contractx.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(out))
			return nil
		}
	}
}

func types(events []contractx.ProgressEvent) []contractx.EventType {
	out := make([]contractx.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestStreamSingleSpecialist(t *testing.T) {
	t.Parallel()

	data := okSpecialist(contractx.SpecialistDataQuery, "Top customer is Acme with 1,200 in revenue.")
	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistDataQuery}},
		&fakeSynthesizer{},
		Config{},
		data,
	)

	events, err := o.Stream(context.Background(), contractx.ChatRequest{Message: "Who are our top customers?"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got := collect(t, events)

	want := []contractx.EventType{
		contractx.EventThinking,
		contractx.EventRouting,
		contractx.EventSpecialistStart,
		contractx.EventSpecialistComplete,
		contractx.EventSynthesizing,
		contractx.EventComplete,
	}
	if diff := cmp.Diff(want, types(got)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}

	final := got[len(got)-1]
	if diff := cmp.Diff([]string{"data_query"}, final.ToolsUsed); diff != "" {
		t.Fatalf("tools_used mismatch (-want +got):\n%s", diff)
	}
	if final.HasErrors {
		t.Fatal("HasErrors = true, want false")
	}
	if !strings.Contains(final.Response, "Acme") {
		t.Fatalf("response = %q, want it to mention Acme", final.Response)
	}
	if got[2].Specialist != contractx.SpecialistDataQuery || got[3].Specialist != contractx.SpecialistDataQuery {
		t.Fatalf("specialist events = %+v, %+v", got[2], got[3])
	}
	if data.Calls() != 1 {
		t.Fatalf("data specialist calls = %d, want 1", data.Calls())
	}
}

func TestStreamLogsKeepRequestFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(zerolog.SyncWriter(&buf)).With().Str("request_id", "req-42").Logger()
	ctx := logger.WithContext(context.Background())

	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistDataQuery}},
		&fakeSynthesizer{},
		Config{},
		okSpecialist(contractx.SpecialistDataQuery, "42 rows."),
	)
	events, err := o.Stream(ctx, contractx.ChatRequest{Message: "How many rows?"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	collect(t, events)

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, `"message":"run complete"`) {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("no run complete entry in:\n%s", buf.String())
	}
	for _, field := range []string{`"request_id":"req-42"`, `"run_id":"run-test"`} {
		if !strings.Contains(line, field) {
			t.Fatalf("log entry %s missing %s", line, field)
		}
	}
}

func TestStreamTwoSpecialistsReportPairsInOrder(t *testing.T) {
	t.Parallel()

	data := okSpecialist(contractx.SpecialistDataQuery, "Revenue grew 12% this quarter.")
	web := &fakeSpecialist{
		id: contractx.SpecialistWebResearch,
		summary: contractx.SpecialistSummary{
			SummaryText: "Industry growth averaged 8%.",
			Succeeded:   true,
			References:  []contractx.Reference{{Title: "Market report", URL: "https://example.com/report"}},
		},
	}
	synth := &fakeSynthesizer{}
	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistDataQuery, contractx.SpecialistWebResearch}},
		synth,
		Config{},
		data, web,
	)

	events, err := o.Stream(context.Background(), contractx.ChatRequest{Message: "Compare our growth with the industry"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got := collect(t, events)

	type step struct {
		Type       contractx.EventType
		Specialist contractx.SpecialistID
	}
	steps := make([]step, 0, len(got))
	for _, ev := range got {
		steps = append(steps, step{Type: ev.Type, Specialist: ev.Specialist})
	}
	want := []step{
		{Type: contractx.EventThinking},
		{Type: contractx.EventRouting},
		{Type: contractx.EventSpecialistStart, Specialist: contractx.SpecialistDataQuery},
		{Type: contractx.EventSpecialistComplete, Specialist: contractx.SpecialistDataQuery},
		{Type: contractx.EventSpecialistStart, Specialist: contractx.SpecialistWebResearch},
		{Type: contractx.EventSpecialistComplete, Specialist: contractx.SpecialistWebResearch},
		{Type: contractx.EventSynthesizing},
		{Type: contractx.EventComplete},
	}
	if diff := cmp.Diff(want, steps); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]contractx.SpecialistID{contractx.SpecialistDataQuery, contractx.SpecialistWebResearch}, got[1].Specialists); diff != "" {
		t.Fatalf("routing specialists mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"data_query", "web_research"}, got[len(got)-1].ToolsUsed); diff != "" {
		t.Fatalf("tools_used mismatch (-want +got):\n%s", diff)
	}
	if len(synth.seen) != 2 || len(synth.seen[1].References) != 1 {
		t.Fatalf("synthesizer summaries = %+v", synth.seen)
	}
}

func TestStreamFailedSpecialistStillSynthesizes(t *testing.T) {
	t.Parallel()

	broken := &fakeSpecialist{
		id:      contractx.SpecialistDataQuery,
		summary: contractx.SpecialistSummary{SummaryText: "The database is temporarily unavailable."},
	}
	synth := &fakeSynthesizer{}
	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistDataQuery}},
		synth,
		Config{},
		broken,
	)

	resp, err := o.Chat(context.Background(), contractx.ChatRequest{Message: "How many orders shipped?"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !resp.HasErrors {
		t.Fatal("HasErrors = false, want true")
	}
	if diff := cmp.Diff([]string{"data_query"}, resp.ToolsUsed); diff != "" {
		t.Fatalf("tools_used mismatch (-want +got):\n%s", diff)
	}
	if len(synth.seen) != 1 || synth.seen[0].Succeeded {
		t.Fatalf("synthesizer summaries = %+v", synth.seen)
	}
}

func TestStreamParallelRunsEverySpecialist(t *testing.T) {
	t.Parallel()

	specialists := []*fakeSpecialist{
		okSpecialist(contractx.SpecialistDataQuery, "rows"),
		okSpecialist(contractx.SpecialistWebResearch, "sources"),
		okSpecialist(contractx.SpecialistCodeAnalysis, "stats"),
	}
	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{
			contractx.SpecialistDataQuery,
			contractx.SpecialistWebResearch,
			contractx.SpecialistCodeAnalysis,
		}},
		&fakeSynthesizer{},
		Config{ParallelSpecialists: true, MaxParallelSpecialists: 2},
		specialists[0], specialists[1], specialists[2],
	)

	events, err := o.Stream(context.Background(), contractx.ChatRequest{Message: "Full analysis please"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got := collect(t, events)

	counts := map[contractx.EventType]int{}
	started := map[contractx.SpecialistID]bool{}
	for _, ev := range got {
		counts[ev.Type]++
		if ev.Type == contractx.EventSpecialistComplete && !started[ev.Specialist] {
			t.Fatalf("complete for %s before its start", ev.Specialist)
		}
		if ev.Type == contractx.EventSpecialistStart {
			started[ev.Specialist] = true
		}
	}
	if counts[contractx.EventSpecialistStart] != 3 || counts[contractx.EventSpecialistComplete] != 3 {
		t.Fatalf("event counts = %v", counts)
	}
	if last := got[len(got)-1]; last.Type != contractx.EventComplete {
		t.Fatalf("last event = %s, want complete", last.Type)
	} else if diff := cmp.Diff(
		[]string{"code_analysis", "data_query", "web_research"},
		last.ToolsUsed,
		cmpopts.SortSlices(func(a, b string) bool { return a < b }),
	); diff != "" {
		t.Fatalf("tools_used mismatch (-want +got):\n%s", diff)
	}
	for _, s := range specialists {
		if s.Calls() != 1 {
			t.Fatalf("%s calls = %d, want 1", s.id, s.Calls())
		}
	}
}

func TestStreamTerminalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		router     *fakeRouter
		synth      *fakeSynthesizer
		wantTypes  []contractx.EventType
		wantMsg    string
		wantCalled bool
	}{
		{
			name:   "routing failure",
			router: &fakeRouter{err: fmt.Errorf("%w: model down", contractx.ErrRouting)},
			synth:  &fakeSynthesizer{},
			wantTypes: []contractx.EventType{
				contractx.EventThinking,
				contractx.EventError,
			},
			wantMsg: msgRoutingFailed,
		},
		{
			name:   "synthesis failure",
			router: &fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistDataQuery}},
			synth:  &fakeSynthesizer{err: fmt.Errorf("%w: upstream 500 api_key=secret", contractx.ErrSynthesis)},
			wantTypes: []contractx.EventType{
				contractx.EventThinking,
				contractx.EventRouting,
				contractx.EventSpecialistStart,
				contractx.EventSpecialistComplete,
				contractx.EventSynthesizing,
				contractx.EventError,
			},
			wantMsg:    msgSynthesisFailed,
			wantCalled: true,
		},
		{
			name:   "unexpected failure",
			router: &fakeRouter{err: errors.New("boom")},
			synth:  &fakeSynthesizer{},
			wantTypes: []contractx.EventType{
				contractx.EventThinking,
				contractx.EventError,
			},
			wantMsg: msgInternal,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data := okSpecialist(contractx.SpecialistDataQuery, "rows")
			o := newTestOrchestrator(t, tc.router, tc.synth, Config{}, data)

			events, err := o.Stream(context.Background(), contractx.ChatRequest{Message: "question"})
			if err != nil {
				t.Fatalf("Stream() error = %v", err)
			}
			got := collect(t, events)

			if diff := cmp.Diff(tc.wantTypes, types(got)); diff != "" {
				t.Fatalf("event types mismatch (-want +got):\n%s", diff)
			}
			if msg := got[len(got)-1].Message; msg != tc.wantMsg {
				t.Fatalf("error message = %q, want %q", msg, tc.wantMsg)
			}
			if (data.Calls() == 1) != tc.wantCalled {
				t.Fatalf("specialist calls = %d, wantCalled %v", data.Calls(), tc.wantCalled)
			}
		})
	}
}

func TestStreamRunTimeoutEmitsSingleError(t *testing.T) {
	t.Parallel()

	slow := &fakeSpecialist{id: contractx.SpecialistWebResearch, block: true}
	synth := &fakeSynthesizer{}
	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistWebResearch}},
		synth,
		Config{RunTimeout: 50 * time.Millisecond},
		slow,
	)

	events, err := o.Stream(context.Background(), contractx.ChatRequest{Message: "latest news"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	got := collect(t, events)

	want := []contractx.EventType{
		contractx.EventThinking,
		contractx.EventRouting,
		contractx.EventSpecialistStart,
		contractx.EventError,
	}
	if diff := cmp.Diff(want, types(got)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	if msg := got[len(got)-1].Message; msg != msgTimeout {
		t.Fatalf("error message = %q, want %q", msg, msgTimeout)
	}
	if synth.seen != nil {
		t.Fatal("synthesizer ran after the deadline")
	}
}

func TestStreamCallerCancellationStopsEvents(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	slow := &fakeSpecialist{id: contractx.SpecialistCodeAnalysis, block: true, started: started}
	synth := &fakeSynthesizer{}
	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistCodeAnalysis}},
		synth,
		Config{},
		slow,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := o.Stream(ctx, contractx.ChatRequest{Message: "run a regression"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var got []contractx.ProgressEvent
	for ev := range events {
		got = append(got, ev)
		if ev.Type == contractx.EventSpecialistStart {
			<-started
			cancel()
		}
	}

	want := []contractx.EventType{
		contractx.EventThinking,
		contractx.EventRouting,
		contractx.EventSpecialistStart,
	}
	if diff := cmp.Diff(want, types(got)); diff != "" {
		t.Fatalf("event types mismatch (-want +got):\n%s", diff)
	}
	if synth.seen != nil {
		t.Fatal("synthesizer ran after cancellation")
	}
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, &fakeRouter{}, &fakeSynthesizer{}, Config{}, okSpecialist(contractx.SpecialistDiagram, "x"))

	for _, msg := range []string{"", "   \n\t"} {
		if _, err := o.Stream(context.Background(), contractx.ChatRequest{Message: msg}); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("Stream(%q) error = %v, want ErrInvalidMessage", msg, err)
		}
	}
}

func TestChatReturnsRunError(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t,
		&fakeRouter{err: fmt.Errorf("%w: nothing fits", contractx.ErrRouting)},
		&fakeSynthesizer{},
		Config{},
		okSpecialist(contractx.SpecialistDataQuery, "rows"),
	)

	_, err := o.Chat(context.Background(), contractx.ChatRequest{Message: "???"})
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("Chat() error = %v, want ErrRunFailed", err)
	}
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Message != msgRoutingFailed {
		t.Fatalf("Chat() error = %#v, want RunError with routing message", err)
	}
}

func TestAnalyzeDropsHistory(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistCodeAnalysis}},
		&fakeSynthesizer{},
		Config{},
		okSpecialist(contractx.SpecialistCodeAnalysis, "Mean is 4.2."),
	)

	resp, err := o.Analyze(context.Background(), "What is the mean of 1, 4, 7.6?")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if !strings.Contains(resp.Response, "Mean is 4.2.") {
		t.Fatalf("response = %q", resp.Response)
	}
}

func TestVisualizeSplitsDiagram(t *testing.T) {
	t.Parallel()

	diagram := &fakeSpecialist{
		id: contractx.SpecialistDiagram,
		summary: contractx.SpecialistSummary{
			SummaryText: "The flow shows signup leading to checkout.",
			Succeeded:   true,
			Diagram:     "```mermaid\nflowchart TD\n  A[Signup] --> B[Checkout]\n```",
		},
	}
	o := newTestOrchestrator(t,
		&fakeRouter{ids: []contractx.SpecialistID{contractx.SpecialistDiagram}},
		&fakeSynthesizer{},
		Config{},
		diagram,
	)

	resp, err := o.Visualize(context.Background(), "our signup funnel")
	if err != nil {
		t.Fatalf("Visualize() error = %v", err)
	}
	if resp.MermaidCode != "flowchart TD\n  A[Signup] --> B[Checkout]" {
		t.Fatalf("mermaid code = %q", resp.MermaidCode)
	}
	if strings.Contains(resp.Description, "```") || !strings.Contains(resp.Description, "signup leading to checkout") {
		t.Fatalf("description = %q", resp.Description)
	}

	if _, err := o.Visualize(context.Background(), "  "); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("Visualize(blank) error = %v, want ErrInvalidMessage", err)
	}
}

func TestSplitDiagramDropsReferences(t *testing.T) {
	t.Parallel()

	in := "Summary text.\n\n```mermaid\npie\n  \"a\" : 1\n```\n\n---\n\n**References**\n- [Doc](https://example.com)"
	code, prose := splitDiagram(in)
	if code != "pie\n  \"a\" : 1" {
		t.Fatalf("code = %q", code)
	}
	if prose != "Summary text." {
		t.Fatalf("prose = %q", prose)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	o, err := New(
		&fakeRouter{},
		specialistx.NewStaticRegistry(okSpecialist(contractx.SpecialistDiagram, "x")),
		&fakeSynthesizer{},
		Config{},
		WithHealthCheck("llm", func(ctx context.Context) error { return nil }),
		WithHealthCheck("store", func(ctx context.Context) error { return errors.New("connection refused") }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got := o.Health(context.Background())
	want := HealthReport{
		Status: StatusDegraded,
		Components: map[string]ComponentHealth{
			"llm":   {Status: StatusOK},
			"store": {Status: StatusDegraded, Error: "connection refused"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	registry := specialistx.NewStaticRegistry(okSpecialist(contractx.SpecialistDiagram, "x"))
	if _, err := New(nil, registry, &fakeSynthesizer{}, Config{}); err == nil {
		t.Fatal("New(nil router) error = nil")
	}
	if _, err := New(&fakeRouter{}, nil, &fakeSynthesizer{}, Config{}); err == nil {
		t.Fatal("New(nil registry) error = nil")
	}
	if _, err := New(&fakeRouter{}, registry, nil, Config{}); err == nil {
		t.Fatal("New(nil synthesizer) error = nil")
	}
}
