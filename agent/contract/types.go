package contract

import "time"

type SpecialistID string

const (
	SpecialistDataQuery    SpecialistID = "data_query"
	SpecialistWebResearch  SpecialistID = "web_research"
	SpecialistCodeAnalysis SpecialistID = "code_analysis"
	SpecialistDiagram      SpecialistID = "diagram"
)

// AllSpecialists returns the closed set of specialist variants in canonical order.
func AllSpecialists() []SpecialistID {
	return []SpecialistID{
		SpecialistDataQuery,
		SpecialistWebResearch,
		SpecialistCodeAnalysis,
		SpecialistDiagram,
	}
}

func (id SpecialistID) Valid() bool {
	switch id {
	case SpecialistDataQuery, SpecialistWebResearch, SpecialistCodeAnalysis, SpecialistDiagram:
		return true
	default:
		return false
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SpecialistSummary is the only thing a specialist hands to the synthesizer.
// Diagram and References are display data, never raw tool output.
type SpecialistSummary struct {
	SpecialistID SpecialistID `json:"specialist_id"`
	SummaryText  string       `json:"summary_text"`
	ToolUsed     string       `json:"tool_used"`
	Succeeded    bool         `json:"succeeded"`
	Diagram      string       `json:"diagram,omitempty"`
	References   []Reference  `json:"references,omitempty"`
}

type EventType string

const (
	EventThinking           EventType = "thinking"
	EventRouting            EventType = "routing"
	EventSpecialistStart    EventType = "specialist_start"
	EventSpecialistComplete EventType = "specialist_complete"
	EventSynthesizing       EventType = "synthesizing"
	EventComplete           EventType = "complete"
	EventError              EventType = "error"
)

func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

type ProgressEvent struct {
	Type        EventType      `json:"type"`
	Message     string         `json:"message"`
	Specialist  SpecialistID   `json:"specialist,omitempty"`
	Specialists []SpecialistID `json:"specialists,omitempty"`
	Response    string         `json:"response,omitempty"`
	ToolsUsed   []string       `json:"tools_used,omitempty"`
	HasErrors   bool           `json:"has_errors,omitempty"`
}

type ChatRequest struct {
	Message             string             `json:"message"`
	ConversationHistory []ConversationTurn `json:"conversation_history"`
}

type ChatResponse struct {
	Response  string   `json:"response"`
	ToolsUsed []string `json:"tools_used"`
	HasErrors bool     `json:"has_errors"`
}

type VisualizeResponse struct {
	MermaidCode string `json:"mermaid_code"`
	Description string `json:"description"`
	Response    string `json:"response"`
}

// QueryResult is what the structured store returns for one read-only statement.
type QueryResult struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

type SearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

type SearchResult struct {
	Answer string
	Hits   []SearchHit
}
