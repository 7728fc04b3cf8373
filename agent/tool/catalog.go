package tool

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

const (
	ToolSQLQuery       = "sql_query"
	ToolWebSearch      = "web_search"
	ToolCodeSandbox    = "code_sandbox"
	ToolMermaidDiagram = "mermaid_diagram"
)

// Capability describes one specialist to the router and the synthesizer.
type Capability struct {
	Specialist  contractx.SpecialistID
	Tool        string
	Label       string
	Description string
}

var catalog = map[contractx.SpecialistID]Capability{
	contractx.SpecialistDataQuery: {
		Specialist:  contractx.SpecialistDataQuery,
		Tool:        ToolSQLQuery,
		Label:       "Database",
		Description: "Answers questions about records in the structured database: counts, totals, averages, distributions and lookups.",
	},
	contractx.SpecialistWebResearch: {
		Specialist:  contractx.SpecialistWebResearch,
		Tool:        ToolWebSearch,
		Label:       "Web research",
		Description: "Searches the web for literature, recent studies, guidelines and general background, with sources.",
	},
	contractx.SpecialistCodeAnalysis: {
		Specialist:  contractx.SpecialistCodeAnalysis,
		Tool:        ToolCodeSandbox,
		Label:       "Statistical analysis",
		Description: "Writes and runs a small numeric program for statistical tests, correlations, simulations and calculations.",
	},
	contractx.SpecialistDiagram: {
		Specialist:  contractx.SpecialistDiagram,
		Tool:        ToolMermaidDiagram,
		Label:       "Diagram",
		Description: "Draws flowcharts, sequence, class, state, entity-relationship, gantt, pie and journey diagrams.",
	},
}

func Lookup(id contractx.SpecialistID) (Capability, bool) {
	c, ok := catalog[id]
	return c, ok
}

// Label returns the reader-facing name of a specialist.
func Label(id contractx.SpecialistID) string {
	if c, ok := catalog[id]; ok {
		return c.Label
	}
	return string(id)
}

// Describe renders one line per specialist for the routing prompt.
func Describe(ids []contractx.SpecialistID) string {
	var b strings.Builder
	for _, id := range ids {
		c, ok := catalog[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Specialist, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
