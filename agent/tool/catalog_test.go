package tool

import (
	"strings"
	"testing"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

func TestCatalogCoversEverySpecialist(t *testing.T) {
	t.Parallel()

	for _, id := range contractx.AllSpecialists() {
		c, ok := Lookup(id)
		if !ok {
			t.Fatalf("missing catalog entry for %s", id)
		}
		if c.Tool == "" || c.Label == "" || c.Description == "" {
			t.Fatalf("incomplete catalog entry: %#v", c)
		}
	}
}

func TestDescribeOnlyListsRequested(t *testing.T) {
	t.Parallel()

	out := Describe([]contractx.SpecialistID{contractx.SpecialistDiagram, "unknown"})
	if !strings.HasPrefix(out, "- diagram: ") {
		t.Fatalf("unexpected description: %q", out)
	}
	if strings.Contains(out, "data_query") || strings.Contains(out, "unknown") {
		t.Fatalf("description lists unrequested specialists: %q", out)
	}
	if strings.Count(out, "\n") != 0 {
		t.Fatalf("expected a single line, got %q", out)
	}
}

func TestLabelFallsBackToID(t *testing.T) {
	t.Parallel()

	if got := Label(contractx.SpecialistWebResearch); got != "Web research" {
		t.Fatalf("Label() = %q", got)
	}
	if got := Label("other"); got != "other" {
		t.Fatalf("Label() = %q", got)
	}
}
