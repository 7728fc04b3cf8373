package orchestrator

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	healthCheckTimeout = 5 * time.Second
)

// HealthCheck probes one backing component. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health runs every registered check concurrently. The overall status is
// degraded when any component fails.
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	report := HealthReport{Status: StatusOK, Components: make(map[string]ComponentHealth, len(o.checks))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range o.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status := ComponentHealth{Status: StatusOK}
			if c.check == nil {
				status = ComponentHealth{Status: StatusDegraded, Error: "not configured"}
			} else if err := c.check(ctx); err != nil {
				status = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			}

			mu.Lock()
			report.Components[c.name] = status
			if status.Status != StatusOK {
				report.Status = StatusDegraded
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return report
}

var (
	mermaidBlock    = regexp.MustCompile("(?s)```mermaid[ \\t]*\\n(.*?)\\n?```")
	referencesBlock = regexp.MustCompile(`(?s)\n*---\s*\n+\*\*References\*\*.*$`)
)

// splitDiagram pulls the first mermaid block out of a final answer and
// returns it alongside the remaining prose without diagrams or references.
func splitDiagram(response string) (code, prose string) {
	if m := mermaidBlock.FindStringSubmatch(response); m != nil {
		code = strings.TrimSpace(m[1])
	}
	prose = mermaidBlock.ReplaceAllString(response, "")
	prose = referencesBlock.ReplaceAllString(prose, "")
	return code, strings.TrimSpace(prose)
}
