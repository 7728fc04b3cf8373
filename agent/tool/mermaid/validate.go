package mermaid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tanpawarit/brain-orchestrator/agent/llm"
)

var ErrInvalidDiagram = errors.New("invalid mermaid diagram")

// DiagramTypes are the header keywords accepted as the first line.
var DiagramTypes = []string{
	"flowchart",
	"graph",
	"sequenceDiagram",
	"classDiagram",
	"stateDiagram",
	"stateDiagram-v2",
	"erDiagram",
	"gantt",
	"pie",
	"journey",
	"mindmap",
	"timeline",
}

var (
	fencePattern = regexp.MustCompile("(?s)```(?:mermaid)?\\s*\\n?(.*?)```")

	// erDiagram cardinality markers such as ||--o{ are not brackets.
	erRelationship = regexp.MustCompile(`[|}o]{1,2}(--|\.\.)[|{o]{1,2}`)
)

// Extract pulls the diagram source out of a model completion, preferring a
// fenced ```mermaid block when one is present.
func Extract(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(llm.StripFences(text))
}

// Validate checks the diagram header, that a body follows it, and that
// brackets are balanced. It returns the normalized source.
func Validate(code string) (string, error) {
	code = strings.TrimSpace(strings.ReplaceAll(code, "\r\n", "\n"))
	if code == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDiagram)
	}

	lines := strings.Split(code, "\n")
	headerIdx := -1
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		headerIdx = i
		break
	}
	if headerIdx < 0 {
		return "", fmt.Errorf("%w: missing header", ErrInvalidDiagram)
	}

	kind := headerKind(lines[headerIdx])
	if !isDiagramType(kind) {
		return "", fmt.Errorf("%w: unsupported diagram type %q", ErrInvalidDiagram, kind)
	}

	hasBody := false
	for _, line := range lines[headerIdx+1:] {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "%%") {
			hasBody = true
			break
		}
	}
	if !hasBody {
		return "", fmt.Errorf("%w: %s has no body", ErrInvalidDiagram, kind)
	}

	body := lines[headerIdx+1:]
	if kind == "erDiagram" {
		body = make([]string, 0, len(lines)-headerIdx-1)
		for _, line := range lines[headerIdx+1:] {
			body = append(body, erRelationship.ReplaceAllString(line, " "))
		}
	}
	if err := checkBrackets(body); err != nil {
		return "", err
	}
	return code, nil
}

// Fence wraps a diagram in a ```mermaid block.
func Fence(code string) string {
	return "```mermaid\n" + strings.TrimSpace(code) + "\n```"
}

func headerKind(line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[0], ":")
}

func isDiagramType(kind string) bool {
	for _, t := range DiagramTypes {
		if kind == t {
			return true
		}
	}
	return false
}

// checkBrackets ignores quoted label text and comment lines.
func checkBrackets(lines []string) error {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune
	for n, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "%%") {
			continue
		}
		inQuote := false
		for _, r := range line {
			if r == '"' {
				inQuote = !inQuote
				continue
			}
			if inQuote {
				continue
			}
			switch r {
			case '(', '[', '{':
				stack = append(stack, r)
			case ')', ']', '}':
				if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
					return fmt.Errorf("%w: unbalanced %q on body line %d", ErrInvalidDiagram, r, n+1)
				}
				stack = stack[:len(stack)-1]
			}
		}
		if inQuote {
			return fmt.Errorf("%w: unterminated quote on body line %d", ErrInvalidDiagram, n+1)
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("%w: %d unclosed bracket(s)", ErrInvalidDiagram, len(stack))
	}
	return nil
}
