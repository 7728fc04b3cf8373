package synthesizer

import (
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

var (
	mermaidBlock = regexp.MustCompile("(?s)```mermaid\\s*\\n.*?```")

	// A references heading the model wrote on its own line, in any of the
	// usual markdown forms, English or Spanish.
	referencesHeading = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*|__)?(?:references|sources|referencias|fuentes)(?:\*\*|__)?[ \t]*:?[ \t]*(?:\*\*|__)?[ \t]*$`)
	trailingRule      = regexp.MustCompile(`(?s)(?:\n[ \t]*(?:-{3,}|\*{3,}|_{3,})[ \t]*)+\s*$`)
)

func postProcess(text string, summaries []contractx.SpecialistSummary) string {
	text = stripReferences(strings.TrimSpace(text))
	text = placeDiagrams(text, diagramsOf(summaries))
	if refs := referencesOf(summaries); len(refs) > 0 {
		text += "\n\n---\n\n" + renderReferences(refs)
	}
	return strings.TrimSpace(text)
}

// stripReferences drops a model-written references section and everything
// after it. The real list is appended from the specialist data.
func stripReferences(text string) string {
	loc := referencesHeading.FindStringIndex(text)
	if loc == nil {
		return text
	}
	text = strings.TrimRight(text[:loc[0]], " \t\n")
	text = trailingRule.ReplaceAllString(text, "")
	return strings.TrimRight(text, " \t\n")
}

// placeDiagrams swaps the mermaid blocks the model wrote, in order, for the
// real diagrams, drops surplus blocks and appends diagrams the model left out.
func placeDiagrams(text string, diagrams []string) string {
	i := 0
	text = mermaidBlock.ReplaceAllStringFunc(text, func(string) string {
		if i >= len(diagrams) {
			return ""
		}
		d := diagrams[i]
		i++
		return d
	})
	for ; i < len(diagrams); i++ {
		text = strings.TrimRight(text, " \t\n") + "\n\n" + diagrams[i]
	}
	return text
}

func diagramsOf(summaries []contractx.SpecialistSummary) []string {
	var out []string
	for _, s := range summaries {
		if s.Succeeded && strings.TrimSpace(s.Diagram) != "" {
			out = append(out, strings.TrimSpace(s.Diagram))
		}
	}
	return out
}

func referencesOf(summaries []contractx.SpecialistSummary) []contractx.Reference {
	seen := map[string]struct{}{}
	var out []contractx.Reference
	for _, s := range summaries {
		if !s.Succeeded || s.SpecialistID != contractx.SpecialistWebResearch {
			continue
		}
		for _, r := range s.References {
			if strings.TrimSpace(r.URL) == "" {
				continue
			}
			if _, ok := seen[r.URL]; ok {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

var titleEscaper = strings.NewReplacer("[", "\\[", "]", "\\]")

func renderReferences(refs []contractx.Reference) string {
	var b strings.Builder
	b.WriteString("**References**\n")
	for _, r := range refs {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = r.URL
		}
		b.WriteString("- [")
		b.WriteString(titleEscaper.Replace(title))
		b.WriteString("](")
		b.WriteString(r.URL)
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
