package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

//go:embed template/prompts.yaml
var defaultRaw []byte

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Router             string `yaml:"router"`
	DataQuerySQL       string `yaml:"data_query_sql"`
	DataQuerySummary   string `yaml:"data_query_summary"`
	ResearchSummary    string `yaml:"research_summary"`
	CodeGeneration     string `yaml:"code_generation"`
	CodeSummary        string `yaml:"code_summary"`
	DiagramGeneration  string `yaml:"diagram_generation"`
	DiagramDescription string `yaml:"diagram_description"`
	Synthesizer        string `yaml:"synthesizer"`
}

// LoadPromptSet returns the embedded prompt set. The embedded file is part of
// the binary, so a parse failure is a build defect.
func LoadPromptSet() PromptSet {
	set, err := Parse(defaultRaw)
	if err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return set
}

func Parse(raw []byte) (PromptSet, error) {
	var set PromptSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return PromptSet{}, fmt.Errorf("decode prompts: %w", err)
	}
	set.trim()
	return set, nil
}

// LoadFile overlays the prompts found in path on top of base. Keys absent
// from the file keep their base value.
func LoadFile(path string, base PromptSet) (PromptSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PromptSet{}, fmt.Errorf("read prompts file: %w", err)
	}
	override, err := Parse(raw)
	if err != nil {
		return PromptSet{}, err
	}
	merged := base.merge(override)
	if err := merged.Validate(); err != nil {
		return PromptSet{}, err
	}
	return merged, nil
}

func (p PromptSet) Validate() error {
	fields := map[string]string{
		"router":              p.Router,
		"data_query_sql":      p.DataQuerySQL,
		"data_query_summary":  p.DataQuerySummary,
		"research_summary":    p.ResearchSummary,
		"code_generation":     p.CodeGeneration,
		"code_summary":        p.CodeSummary,
		"diagram_generation":  p.DiagramGeneration,
		"diagram_description": p.DiagramDescription,
		"synthesizer":         p.Synthesizer,
	}
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return nil
}

func (p *PromptSet) trim() {
	for _, f := range p.fields() {
		*f = strings.TrimSpace(*f)
	}
}

func (p PromptSet) merge(override PromptSet) PromptSet {
	out := p
	dst := out.fields()
	src := override.fields()
	for i := range dst {
		if *src[i] != "" {
			*dst[i] = *src[i]
		}
	}
	return out
}

func (p *PromptSet) fields() []*string {
	return []*string{
		&p.Router,
		&p.DataQuerySQL,
		&p.DataQuerySummary,
		&p.ResearchSummary,
		&p.CodeGeneration,
		&p.CodeSummary,
		&p.DiagramGeneration,
		&p.DiagramDescription,
		&p.Synthesizer,
	}
}

// Fill replaces {{name}} markers in tmpl.
func Fill(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
