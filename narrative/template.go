package narrative

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/chronicle.yaml
var defaultTemplate []byte

// Template is the versioned prompt configuration for chronicle generation.
type Template struct {
	Version       string `yaml:"version"`
	Name          string `yaml:"name"`
	ContextPrefix string `yaml:"context_prefix"`
	Instruction   string `yaml:"instruction"`
	Fallback      string `yaml:"fallback"`
	MaxReplyChars int    `yaml:"max_reply_chars"`
	ContextBudget int    `yaml:"context_budget"`
}

const (
	defaultFallback      = "The troubadour has lost its voice for a moment."
	defaultMaxReplyChars = 480
	defaultContextBudget = 300
)

// DefaultTemplate returns the embedded template.
func DefaultTemplate() *Template {
	t, err := ParseTemplate(defaultTemplate)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt template invalid: %v", err))
	}
	return t
}

// LoadTemplate reads a YAML template from path; an empty path yields the embedded default.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	b, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read prompt template: %w", err)
	}
	return ParseTemplate(b)
}

// ParseTemplate decodes and validates a YAML template, applying defaults.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode prompt template: %w", err)
	}
	for _, ph := range []string{"{year}", "{summary}"} {
		if !strings.Contains(t.Instruction, ph) {
			return nil, fmt.Errorf("prompt template %q: instruction missing placeholder %s", t.Name, ph)
		}
	}
	if t.ContextPrefix != "" && !strings.Contains(t.ContextPrefix, "{context}") {
		return nil, fmt.Errorf("prompt template %q: context_prefix missing placeholder {context}", t.Name)
	}
	if t.Fallback == "" {
		t.Fallback = defaultFallback
	}
	if t.MaxReplyChars <= 0 {
		t.MaxReplyChars = defaultMaxReplyChars
	}
	if t.ContextBudget <= 0 {
		t.ContextBudget = defaultContextBudget
	}
	return &t, nil
}

// RenderPrompt substitutes each {key} in tmpl with fields[key] in a single pass,
// so substituted values are never themselves expanded.
func RenderPrompt(tmpl string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", fields[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
