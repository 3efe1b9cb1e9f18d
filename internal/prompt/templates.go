// Package prompt loads named prompt templates and renders them with
// {placeholder} substitution.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/vatflow/internal/common"
)

//go:embed default_templates.yaml
var defaultTemplates []byte

// Template names used by the application.
const (
	ClassifyV1  = "classify_v1"
	ChecklistV1 = "checklist_v1"
)

// Template is a system prompt and a user prompt with named placeholders.
type Template struct {
	System       string `yaml:"system"`
	UserTemplate string `yaml:"user_template"`
}

// Render substitutes {name} placeholders in the user template. Placeholders
// without a value are left as written.
func (t Template) Render(vars map[string]string) string {
	return render(t.UserTemplate, vars)
}

// Set is an immutable collection of templates keyed by name.
type Set struct {
	templates map[string]Template
}

// Parse decodes a YAML document of name → template.
func Parse(data []byte) (*Set, error) {
	var templates map[string]Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("%w: prompt templates: %w", common.ErrInvalidConfig, err)
	}
	for name, tpl := range templates {
		if strings.TrimSpace(tpl.System) == "" && strings.TrimSpace(tpl.UserTemplate) == "" {
			return nil, fmt.Errorf("%w: prompt template %q is empty", common.ErrInvalidConfig, name)
		}
	}
	return &Set{templates: templates}, nil
}

// Load reads templates from path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt templates %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in templates.
func Default() *Set {
	s, err := Parse(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("built-in prompt templates are invalid: %v", err))
	}
	return s
}

// LoadOrDefault loads path, or returns the built-in templates when path is empty.
func LoadOrDefault(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Get returns the template called name.
func (s *Set) Get(name string) (Template, error) {
	tpl, ok := s.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: prompt template %q", common.ErrNotFound, name)
	}
	return tpl, nil
}

// Names lists the template names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// render scans text once so substituted values are never re-expanded.
func render(text string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(text); {
		if text[i] == '{' {
			if end := strings.IndexByte(text[i+1:], '}'); end >= 0 {
				name := text[i+1 : i+1+end]
				if value, ok := vars[name]; ok && isPlaceholder(name) {
					b.WriteString(value)
					i += end + 2
					continue
				}
			}
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String()
}

func isPlaceholder(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
