// Package prompts loads named LLM prompt templates from declarative YAML
// files and renders their user_prompt text against a variable mapping.
package prompts

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelTier is the abstract model capability class a Template is bound to.
type ModelTier string

const (
	TierWeak     ModelTier = "weak"
	TierPlanning ModelTier = "planning"
	TierDeveloper ModelTier = "developer"
)

// Template is one named prompt, loaded verbatim from YAML. ResponseSchema
// names the Go type (by convention, matching a struct in internal/model)
// whose jsonschema-go schema
// the caller should force as the tool-use response shape; Template itself
// does not import those packages, to keep this package a leaf dependency.
type Template struct {
	Name           string    `yaml:"name"`
	ModelTier      ModelTier `yaml:"model_tier"`
	Temperature    float64   `yaml:"temperature"`
	SystemPrompt   string    `yaml:"system_prompt"`
	UserPrompt     string    `yaml:"user_prompt"`
	ResponseSchema string    `yaml:"response_schema"`
}

var varPattern = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// Render substitutes ${name} (or bare $name) tokens in the user prompt from
// vars. Unlike text/template, a missing variable is left untouched rather
// than causing an error — this mirrors Python's string.Template.safe_substitute,
// which callers may rely on.
func (t Template) Render(vars map[string]string) string {
	return safeSubstitute(t.UserPrompt, vars)
}

// RenderSystem substitutes the same way over the system prompt.
func (t Template) RenderSystem(vars map[string]string) string {
	return safeSubstitute(t.SystemPrompt, vars)
}

func safeSubstitute(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.Trim(match, "${}")
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// Registry loads and caches Templates from a filesystem of `<name>.yaml`
// files (knowledge/prompts in the shipped layout). Immutable after the
// first load of each name — templates are read-only after process init.
type Registry struct {
	dir fs.FS

	mu    sync.RWMutex
	cache map[string]Template
}

// NewRegistry constructs a Registry rooted at dir.
func NewRegistry(dir fs.FS) *Registry {
	return &Registry{dir: dir, cache: make(map[string]Template)}
}

// ErrNotFound is returned when a named template does not exist.
var ErrNotFound = fmt.Errorf("prompts: template not found")

// Load returns the named template, reading and parsing it on first use.
func (r *Registry) Load(name string) (Template, error) {
	r.mu.RLock()
	t, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	raw, err := fs.ReadFile(r.dir, name+".yaml")
	if err != nil {
		return Template{}, fmt.Errorf("prompts: load %q: %w: %v", name, ErrNotFound, err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(raw, &tmpl); err != nil {
		return Template{}, fmt.Errorf("prompts: parse %q: %w", name, err)
	}
	if tmpl.Name == "" {
		tmpl.Name = name
	}

	r.mu.Lock()
	r.cache[name] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}

// MustLoad loads every name up front, returning on the first error. Callers
// that want immutable-after-init semantics
// call this once during bootstrap so a missing template fails fast instead
// of surfacing mid-turn.
func (r *Registry) MustLoad(names ...string) error {
	for _, name := range names {
		if _, err := r.Load(name); err != nil {
			return err
		}
	}
	return nil
}
