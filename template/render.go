// Package template renders matrix config templates. A template is a YAML
// document with substitution directives; shared constants come from a
// companion constants file so suites can reference collections like
// OSS_COMMERCIAL_X86 without repeating them.
package template

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Renderer expands a matrix template into a plain YAML document.
// Rendering happens once, at collection time; the output is then parsed by the
// registry and never mutated.
type Renderer struct {
	log       *zap.SugaredLogger
	constants map[string][]string
	vars      map[string]string
}

// Config holds renderer configuration.
type Config struct {
	Log *zap.SugaredLogger
	// ConstantsFile is the path of the shared constants document, a YAML
	// mapping from constant name to a sequence of identifiers. Optional.
	ConstantsFile string
	// Vars are caller-provided scalar substitutions.
	Vars map[string]string
}

// NewRenderer creates a renderer, loading the shared constants file if one is
// configured.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	r := &Renderer{
		log:       cfg.Log,
		constants: make(map[string][]string),
		vars:      cfg.Vars,
	}

	if cfg.ConstantsFile != "" {
		constants, err := loadConstants(cfg.ConstantsFile)
		if err != nil {
			return nil, fmt.Errorf("loading constants file: %w", err)
		}
		r.constants = constants
		cfg.Log.Debugw("Loaded shared constants", "path", cfg.ConstantsFile, "len(constants)", len(constants))
	}

	return r, nil
}

// RenderFile renders the template at path.
func (r *Renderer) RenderFile(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template file: %w", err)
	}
	return r.Render(path, src)
}

// Render expands src. Template-syntax errors and unresolved names surface
// here, before any YAML parsing happens.
func (r *Renderer) Render(name string, src []byte) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(r.funcMap()).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, fmt.Errorf("rendering template %s: %w", name, err)
	}

	return buf.Bytes(), nil
}

// Constants returns the names of all loaded shared constants, sorted.
func (r *Renderer) Constants() []string {
	names := make([]string, 0, len(r.constants))
	for name := range r.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Renderer) funcMap() template.FuncMap {
	return template.FuncMap{
		"constant": func(name string) (string, error) {
			values, ok := r.constants[name]
			if !ok {
				return "", fmt.Errorf("unresolved constant %q", name)
			}
			return flowSequence(values), nil
		},
		"var": func(name string) (string, error) {
			value, ok := r.vars[name]
			if !ok {
				return "", fmt.Errorf("unresolved variable %q", name)
			}
			return value, nil
		},
		"list": func(values ...string) string {
			return flowSequence(values)
		},
		"quote": func(v string) string {
			return fmt.Sprintf("%q", v)
		},
	}
}

// flowSequence encodes values as a YAML flow sequence so the result is valid
// at any indentation level of the surrounding document.
func flowSequence(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func loadConstants(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading constants file: %w", err)
	}

	var constants map[string][]string
	if err := yaml.Unmarshal(data, &constants); err != nil {
		return nil, fmt.Errorf("parsing constants file: %w", err)
	}

	for name, values := range constants {
		if len(values) == 0 {
			return nil, fmt.Errorf("constant %q resolves to an empty sequence", name)
		}
	}

	return constants, nil
}
