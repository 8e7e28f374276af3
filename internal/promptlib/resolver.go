package promptlib

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var embeddedFS embed.FS

var templateFiles = map[string]string{
	"translate.system": "templates/translate_system.tmpl",
	"translate.user":   "templates/translate_user.tmpl",
	"polish.user":      "templates/polish_user.tmpl",
	"glossary.extract": "templates/glossary_extract.tmpl",
}

// Resolver holds parsed templates keyed by name, registered once at
// startup from the embedded .tmpl files.
type Resolver struct {
	mu        sync.RWMutex
	templates map[string]Template
	parsed    map[string]*template.Template
}

// NewResolver loads and parses every embedded template.
func NewResolver() (*Resolver, error) {
	r := &Resolver{
		templates: make(map[string]Template),
		parsed:    make(map[string]*template.Template),
	}
	for key, path := range templateFiles {
		data, err := embeddedFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("promptlib: read %s: %w", path, err)
		}
		text := string(data)
		tmpl, err := template.New(key).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("promptlib: parse %s: %w", key, err)
		}
		r.templates[key] = Template{
			Key:       key,
			Text:      text,
			Variables: ExtractVariables(text),
			Hash:      HashText(text),
		}
		r.parsed[key] = tmpl
	}
	return r, nil
}

// Get returns the metadata for a registered template, for call-log
// traceability (key + hash alongside the resulting ChatResult).
func (r *Resolver) Get(key string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[key]
	return t, ok
}

// Render executes the named template against data.
func (r *Resolver) Render(key string, data any) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.parsed[key]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("promptlib: unknown template %q", key)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("promptlib: render %q: %w", key, err)
	}
	return buf.String(), nil
}
