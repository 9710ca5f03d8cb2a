// Package prompt builds literal model-input text from layout-specific
// templates.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pokerlens/pokeragent-worker/internal/layout"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Placeholder tokens recognized in templates. Unmatched placeholders are
// left untouched so a template problem is visible in the prompt itself.
const (
	layoutInfoToken    = "{{LAYOUT_INFO}}"
	errorFeedbackToken = "{{ERROR_FEEDBACK}}"
)

// Builder loads and fills prompt templates. Templates are read from the
// embedded FS once and cached.
type Builder struct {
	mu    sync.Mutex
	cache map[string]string
}

// NewBuilder creates an empty-cache builder.
func NewBuilder() *Builder {
	return &Builder{cache: make(map[string]string)}
}

// Boundary returns the fixed phase-1 boundary-detection prompt.
func (b *Builder) Boundary() (string, error) {
	return b.load("boundary")
}

// Extraction builds the phase-2 deep-extraction prompt for a layout,
// substituting the layout's on-screen region hints, accumulated error
// feedback, and any custom values.
func (b *Builder) Extraction(layoutName string, errorFeedback string, customValues map[string]string) (string, error) {
	tpl, err := b.load("extraction_" + layoutName)
	if err != nil {
		// Unknown layouts read through the generic template.
		tpl, err = b.load("extraction_" + layout.GenericLayout)
		if err != nil {
			return "", err
		}
	}

	out := strings.ReplaceAll(tpl, layoutInfoToken, layoutInfo(layoutName))
	out = strings.ReplaceAll(out, errorFeedbackToken, errorFeedback)
	for key, value := range customValues {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out, nil
}

func (b *Builder) load(name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tpl, ok := b.cache[name]; ok {
		return tpl, nil
	}

	data, err := templates.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to load template %s: %w", name, err)
	}

	tpl := string(data)
	b.cache[name] = tpl
	return tpl, nil
}

// layoutInfo renders the layout's region table as reading hints.
func layoutInfo(layoutName string) string {
	def := layout.Lookup(layoutName)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Broadcast format: %s\n", def.Name)
	sb.WriteString("On-screen regions (normalized coordinates, x/y/width/height):\n")
	for _, r := range def.Regions {
		fmt.Fprintf(&sb, "- %s: %.2f, %.2f, %.2f, %.2f\n", r.Name, r.X, r.Y, r.Width, r.Height)
	}
	return strings.TrimRight(sb.String(), "\n")
}
