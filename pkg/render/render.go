// Package render turns an evaluated session snapshot into static HTML.
// Hidden fields and sections are omitted, read-only fields render
// disabled, and per-field errors render beside their inputs. Markup in
// field help text is sanitized before it reaches the template; the
// surrounding application owns styling and submission wiring.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-ticketform/pkg/schema"
	"github.com/goliatone/go-ticketform/pkg/session"
	"github.com/goliatone/go-ticketform/pkg/validate"
)

//go:embed templates/*.html
var templatesFS embed.FS

const defaultTemplate = "templates/form.html"

// Option customises the renderer before construction.
type Option func(*config)

type config struct {
	templates    fs.FS
	templateName string
}

// WithTemplates overrides the embedded template set.
func WithTemplates(fsys fs.FS) Option {
	return func(cfg *config) {
		if fsys != nil {
			cfg.templates = fsys
		}
	}
}

// WithTemplateName selects the entry template within the set.
func WithTemplateName(name string) Option {
	return func(cfg *config) {
		if strings.TrimSpace(name) != "" {
			cfg.templateName = name
		}
	}
}

// HTMLRenderer renders snapshots through a pongo2 template set.
type HTMLRenderer struct {
	mu       sync.RWMutex
	template *pongo2.Template
}

// NewHTML constructs a renderer, loading and parsing the entry template
// once up front so rendering cannot fail on template syntax later.
func NewHTML(opts ...Option) (*HTMLRenderer, error) {
	cfg := &config{
		templates:    templatesFS,
		templateName: defaultTemplate,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	set := pongo2.NewSet("ticketform", pongo2.NewFSLoader(cfg.templates))
	tmpl, err := set.FromFile(cfg.templateName)
	if err != nil {
		return nil, fmt.Errorf("render: parse template %q: %w", cfg.templateName, err)
	}

	return &HTMLRenderer{template: tmpl}, nil
}

// Render produces the HTML for one snapshot of the given schema.
func (r *HTMLRenderer) Render(compiled *schema.CompiledSchema, snapshot session.Snapshot) ([]byte, error) {
	if compiled == nil {
		return nil, fmt.Errorf("render: schema is required")
	}

	var buf bytes.Buffer

	r.mu.RLock()
	err := r.template.ExecuteWriter(pongo2.Context{
		"schema_id":      snapshot.SchemaID,
		"schema_version": snapshot.SchemaVersion,
		"title":          compiled.Source().Title,
		"valid":          snapshot.Valid,
		"sections":       buildView(compiled, snapshot),
	}, &buf)
	r.mu.RUnlock()

	if err != nil {
		return nil, fmt.Errorf("render: execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// Section is the template-facing view of one visible section.
type Section struct {
	ID          string
	Title       string
	Description string
	Fields      []Field
}

// Field is the template-facing view of one visible field.
type Field struct {
	ID          string
	Type        string
	Label       string
	Help        string // sanitized, rendered unescaped
	Placeholder string
	Value       string
	Checked     bool
	ReadOnly    bool
	Required    bool
	Errors      []string
	Options     []FieldOption
	Files       []validate.File
}

// FieldOption is one select/radio choice.
type FieldOption struct {
	Value    string
	Label    string
	Selected bool
}

func buildView(compiled *schema.CompiledSchema, snapshot session.Snapshot) []Section {
	var sections []Section
	for _, section := range compiled.Sections() {
		if !snapshot.Sections[section.ID] {
			continue
		}

		view := Section{
			ID:          section.ID,
			Title:       section.Title,
			Description: section.Description,
		}
		for _, field := range section.Fields {
			state, ok := snapshot.Fields[field.ID]
			if !ok || !state.Visible {
				continue
			}
			view.Fields = append(view.Fields, buildField(field, state))
		}
		sections = append(sections, view)
	}
	return sections
}

func buildField(field *schema.CompiledField, state session.FieldSnapshot) Field {
	view := Field{
		ID:          field.ID,
		Type:        string(field.Type),
		Label:       field.DisplayLabel(),
		Help:        sanitizeHelp(field.Help),
		Placeholder: field.Placeholder,
		ReadOnly:    state.ReadOnly,
		Required:    field.Required,
		Errors:      state.Errors,
	}

	switch field.Type {
	case schema.FieldTypeCheckbox:
		view.Checked = asBool(state.Value)
	case schema.FieldTypeFile:
		if files, ok := state.Value.([]validate.File); ok {
			view.Files = files
		}
	default:
		view.Value = asString(state.Value)
	}

	if field.Type.HasOptions() {
		current := asString(state.Value)
		for _, option := range field.Options {
			view.Options = append(view.Options, FieldOption{
				Value:    option.Value,
				Label:    option.DisplayLabel(),
				Selected: option.Value == current,
			})
		}
	}
	return view
}

var (
	helpPolicyOnce sync.Once
	helpPolicy     *bluemonday.Policy
)

// sanitizeHelp strips everything except a small inline vocabulary from
// authored help markup. Help is the only snapshot content rendered
// unescaped, so it must pass through here.
func sanitizeHelp(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	helpPolicyOnce.Do(func() {
		policy := bluemonday.StrictPolicy()
		policy.AllowElements("a", "strong", "em", "code", "br")
		policy.AllowAttrs("href").OnElements("a")
		policy.AllowStandardURLs()
		helpPolicy = policy
	})
	return strings.TrimSpace(helpPolicy.Sanitize(trimmed))
}

func asString(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func asBool(value any) bool {
	b, ok := value.(bool)
	return ok && b
}
