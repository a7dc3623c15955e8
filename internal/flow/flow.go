// Package flow invokes named prompt templates with schema-validated input and
// output through an LLM provider.
package flow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Names of the built-in flows.
const (
	OnboardingFlow     = "generateOnboardingPrompt"
	HistorySummaryFlow = "summarizeNavigationHistory"
)

//go:embed flows.yaml
var builtinFlows []byte

// Definition is the declarative form of a flow as written in YAML.
type Definition struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
	Template     string         `yaml:"template"`
}

type definitionFile struct {
	Flows []Definition `yaml:"flows"`
}

// Flow is a compiled definition: parsed template and compiled schemas.
type Flow struct {
	Name        string
	Description string

	input      *gojsonschema.Schema
	output     *gojsonschema.Schema
	outputJSON []byte
	tmpl       *template.Template
}

// Registry holds flows by name.
type Registry struct {
	flows map[string]*Flow
}

// DefaultRegistry compiles the built-in flows.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(builtinFlows)
}

// ParseRegistry compiles every flow declared in a YAML document.
func ParseRegistry(data []byte) (*Registry, error) {
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse flow definitions: %w", err)
	}

	r := &Registry{flows: make(map[string]*Flow, len(file.Flows))}
	for _, def := range file.Flows {
		f, err := Compile(def)
		if err != nil {
			return nil, err
		}
		if _, dup := r.flows[f.Name]; dup {
			return nil, fmt.Errorf("duplicate flow %q", f.Name)
		}
		r.flows[f.Name] = f
	}

	return r, nil
}

// Compile validates a definition and prepares it for invocation.
func Compile(def Definition) (*Flow, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("flow name cannot be empty")
	}
	if strings.TrimSpace(def.Template) == "" {
		return nil, fmt.Errorf("flow %s: template cannot be empty", def.Name)
	}

	input, _, err := compileSchema(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("flow %s: input schema: %w", def.Name, err)
	}
	output, outputJSON, err := compileSchema(def.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("flow %s: output schema: %w", def.Name, err)
	}

	tmpl, err := template.New(def.Name).Option("missingkey=error").Parse(def.Template)
	if err != nil {
		return nil, fmt.Errorf("flow %s: template: %w", def.Name, err)
	}

	return &Flow{
		Name:        def.Name,
		Description: def.Description,
		input:       input,
		output:      output,
		outputJSON:  outputJSON,
		tmpl:        tmpl,
	}, nil
}

func compileSchema(doc map[string]any) (*gojsonschema.Schema, []byte, error) {
	if len(doc) == 0 {
		return nil, nil, fmt.Errorf("schema is required")
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, nil, err
	}

	return schema, raw, nil
}

// Get returns the flow registered under name.
func (r *Registry) Get(name string) (*Flow, bool) {
	f, ok := r.flows[name]
	return f, ok
}

// Names lists registered flow names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.flows))
	for name := range r.flows {
		names = append(names, name)
	}
	return names
}

// ValidateInput checks a JSON document against the input schema.
func (f *Flow) ValidateInput(doc []byte) error {
	return validate(f.input, doc)
}

// ValidateOutput checks a JSON document against the output schema.
func (f *Flow) ValidateOutput(doc []byte) error {
	return validate(f.output, doc)
}

// Render executes the prompt template over decoded input.
func (f *Flow) Render(input any) (string, error) {
	var b strings.Builder
	if err := f.tmpl.Execute(&b, input); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Prompt renders the template and appends the output contract the provider
// must follow.
func (f *Flow) Prompt(input any) (string, error) {
	body, err := f.Render(input)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\nRespond with only a JSON object that conforms to this JSON schema:\n")
	b.Write(f.outputJSON)
	return b.String(), nil
}

func validate(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
