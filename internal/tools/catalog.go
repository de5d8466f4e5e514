// Package tools holds the tool catalog offered to the model and the
// dispatcher that turns tool calls into project and task operations.
package tools

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Param describes one tool parameter.
type Param struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Items       *Param   `json:"items,omitempty"`
}

// Schema is the immutable definition of a tool.
type Schema struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  map[string]Param `json:"parameters"`
	Required    []string         `json:"required,omitempty"`

	// Mutating tools change domain state and may be gated behind confirmation.
	Mutating bool `json:"mutating"`
}

// JSONSchema renders the parameters as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Parameters))
	for name, p := range s.Parameters {
		props[name] = p.jsonSchema()
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(s.Required) > 0 {
		out["required"] = slices.Clone(s.Required)
	}
	return out
}

func (p Param) jsonSchema() map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = slices.Clone(p.Enum)
	}
	if p.Items != nil {
		m["items"] = p.Items.jsonSchema()
	}
	return m
}

var paramTypes = []string{"string", "integer", "number", "boolean", "array"}

func (p Param) check(path string) error {
	if !slices.Contains(paramTypes, p.Type) {
		return fmt.Errorf("%s: unsupported type %q", path, p.Type)
	}
	if len(p.Enum) > 0 && p.Type != "string" {
		return fmt.Errorf("%s: enum is only allowed on strings", path)
	}
	if p.Type == "array" {
		if p.Items == nil {
			return fmt.Errorf("%s: array needs items", path)
		}
		return p.Items.check(path + "[]")
	}
	return nil
}

// Catalog is the static set of tools, in definition order.
type Catalog struct {
	order    []string
	schemas  map[string]Schema
	compiled map[string]*jsonschema.Schema
}

// NewCatalog checks each schema for structural well-formedness and
// compiles it for argument validation.
func NewCatalog(schemas ...Schema) (*Catalog, error) {
	c := &Catalog{
		schemas:  make(map[string]Schema, len(schemas)),
		compiled: make(map[string]*jsonschema.Schema, len(schemas)),
	}

	for _, s := range schemas {
		if s.Name == "" {
			return nil, fmt.Errorf("tool without a name")
		}
		if _, dup := c.schemas[s.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", s.Name)
		}
		for name, p := range s.Parameters {
			if err := p.check(s.Name + "." + name); err != nil {
				return nil, err
			}
		}
		for _, req := range s.Required {
			if _, ok := s.Parameters[req]; !ok {
				return nil, fmt.Errorf("tool %q: required parameter %q is not declared", s.Name, req)
			}
		}

		compiled, err := compile(s)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", s.Name, err)
		}

		c.order = append(c.order, s.Name)
		c.schemas[s.Name] = s
		c.compiled[s.Name] = compiled
	}
	return c, nil
}

// MustCatalog is NewCatalog for package-level definitions known to be valid.
func MustCatalog(schemas ...Schema) *Catalog {
	c, err := NewCatalog(schemas...)
	if err != nil {
		panic(err)
	}
	return c
}

func compile(s Schema) (*jsonschema.Schema, error) {
	// The compiler wants decoded JSON, not Go literals.
	raw, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	url := s.Name + ".json"
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return comp.Compile(url)
}

// ListTools returns every schema in definition order.
func (c *Catalog) ListTools() []Schema {
	out := make([]Schema, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.schemas[name])
	}
	return out
}

// GetSchema looks up a tool by name.
func (c *Catalog) GetSchema(name string) (Schema, bool) {
	s, ok := c.schemas[name]
	return s, ok
}

// IsMutating reports whether the named tool changes state.
// Unknown tools are not mutating.
func (c *Catalog) IsMutating(name string) bool {
	return c.schemas[name].Mutating
}

// validate checks decoded arguments against the compiled schema.
func (c *Catalog) validate(name string, args map[string]any) error {
	s, ok := c.compiled[name]
	if !ok {
		return fmt.Errorf("unknown tool %s", name)
	}
	return s.Validate(args)
}
