package tools

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition overrides how a tool is described to the model.
type Definition struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Parameters  []Parameter `yaml:"parameters"`
}

// Definitions is a set of tool definitions loaded from YAML.
type Definitions struct {
	byName map[string]Definition
}

// LoadDefinitions reads a file of the form:
//
//	tools:
//	  - name: semantic_search
//	    description: ...
//	    parameters:
//	      - {name: query, type: string, required: true}
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinitions(data)
}

// ParseDefinitions parses YAML tool definitions.
func ParseDefinitions(data []byte) (*Definitions, error) {
	var doc struct {
		Tools []Definition `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tool definitions: %w", err)
	}

	defs := &Definitions{byName: make(map[string]Definition, len(doc.Tools))}
	for _, d := range doc.Tools {
		if d.Name == "" {
			return nil, fmt.Errorf("parse tool definitions: entry without name")
		}
		defs.byName[d.Name] = d
	}
	return defs, nil
}

// Get returns the definition for name.
func (d *Definitions) Get(name string) (Definition, bool) {
	if d == nil {
		return Definition{}, false
	}
	def, ok := d.byName[name]
	return def, ok
}

// Apply returns tool with its description and parameters replaced by the
// matching definition, or tool unchanged when there is none. Empty fields in
// the definition keep the tool's own values.
func (d *Definitions) Apply(tool Tool) Tool {
	def, ok := d.Get(tool.Name())
	if !ok {
		return tool
	}
	return &definedTool{Tool: tool, def: def}
}

type definedTool struct {
	Tool
	def Definition
}

func (t *definedTool) Description() string {
	if t.def.Description != "" {
		return t.def.Description
	}
	return t.Tool.Description()
}

func (t *definedTool) Parameters() []Parameter {
	if len(t.def.Parameters) > 0 {
		return t.def.Parameters
	}
	return t.Tool.Parameters()
}

// BuildRegistry registers toolset, applying the definitions in
// definitionsPath when that file exists.
func BuildRegistry(toolset []Tool, definitionsPath string) (*Registry, error) {
	var defs *Definitions
	if definitionsPath != "" {
		loaded, err := LoadDefinitions(definitionsPath)
		switch {
		case err == nil:
			defs = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("load tool definitions: %w", err)
		}
	}

	registry := NewRegistry()
	for _, tool := range toolset {
		if err := registry.Register(defs.Apply(tool)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
