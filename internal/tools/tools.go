// Package tools parses, validates, and executes the tool calls a model emits.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ashutoshrp06/friday/internal/types"
)

// Tool defines the interface that all tools must implement.
type Tool interface {
	// Name returns the tool type, the NAME in <tool_NAME>.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// Parameters returns the parameter schema for validation.
	Parameters() []Parameter

	// Execute runs the tool with validated parameters. The returned data is
	// included in the tool result; an error marks the result failed.
	Execute(ctx context.Context, params types.Params) (any, error)
}

// Parameter defines a tool parameter with validation rules.
// Type is one of "string", "int", "float", "bool".
type Parameter = types.ParameterInfo

// FuncTool adapts a function to the Tool interface.
type FuncTool struct {
	name        string
	description string
	params      []Parameter
	fn          func(ctx context.Context, params types.Params) (any, error)
}

// NewFuncTool creates a tool from fn.
func NewFuncTool(name, description string, params []Parameter, fn func(ctx context.Context, params types.Params) (any, error)) *FuncTool {
	return &FuncTool{name: name, description: description, params: params, fn: fn}
}

func (f *FuncTool) Name() string            { return f.name }
func (f *FuncTool) Description() string     { return f.description }
func (f *FuncTool) Parameters() []Parameter { return f.params }

func (f *FuncTool) Execute(ctx context.Context, params types.Params) (any, error) {
	return f.fn(ctx, params)
}

// Registry manages tool registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolExists, name)
	}

	r.tools[name] = tool
	return nil
}

// MustRegister adds a tool to the registry, panicking on error.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTools returns all registered tools with their metadata, sorted by name.
func (r *Registry) ListTools() []types.ToolInfo {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]types.ToolInfo, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		infos = append(infos, types.ToolInfo{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return infos
}

// GenerateToolsPrompt describes the registered tools and how to call them
// with the tag protocol.
func (r *Registry) GenerateToolsPrompt() string {
	tools := r.ListTools()
	if len(tools) == 0 {
		return "No tools available."
	}

	var sb strings.Builder
	for _, tool := range tools {
		fmt.Fprintf(&sb, "### tool_%s\n%s\n", tool.Name, tool.Description)
		if len(tool.Parameters) > 0 {
			sb.WriteString("Parameters:\n")
			for _, p := range tool.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				typ := p.Type
				if typ == "" {
					typ = "string"
				}
				fmt.Fprintf(&sb, "  - %s (%s, %s): %s\n", p.Name, typ, req, p.Description)
				if p.Default != "" {
					fmt.Fprintf(&sb, "    Default: %s\n", p.Default)
				}
				if len(p.Enum) > 0 {
					fmt.Fprintf(&sb, "    One of: %s\n", strings.Join(p.Enum, ", "))
				}
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`To use a tool, write one tag per call with one child tag per parameter:
<tool_NAME><param>value</param></tool_NAME>

Example:
<tool_semantic_search><query>token refresh flow</query><top_k>5</top_k></tool_semantic_search>`)

	return sb.String()
}
