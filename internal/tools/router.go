package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// Router is the thread-safe tool registry and dispatcher. Every step
// invocation goes through Dispatch, which validates parameters against the
// tool's declared input schema before handing off to the adapter.
type Router struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the router, compiling its input schema.
// Returns an error on duplicate name or an uncompilable schema.
func (r *Router) Register(tool Tool) error {
	if tool == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool name is empty")
	}

	var compiledSchema *jsonschema.Schema
	if raw := tool.Schema().InputSchema; len(raw) > 0 {
		var err error
		compiledSchema, err = compileSchema(name, raw)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"tool %q input schema: %s", name, err.Error()).WithCause(err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool %q already registered", name)
	}
	r.tools[name] = tool
	if compiledSchema != nil {
		r.compiled[name] = compiledSchema
	}
	return nil
}

// Get retrieves a tool by name.
func (r *Router) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, NewToolError(name, "tool %q not registered", name)
	}
	return tool, nil
}

// Has checks if a tool is registered.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns info for all registered tools, sorted by name.
func (r *Router) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, ToolInfo{
			Name:        t.Name(),
			Description: t.Schema().Description,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Count returns the number of registered tools.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Dispatch validates params against the tool's input schema and executes it.
// Unknown tools and validation failures return a non-retriable ToolError;
// adapter failures are passed through as ToolErrors carrying their own
// retriable flag.
func (r *Router) Dispatch(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	compiledSchema := r.compiled[name]
	r.mu.RUnlock()

	if !ok {
		return nil, NewToolError(name, "tool %q not registered", name)
	}

	if compiledSchema != nil {
		if err := validateParams(compiledSchema, params); err != nil {
			return nil, &ToolError{Tool: name, Message: err.Error(), Cause: err}
		}
	}

	out, err := tool.Execute(ctx, params)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return nil, toolErr
		}
		// Adapter returned a bare error; wrap it terminal.
		return nil, &ToolError{Tool: name, Message: err.Error(), Cause: err}
	}
	return out, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := fmt.Sprintf("https://flowmatic.dev/schemas/tools/%s.json", name)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// validateParams checks params against a compiled schema. The params map is
// round-tripped through JSON so YAML-decoded values normalize to the types
// the validator expects.
func validateParams(s *jsonschema.Schema, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	decoded, err := jsonschema.UnmarshalJSON(strings.NewReader(string(encoded)))
	if err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if err := s.Validate(decoded); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
