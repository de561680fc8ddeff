package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"
)

// dataTransformTool reshapes step data with jq programs. Compiled *Code
// objects are cached and reused across goroutines.
type dataTransformTool struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewDataTransformTool returns the data_transform adapter.
func NewDataTransformTool() Tool {
	return &dataTransformTool{cache: make(map[string]*gojq.Code)}
}

func (t *dataTransformTool) Name() string { return "data_transform" }

func (t *dataTransformTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Reshape data with a jq program",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["program"],
  "properties": {
    "program": {"type": "string", "minLength": 1},
    "input": {}
  }
}`),
	}
}

// Execute runs the jq program against the input value. jq programs can
// produce multiple outputs; one output is returned directly, several are
// collected into a list.
func (t *dataTransformTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	program := stringParam(params, "program", "")

	code, err := t.getOrCompile(program)
	if err != nil {
		return nil, NewToolError(t.Name(), "compile jq program: %s", err.Error())
	}

	iter := code.RunWithContext(ctx, params["input"])

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if runErr, isErr := val.(error); isErr {
			return nil, NewToolError(t.Name(), "jq evaluation failed: %s", runErr.Error())
		}
		results = append(results, val)
	}

	var result any
	switch len(results) {
	case 0:
		result = nil
	case 1:
		result = results[0]
	default:
		result = results
	}
	return map[string]any{"result": result}, nil
}

func (t *dataTransformTool) getOrCompile(program string) (*gojq.Code, error) {
	t.mu.RLock()
	if code, ok := t.cache[program]; ok {
		t.mu.RUnlock()
		return code, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if code, ok := t.cache[program]; ok {
		return code, nil
	}

	query, err := gojq.Parse(program)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, err
	}
	t.cache[program] = code
	return code, nil
}
