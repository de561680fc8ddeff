package tools

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// AI adapters: summarization, entity extraction, urgency classification.
// Extraction is regex-based over the communication text; classification
// scores keyword hits (>=2 urgent, >=1 high, otherwise normal).

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
		regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`),
		regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`),
	}
	amountPattern   = regexp.MustCompile(`\$[\d,]+\.?\d*`)
	vehiclePatterns = []*regexp.Regexp{
		regexp.MustCompile(`License:\s*([A-Z0-9]+)`),
		regexp.MustCompile(`VIN:\s*([A-Z0-9]+)`),
		regexp.MustCompile(`\d{4}\s+\w+`), // year make
	}
	deadlinePattern = regexp.MustCompile(`(?i)(?:by|before|deadline|due)\s+(\d{1,2}/\d{1,2}/\d{4})`)
	wsPattern       = regexp.MustCompile(`\s+`)
)

// --- ai_summarize ---

type summarizeTool struct{}

// NewSummarizeTool returns the ai_summarize adapter.
func NewSummarizeTool() Tool { return &summarizeTool{} }

func (t *summarizeTool) Name() string { return "ai_summarize" }

func (t *summarizeTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Summarize a communication to a bounded length",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": {"type": "string"},
    "max_length": {"type": "integer", "minimum": 1}
  }
}`),
	}
}

func (t *summarizeTool) Execute(_ context.Context, params map[string]any) (map[string]any, error) {
	content := stringParam(params, "content", "")
	maxLength := intParam(params, "max_length", 200)

	summary := wsPattern.ReplaceAllString(strings.TrimSpace(content), " ")
	if len(summary) > maxLength {
		cut := summary[:maxLength]
		if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
			cut = cut[:idx]
		}
		summary = cut + "..."
	}
	return map[string]any{"summary": summary}, nil
}

// --- ai_extract_entities ---

type extractEntitiesTool struct{}

// NewExtractEntitiesTool returns the ai_extract_entities adapter.
func NewExtractEntitiesTool() Tool { return &extractEntitiesTool{} }

func (t *extractEntitiesTool) Name() string { return "ai_extract_entities" }

func (t *extractEntitiesTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Extract dates, amounts, vehicles and deadlines from text",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": {"type": "string"},
    "types": {"type": "array", "items": {"type": "string"}}
  }
}`),
	}
}

func (t *extractEntitiesTool) Execute(_ context.Context, params map[string]any) (map[string]any, error) {
	content := stringParam(params, "content", "")

	wanted := map[string]bool{}
	if raw, ok := params["types"].([]any); ok {
		for _, v := range raw {
			if s, isStr := v.(string); isStr {
				wanted[s] = true
			}
		}
	} else {
		for _, s := range []string{"dates", "amounts", "vehicles", "deadlines"} {
			wanted[s] = true
		}
	}

	all := map[string][]any{
		"dates":     extractDates(content),
		"amounts":   toAny(amountPattern.FindAllString(content, -1)),
		"vehicles":  extractVehicles(content),
		"deadlines": extractDeadlines(content),
	}

	entities := map[string]any{}
	for kind, values := range all {
		if wanted[kind] {
			entities[kind] = values
		}
	}
	return map[string]any{"entities": entities}, nil
}

func extractDates(content string) []any {
	var dates []any
	for _, p := range datePatterns {
		dates = append(dates, toAny(p.FindAllString(content, -1))...)
	}
	if dates == nil {
		dates = []any{}
	}
	return dates
}

func extractVehicles(content string) []any {
	var vehicles []any
	for _, p := range vehiclePatterns {
		for _, m := range p.FindAllStringSubmatch(content, -1) {
			if len(m) > 1 {
				vehicles = append(vehicles, m[1])
			} else {
				vehicles = append(vehicles, m[0])
			}
		}
	}
	if vehicles == nil {
		vehicles = []any{}
	}
	return vehicles
}

func extractDeadlines(content string) []any {
	var deadlines []any
	for _, m := range deadlinePattern.FindAllStringSubmatch(content, -1) {
		deadlines = append(deadlines, m[1])
	}
	if deadlines == nil {
		deadlines = []any{}
	}
	return deadlines
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// --- ai_classify_urgency ---

type classifyUrgencyTool struct{}

// NewClassifyUrgencyTool returns the ai_classify_urgency adapter.
func NewClassifyUrgencyTool() Tool { return &classifyUrgencyTool{} }

func (t *classifyUrgencyTool) Name() string { return "ai_classify_urgency" }

func (t *classifyUrgencyTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Classify communication urgency from keyword hits",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": {"type": "string"},
    "keywords": {"type": "array", "items": {"type": "string"}}
  }
}`),
	}
}

func (t *classifyUrgencyTool) Execute(_ context.Context, params map[string]any) (map[string]any, error) {
	content := strings.ToLower(stringParam(params, "content", ""))

	score := 0
	if raw, ok := params["keywords"].([]any); ok {
		for _, v := range raw {
			if kw, isStr := v.(string); isStr && kw != "" && strings.Contains(content, strings.ToLower(kw)) {
				score++
			}
		}
	}

	level := "normal"
	switch {
	case score >= 2:
		level = "urgent"
	case score >= 1:
		level = "high"
	}
	return map[string]any{"urgency_level": level, "urgency_score": score}, nil
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}
