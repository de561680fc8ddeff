package definitions

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowmatic/flowmatic/internal/conditions"
	"github.com/flowmatic/flowmatic/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for WorkflowDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowmatic.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "triggers", "steps"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "version": {"type": "string"},
    "triggers": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/trigger" }
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "metadata": {"type": "object"}
  },
  "additionalProperties": false,
  "$defs": {
    "trigger": {
      "type": "object",
      "properties": {
        "event": {"type": "string"},
        "schedule": {"type": "string"},
        "conditions": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        }
      },
      "additionalProperties": false
    },
    "step": {
      "type": "object",
      "required": ["name", "tool"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "tool": {"type": "string", "minLength": 1},
        "conditions": {
          "type": "array",
          "items": {"type": "string", "minLength": 1}
        },
        "params": {"type": "object"}
      },
      "additionalProperties": false
    }
  }
}`

var compiledWorkflowSchema = mustCompileWorkflowSchema()

func mustCompileWorkflowSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("unmarshal workflow schema: %v", err))
	}
	if err := c.AddResource("https://flowmatic.dev/schemas/workflow.json", doc); err != nil {
		panic(fmt.Sprintf("add workflow schema resource: %v", err))
	}
	s, err := c.Compile("https://flowmatic.dev/schemas/workflow.json")
	if err != nil {
		panic(fmt.Sprintf("compile workflow schema: %v", err))
	}
	return s
}

// Validate runs the full validation pipeline on a definition: structural
// JSON Schema validation, then semantic analysis (trigger rules, duplicate
// step names, tool existence, condition grammar, parameter references).
func Validate(def *schema.WorkflowDefinition, tools ToolLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if structural := validateStructural(def); structural != nil {
		result.Merge(structural)
		if !result.Valid() {
			return result
		}
	}

	result.Merge(validateTriggers(def))
	result.Merge(validateSteps(def, tools))
	return result
}

// validateStructural round-trips the definition through JSON and checks it
// against the embedded schema.
func validateStructural(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	encoded, err := json.Marshal(def)
	if err != nil {
		result.AddError("", schema.ErrCodeDefinition, fmt.Sprintf("encode definition: %v", err))
		return result
	}
	decoded, err := jsonschema.UnmarshalJSON(strings.NewReader(string(encoded)))
	if err != nil {
		result.AddError("", schema.ErrCodeDefinition, fmt.Sprintf("decode definition: %v", err))
		return result
	}
	if err := compiledWorkflowSchema.Validate(decoded); err != nil {
		result.AddError("", schema.ErrCodeDefinition, err.Error())
	}
	return result
}

func validateTriggers(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for i, rule := range def.Triggers {
		path := fmt.Sprintf("triggers[%d]", i)

		switch {
		case rule.Event == "" && rule.Schedule == "":
			result.AddError(path, schema.ErrCodeDefinition, "trigger rule needs an event or a schedule")
		case rule.Event != "" && rule.Schedule != "":
			result.AddError(path, schema.ErrCodeDefinition, "trigger rule cannot have both event and schedule")
		}
		if rule.Event != "" && strings.TrimSpace(rule.Event) == "" {
			result.AddError(path+".event", schema.ErrCodeDefinition, "event name is blank")
		}
		if rule.Schedule != "" {
			if _, err := cron.ParseStandard(rule.Schedule); err != nil {
				result.AddError(path+".schedule", schema.ErrCodeDefinition,
					fmt.Sprintf("invalid cron expression %q: %v", rule.Schedule, err))
			}
		}
		for j, cond := range rule.Conditions {
			if _, err := conditions.Compile(cond); err != nil {
				result.AddError(fmt.Sprintf("%s.conditions[%d]", path, j),
					schema.ErrCodeCondition, err.Error())
			}
		}
	}
	return result
}

func validateSteps(def *schema.WorkflowDefinition, tools ToolLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := map[string]bool{}
	for i := range def.Steps {
		step := &def.Steps[i]
		path := fmt.Sprintf("steps[%d]", i)

		if seen[step.Name] {
			result.AddError(path+".name", schema.ErrCodeDefinition,
				fmt.Sprintf("duplicate step name %q", step.Name))
		}

		if tools != nil && !tools.Has(step.Tool) {
			result.AddError(path+".tool", schema.ErrCodeDefinition,
				fmt.Sprintf("unknown tool %q", step.Tool))
		}

		for j, cond := range step.Conditions {
			if _, err := conditions.Compile(cond); err != nil {
				result.AddError(fmt.Sprintf("%s.conditions[%d]", path, j),
					schema.ErrCodeCondition, err.Error())
			}
		}

		// Parameter references to execution_results must point at a step
		// that runs strictly earlier.
		for _, ref := range collectStepRefs(step.Params) {
			if !seen[ref] {
				result.AddError(path+".params", schema.ErrCodeDefinition,
					fmt.Sprintf("step %q references execution_results.%s before it runs", step.Name, ref))
			}
		}

		seen[step.Name] = true
	}
	return result
}

var refPattern = regexp.MustCompile(`\$\{\s*execution_results\.([a-zA-Z0-9_-]+)`)

// collectStepRefs extracts all step names referenced via
// ${execution_results.<step>...} anywhere in a params tree.
func collectStepRefs(params map[string]any) []string {
	var refs []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			for _, m := range refPattern.FindAllStringSubmatch(val, -1) {
				refs = append(refs, m[1])
			}
		case map[string]any:
			for _, inner := range val {
				walk(inner)
			}
		case []any:
			for _, inner := range val {
				walk(inner)
			}
		}
	}
	walk(params)
	return refs
}
