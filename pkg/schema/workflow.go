package schema

// WorkflowDefinition is the declarative workflow format, authored as YAML.
// A definition binds trigger rules to an ordered list of tool steps.
type WorkflowDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string         `json:"version,omitempty" yaml:"version,omitempty"`
	Triggers    []TriggerRule  `json:"triggers" yaml:"triggers"`
	Steps       []Step         `json:"steps" yaml:"steps"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TriggerRule matches incoming events (or a cron schedule) against a workflow.
// All conditions in one rule must hold; any matching rule activates the workflow.
type TriggerRule struct {
	Event      string   `json:"event,omitempty" yaml:"event,omitempty"`
	Schedule   string   `json:"schedule,omitempty" yaml:"schedule,omitempty"` // cron expression, mutually exclusive with event
	Conditions []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Step describes a single tool invocation within a workflow.
type Step struct {
	Name       string         `json:"name" yaml:"name"`
	Tool       string         `json:"tool" yaml:"tool"`
	Conditions []string       `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Params     map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// StepByName returns the step with the given name, or nil.
func (d *WorkflowDefinition) StepByName(name string) *Step {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}
