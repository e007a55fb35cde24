package domain

// Tool describes a callable available to plans. Parameters is a JSON-schema
// style object used both for prompts and for argument validation.
type Tool struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// Required lists the parameter names the schema marks as required.
func (t Tool) Required() []string {
	raw, ok := t.Parameters["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// ToolErrorPayload is the structured failure shape a tool may return instead
// of an error. Steps with such a result are marked failed.
type ToolErrorPayload struct {
	Error   string `json:"error"`
	Success *bool  `json:"success,omitempty"`
}
