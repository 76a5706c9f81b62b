package llm

// GetActionsSchema returns the JSON schema used as a structured-output
// fallback when CFG grammars are unavailable (Gemini, streaming). The model
// emits the action list directly instead of DSL code.
func GetActionsSchema() *OutputSchema {
	return &OutputSchema{
		Name:        "daw_actions",
		Description: "Ordered list of DAW actions to execute",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"actions": map[string]any{
					"type":        "array",
					"description": "Actions in execution order",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"action": map[string]any{
								"type":        "string",
								"description": "Action name, e.g. set_track_mute",
							},
							"track": map[string]any{
								"type":        "integer",
								"description": "Zero-based track index",
							},
							"value": map[string]any{
								"type":        "string",
								"description": "Optional action value",
							},
						},
						"required":             []string{"action"},
						"additionalProperties": true,
					},
				},
			},
			"required":             []string{"actions"},
			"additionalProperties": false,
		},
	}
}
