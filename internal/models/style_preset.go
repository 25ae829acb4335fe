package models

// StylePreset biases a prompt toward an art style. Presets are loaded
// once at startup and never mutated.
type StylePreset struct {
	Name           string `json:"name"`
	PromptSuffix   string `json:"prompt_suffix"`
	NegativePrompt string `json:"negative_prompt"`
	Description    string `json:"description"`
}
