package llm

import (
	"testing"
)

func TestIsDSLCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		// Pipeline stages
		{"filter chain", "tracks.filter(volume < 0)", true},
		{"map chain", "tracks.map(get_name())", true},
		{"for_each chain", "tracks.for_each(mute())", true},
		{"filter then for_each", "tracks.filter(name contains \"Drum\").for_each(mute())", true},
		{"multi-line program", "tracks.for_each(solo())\ntracks.filter(muted == true).for_each(unmute())", true},

		// Whitespace around the dot still detected via the stage markers
		{"filter with leading collection", "selected_tracks.filter(index > 2)", true},

		// Not DSL
		{"empty string", "", false},
		{"plain text", "This is not DSL code", false},
		{"prose mentioning filter word", "You should filter the tracks manually", false},
		{"JSON", "{\"action\": \"set_track_mute\"}", false},
		{"bare collection", "tracks", false},
	}

	provider := &OpenAIProvider{}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := provider.isDSLCode(tt.input)
			if result != tt.expected {
				t.Errorf("isDSLCode(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

// TestIsDSLCode_AllStages ensures every grammar stage keyword is detected.
func TestIsDSLCode_AllStages(t *testing.T) {
	allStages := []string{
		".filter(",
		".map(",
		".for_each(",
	}

	provider := &OpenAIProvider{}

	for _, stage := range allStages {
		t.Run("detects_"+stage, func(t *testing.T) {
			dsl := "tracks" + stage + "x)"
			if !provider.isDSLCode(dsl) {
				t.Errorf("isDSLCode() should detect DSL containing %q, but it didn't. DSL: %q", stage, dsl)
			}
		})
	}
}
