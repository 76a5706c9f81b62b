package daw

import "testing"

func TestIsolateDSLBlock(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare statement passes through",
			raw:  `tracks.filter(name contains "Drum").for_each(mute())`,
			want: `tracks.filter(name contains "Drum").for_each(mute())`,
		},
		{
			name: "fenced block with language tag",
			raw:  "Here is the plan:\n```cadenza\ntracks.for_each(mute())\n```\nDone.",
			want: "tracks.for_each(mute())",
		},
		{
			name: "fenced block without language tag",
			raw:  "```\ntracks.filter(volume > 0).for_each(set_volume(volume_db=-3.0))\n```",
			want: "tracks.filter(volume > 0).for_each(set_volume(volume_db=-3.0))",
		},
		{
			name: "unterminated fence still yields content",
			raw:  "```\ntracks.for_each(solo())",
			want: "tracks.for_each(solo())",
		},
		{
			name: "prose around unfenced statements is dropped",
			raw:  "Sure, muting the drum tracks now.\ntracks.filter(name contains \"Drum\").for_each(mute())\nLet me know if that works.",
			want: `tracks.filter(name contains "Drum").for_each(mute())`,
		},
		{
			name: "multiple statement lines survive",
			raw:  "tracks.filter(muted == true).for_each(unmute())\ntracks.filter(index == 3).for_each(delete())",
			want: "tracks.filter(muted == true).for_each(unmute())\ntracks.filter(index == 3).for_each(delete())",
		},
		{
			name: "pure prose is returned unchanged",
			raw:  "I cannot help with that request.",
			want: "I cannot help with that request.",
		},
		{
			name: "comment lines are dropped outside fences",
			raw:  "# mute everything\ntracks.for_each(mute())",
			want: "tracks.for_each(mute())",
		},
		{
			name: "empty input",
			raw:  "   \n  ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsolateDSLBlock(tt.raw); got != tt.want {
				t.Errorf("IsolateDSLBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLooksLikeDSL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"filter chain", `tracks.filter(muted == true)`, true},
		{"map chain", `tracks.map(name)`, true},
		{"for_each chain", `tracks.for_each(mute())`, true},
		{"plain prose", "The drums are too loud.", false},
		{"json output", `{"actions": [{"action": "set_track_mute"}]}`, false},
		{"bare collection", "tracks", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeDSL(tt.text); got != tt.want {
				t.Errorf("looksLikeDSL(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountStatements(t *testing.T) {
	tests := []struct {
		name string
		code string
		want int
	}{
		{"single statement", "tracks.for_each(mute())", 1},
		{"two statements with comment", "# plan\ntracks.for_each(mute())\n\ntracks.for_each(solo())", 2},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countStatements(tt.code); got != tt.want {
				t.Errorf("countStatements() = %d, want %d", got, tt.want)
			}
		})
	}
}
