package reaper

import (
	"reflect"
	"testing"

	"github.com/cadenza-ai/cadenza-agents-go/dsl"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name    string
		actions []dsl.Action
		want    []ActionCall
	}{
		{
			name:    "mute carries bool default",
			actions: []dsl.Action{{Name: "mute", Params: map[string]any{"track": 0}}},
			want:    []ActionCall{{"action": "set_track_mute", "mute": true, "track": 0}},
		},
		{
			name:    "unmute flips the bool",
			actions: []dsl.Action{{Name: "unmute", Params: map[string]any{"track": 2}}},
			want:    []ActionCall{{"action": "set_track_mute", "mute": false, "track": 2}},
		},
		{
			name:    "rename aliases set_track_name",
			actions: []dsl.Action{{Name: "rename", Params: map[string]any{"track": 1, "name": "Bass"}}},
			want:    []ActionCall{{"action": "set_track_name", "track": 1, "name": "Bass"}},
		},
		{
			name:    "set_volume keeps float param",
			actions: []dsl.Action{{Name: "set_volume", Params: map[string]any{"track": 3, "volume_db": -3.0}}},
			want:    []ActionCall{{"action": "set_track_volume", "track": 3, "volume_db": -3.0}},
		},
		{
			name:    "float track index is normalized to int",
			actions: []dsl.Action{{Name: "delete", Params: map[string]any{"track": 4.0}}},
			want:    []ActionCall{{"action": "delete_track", "track": 4}},
		},
		{
			name:    "create_clip targets bar placement with int bars",
			actions: []dsl.Action{{Name: "create_clip", Params: map[string]any{"track": 0, "bar": 5.0, "length_bars": 4.0}}},
			want:    []ActionCall{{"action": "create_clip_at_bar", "track": 0, "bar": 5, "length_bars": 4}},
		},
		{
			name:    "unknown verb passes through",
			actions: []dsl.Action{{Name: "freeze_track", Params: map[string]any{"track": 1}}},
			want:    []ActionCall{{"action": "freeze_track", "track": 1}},
		},
		{
			name: "order is preserved",
			actions: []dsl.Action{
				{Name: "solo", Params: map[string]any{"track": 2}},
				{Name: "mute", Params: map[string]any{"track": 0}},
				{Name: "mute", Params: map[string]any{"track": 1}},
			},
			want: []ActionCall{
				{"action": "set_track_solo", "solo": true, "track": 2},
				{"action": "set_track_mute", "mute": true, "track": 0},
				{"action": "set_track_mute", "mute": true, "track": 1},
			},
		},
	}

	translator := NewTranslator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translator.Translate(tt.actions)
			if err != nil {
				t.Fatalf("Translate() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Translate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateEmpty(t *testing.T) {
	_, err := NewTranslator().Translate(nil)
	if err == nil {
		t.Fatal("Translate(nil) error = nil, want error")
	}
}

func TestNormalizeParam(t *testing.T) {
	tests := []struct {
		name  string
		param string
		value any
		want  any
	}{
		{"track float to int", "track", 3.0, 3},
		{"track int64 to int", "track", int64(3), 3},
		{"track already int", "track", 3, 3},
		{"volume stays float", "volume_db", -3.5, -3.5},
		{"name stays string", "name", "Drums", "Drums"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeParam(tt.param, tt.value); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalizeParam(%q, %v) = %v, want %v", tt.param, tt.value, got, tt.want)
			}
		})
	}
}
