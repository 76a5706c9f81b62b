package daw

import (
	"context"
	"testing"

	"github.com/cadenza-ai/cadenza-agents-go/metrics"
	"github.com/cadenza-ai/cadenza-agents-go/reaper"
)

// testAgent builds an agent wired for parsing only, skipping the provider
// so no API keys are needed.
func testAgent(useDSL bool) *DawAgent {
	return &DawAgent{
		translator: reaper.NewTranslator(),
		metrics:    metrics.NewSentryMetrics(),
		useDSL:     useDSL,
	}
}

func sampleState() map[string]interface{} {
	return map[string]interface{}{
		"tracks": []interface{}{
			map[string]interface{}{"index": 0, "name": "Drums 1", "volume": -2.5, "muted": false},
			map[string]interface{}{"index": 1, "name": "Drums 2", "volume": 1.0, "muted": false},
			map[string]interface{}{"index": 2, "name": "Bass", "volume": 0.0, "muted": true},
			map[string]interface{}{"index": 3, "name": "Lead Synth", "volume": 3.2, "muted": false},
		},
	}
}

func TestParseActionsFromResponse_DSL(t *testing.T) {
	agent := testAgent(true)
	raw := "```\ntracks.filter(name contains \"Drums\").for_each(mute())\n```"

	actions, err := agent.parseActionsFromResponse(context.Background(), raw, sampleState())
	if err != nil {
		t.Fatalf("parseActionsFromResponse() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	for i, want := range []int{0, 1} {
		if actions[i]["action"] != "set_track_mute" {
			t.Errorf("action[%d] = %v, want set_track_mute", i, actions[i]["action"])
		}
		if actions[i]["track"] != want {
			t.Errorf("action[%d] track = %v, want %d", i, actions[i]["track"], want)
		}
		if actions[i]["mute"] != true {
			t.Errorf("action[%d] mute = %v, want true", i, actions[i]["mute"])
		}
	}
}

func TestParseActionsFromResponse_MultiStatement(t *testing.T) {
	agent := testAgent(true)
	raw := "tracks.filter(muted == true).for_each(unmute())\ntracks.filter(index == 3).for_each(delete())"

	actions, err := agent.parseActionsFromResponse(context.Background(), raw, sampleState())
	if err != nil {
		t.Fatalf("parseActionsFromResponse() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0]["action"] != "set_track_mute" || actions[0]["mute"] != false {
		t.Errorf("action[0] = %v, want unmute of track 2", actions[0])
	}
	if actions[1]["action"] != "delete_track" || actions[1]["track"] != 3 {
		t.Errorf("action[1] = %v, want delete of track 3", actions[1])
	}
}

func TestParseActionsFromResponse_DSLEvaluationError(t *testing.T) {
	agent := testAgent(true)
	// markers does not exist in the state snapshot
	raw := "markers.filter(name contains \"x\").for_each(delete())"

	_, err := agent.parseActionsFromResponse(context.Background(), raw, sampleState())
	if err == nil {
		t.Fatal("expected error for unknown collection, got nil")
	}
}

func TestParseActionsFromResponse_EmptyResult(t *testing.T) {
	agent := testAgent(true)
	raw := `tracks.filter(name == "No Such Track").for_each(mute())`

	_, err := agent.parseActionsFromResponse(context.Background(), raw, sampleState())
	if err == nil {
		t.Fatal("expected error when program produces no actions, got nil")
	}
}

func TestParseActionsFromResponse_JSONFallback(t *testing.T) {
	agent := testAgent(false)
	raw := `{"actions": [{"action": "set_track_mute", "track": 0, "mute": true}]}`

	actions, err := agent.parseActionsFromResponse(context.Background(), raw, sampleState())
	if err != nil {
		t.Fatalf("parseActionsFromResponse() error = %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	if actions[0]["action"] != "set_track_mute" {
		t.Errorf("action = %v, want set_track_mute", actions[0]["action"])
	}
}

func TestParseActionsFromResponse_Empty(t *testing.T) {
	agent := testAgent(true)
	if _, err := agent.parseActionsFromResponse(context.Background(), "", sampleState()); err == nil {
		t.Fatal("expected error for empty output, got nil")
	}
}

func TestParseActionsIncremental_Partial(t *testing.T) {
	agent := testAgent(true)

	// One complete line plus a trailing fragment: only the complete line runs.
	text := "tracks.filter(muted == true).for_each(unmute())\ntracks.filter(name con"
	actions, err := agent.parseActionsIncremental(context.Background(), text, sampleState(), true)
	if err != nil {
		t.Fatalf("parseActionsIncremental() error = %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	if actions[0]["action"] != "set_track_mute" || actions[0]["track"] != 2 {
		t.Errorf("action = %v, want unmute of track 2", actions[0])
	}

	// No newline yet: nothing is complete.
	if _, err := agent.parseActionsIncremental(context.Background(), "tracks.filter(mut", sampleState(), true); err == nil {
		t.Fatal("expected error for incomplete statement, got nil")
	}
}

func TestParseActionsIncremental_FinalJSONArray(t *testing.T) {
	agent := testAgent(true)
	raw := `[{"action": "delete_track", "track": 1}]`

	actions, err := agent.parseActionsIncremental(context.Background(), raw, sampleState(), false)
	if err != nil {
		t.Fatalf("parseActionsIncremental() error = %v", err)
	}
	if len(actions) != 1 || actions[0]["action"] != "delete_track" {
		t.Errorf("actions = %v, want one delete_track", actions)
	}
}
