package dsl

import (
	"errors"
	"reflect"
	"testing"
)

func trackState() map[string]any {
	return map[string]any{
		"tracks": []any{
			map[string]any{"index": 0, "name": "Drums 1", "volume": -2.5, "muted": false, "soloed": false, "selected": true},
			map[string]any{"index": 1, "name": "Drums 2", "volume": 1.0, "muted": false, "soloed": true, "selected": false},
			map[string]any{"index": 2, "name": "Bass", "volume": 0.0, "muted": true, "soloed": false, "selected": false},
			map[string]any{"index": 3, "name": "Lead Synth", "volume": 3.2, "muted": false, "soloed": false, "selected": false},
		},
	}
}

// TestExecutePipelines tests full parse-and-evaluate passes over a track
// snapshot, checking emitted actions and their order.
func TestExecutePipelines(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Action
	}{
		{
			name: "filter by name then mute",
			src:  `tracks.filter(name contains "Drums").for_each(mute())`,
			want: []Action{
				{Name: "mute", Params: map[string]any{"track": 0}},
				{Name: "mute", Params: map[string]any{"track": 1}},
			},
		},
		{
			name: "iteration variable prefix is optional",
			src:  `tracks.filter(track.name contains "Drums").for_each(mute())`,
			want: []Action{
				{Name: "mute", Params: map[string]any{"track": 0}},
				{Name: "mute", Params: map[string]any{"track": 1}},
			},
		},
		{
			name: "numeric threshold preserves source order",
			src:  `tracks.filter(volume > 0).for_each(set_volume(volume_db=-3.0))`,
			want: []Action{
				{Name: "set_volume", Params: map[string]any{"track": 1, "volume_db": -3.0}},
				{Name: "set_volume", Params: map[string]any{"track": 3, "volume_db": -3.0}},
			},
		},
		{
			name: "boolean equality",
			src:  `tracks.filter(muted == true).for_each(unmute())`,
			want: []Action{
				{Name: "unmute", Params: map[string]any{"track": 2}},
			},
		},
		{
			name: "combinators with short circuit",
			src:  `tracks.filter(soloed == true or selected == true).for_each(deselect())`,
			want: []Action{
				{Name: "deselect", Params: map[string]any{"track": 0}},
				{Name: "deselect", Params: map[string]any{"track": 1}},
			},
		},
		{
			name: "negation",
			src:  `tracks.filter(not (index > 1)).for_each(solo())`,
			want: []Action{
				{Name: "solo", Params: map[string]any{"track": 0}},
				{Name: "solo", Params: map[string]any{"track": 1}},
			},
		},
		{
			name: "field binding carries the item value",
			src:  `tracks.filter(index == 2).for_each(rename(name=track.name))`,
			want: []Action{
				{Name: "rename", Params: map[string]any{"track": 2, "name": "Bass"}},
			},
		},
		{
			name: "map then for_each binds scalar as value",
			src:  `tracks.filter(muted == true).map(name).for_each(log_name())`,
			want: []Action{
				{Name: "log_name", Params: map[string]any{"value": "Bass"}},
			},
		},
		{
			name: "multiple statements accumulate in order",
			src: `tracks.filter(index == 3).for_each(delete())
tracks.filter(muted == true).for_each(unmute())`,
			want: []Action{
				{Name: "delete", Params: map[string]any{"track": 3}},
				{Name: "unmute", Params: map[string]any{"track": 2}},
			},
		},
		{
			name: "filter without for_each emits nothing",
			src:  `tracks.filter(volume < 0)`,
			want: nil,
		},
		{
			name: "empty filter result emits zero actions",
			src:  `tracks.filter(name == "No Such Track").for_each(mute())`,
			want: []Action{},
		},
		{
			name: "bare boolean test on absent field matches nothing",
			src:  `tracks.filter(armed).for_each(mute())`,
			want: []Action{},
		},
		{
			name: "explicit track binding wins over index injection",
			src:  `tracks.filter(index == 0).for_each(set_volume(track=7, volume_db=0))`,
			want: []Action{
				{Name: "set_volume", Params: map[string]any{"track": 7.0, "volume_db": 0.0}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := BuildContext(trackState())
			got, err := Execute(tt.src, ctx)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Execute() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestExecuteIdempotent verifies re-evaluating the same program against an
// unchanged context yields equal results.
func TestExecuteIdempotent(t *testing.T) {
	ctx := BuildContext(trackState())
	src := `tracks.filter(volume > 0).for_each(set_volume(volume_db=0))`

	first, err := Execute(src, ctx)
	if err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	second, err := Execute(src, ctx)
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-evaluation diverged: %v vs %v", first, second)
	}
}

// TestFilterEmptyCollection verifies pipelines over an empty collection
// succeed with zero actions rather than erroring.
func TestFilterEmptyCollection(t *testing.T) {
	ctx := BuildContext(map[string]any{"tracks": []any{}})

	got, err := Execute(`tracks.filter(volume > 0).for_each(mute())`, ctx)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Execute() over empty collection = %v, want no actions", got)
	}

	// Filter-terminal form succeeds too.
	if _, err := Execute(`tracks.filter(muted == true)`, ctx); err != nil {
		t.Errorf("filter-terminal Execute() error = %v", err)
	}
}

// TestFilterMissingField verifies a comparison against an absent field is
// false for that item, not an error.
func TestFilterMissingField(t *testing.T) {
	state := map[string]any{
		"tracks": []any{
			map[string]any{"index": 0, "name": "Full", "color": "red"},
			map[string]any{"index": 1, "name": "Sparse"},
		},
	}
	got, err := Execute(`tracks.filter(color == "red").for_each(select())`, BuildContext(state))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := []Action{{Name: "select", Params: map[string]any{"track": 0}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Execute() = %v, want %v", got, want)
	}
}

// TestMapMissingFieldFails verifies map cannot degrade gracefully.
func TestMapMissingFieldFails(t *testing.T) {
	state := map[string]any{
		"tracks": []any{
			map[string]any{"index": 0, "name": "Full"},
			map[string]any{"index": 1},
		},
	}
	_, err := Execute(`tracks.map(name)`, BuildContext(state))
	var ferr *FieldResolutionError
	if !errors.As(err, &ferr) {
		t.Fatalf("Execute() error = %v, want *FieldResolutionError", err)
	}
	if ferr.Field != "name" || ferr.Stage != "map" {
		t.Errorf("FieldResolutionError = %+v, want field name in stage map", ferr)
	}
}

// TestForEachAllOrNothing verifies a mid-sequence failure yields zero
// actions wrapped in EvaluationAbortedError.
func TestForEachAllOrNothing(t *testing.T) {
	state := map[string]any{
		"tracks": []any{
			map[string]any{"index": 0, "name": "First"},
			map[string]any{"index": 1}, // no name field
			map[string]any{"index": 2, "name": "Third"},
		},
	}
	actions, err := Execute(`tracks.for_each(rename(name=track.name))`, BuildContext(state))
	if actions != nil {
		t.Errorf("Execute() returned %d actions alongside error, want zero", len(actions))
	}

	var aerr *EvaluationAbortedError
	if !errors.As(err, &aerr) {
		t.Fatalf("Execute() error = %v, want *EvaluationAbortedError", err)
	}
	if aerr.Index != 1 {
		t.Errorf("aborted at index %d, want 1", aerr.Index)
	}
	var ferr *FieldResolutionError
	if !errors.As(aerr, &ferr) {
		t.Errorf("cause = %v, want *FieldResolutionError via Unwrap", aerr.Cause)
	}
}

// TestTypeMismatch verifies present-but-wrong-typed fields surface as
// TypeMismatchError rather than silently comparing false.
func TestTypeMismatch(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"ordering against string field", `tracks.filter(name > 3).for_each(mute())`},
		{"contains against numeric field", `tracks.filter(volume contains "x").for_each(mute())`},
		{"equality across families", `tracks.filter(name == true).for_each(mute())`},
		{"boolean test on string field", `tracks.filter(name).for_each(mute())`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Execute(tt.src, BuildContext(trackState()))
			var terr *TypeMismatchError
			if !errors.As(err, &terr) {
				t.Fatalf("Execute() error = %v, want *TypeMismatchError", err)
			}
		})
	}
}

// TestContainsCaseSensitive verifies substring matching does not fold case.
func TestContainsCaseSensitive(t *testing.T) {
	ctx := BuildContext(trackState())

	got, err := Execute(`tracks.filter(name contains "drums").for_each(mute())`, ctx)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("lowercase needle matched %d tracks, want 0", len(got))
	}

	got, err = Execute(`tracks.filter(name contains "Drums").for_each(mute())`, ctx)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("exact-case needle matched %d tracks, want 2", len(got))
	}
}

// TestIntFloatOneFamily verifies int-backed state compares against float
// literals and vice versa.
func TestIntFloatOneFamily(t *testing.T) {
	state := map[string]any{
		"tracks": []any{
			map[string]any{"index": 0, "volume": 2},     // int
			map[string]any{"index": 1, "volume": 2.0},   // float64
			map[string]any{"index": 2, "volume": int64(5)},
		},
	}
	got, err := Execute(`tracks.filter(volume == 2.0).for_each(mute())`, BuildContext(state))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("matched %d tracks, want 2 (int and float forms of 2)", len(got))
	}
}

// TestUnknownCollection verifies statements over absent collections fail.
func TestUnknownCollection(t *testing.T) {
	_, err := Execute(`markers.for_each(delete())`, BuildContext(trackState()))
	var uerr *UnknownCollectionError
	if !errors.As(err, &uerr) {
		t.Fatalf("Execute() error = %v, want *UnknownCollectionError", err)
	}
	if uerr.Name != "markers" {
		t.Errorf("unknown collection name = %q, want %q", uerr.Name, "markers")
	}
}

// TestBuildContextStateWrapper verifies both wrapped and bare snapshots
// register their collections.
func TestBuildContextStateWrapper(t *testing.T) {
	wrapped := map[string]any{"state": trackState()}
	got, err := Execute(`tracks.filter(index == 0).for_each(mute())`, BuildContext(wrapped))
	if err != nil {
		t.Fatalf("Execute() with wrapped state error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("wrapped state produced %d actions, want 1", len(got))
	}
}

// TestFilterDoesNotMutateSource verifies stages return fresh collections.
func TestFilterDoesNotMutateSource(t *testing.T) {
	ctx := BuildContext(trackState())
	before, _ := ctx.Collection("tracks")
	beforeLen := before.Len()

	if _, err := Execute(`tracks.filter(index == 0).for_each(mute())`, ctx); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	after, _ := ctx.Collection("tracks")
	if after.Len() != beforeLen {
		t.Errorf("source collection length changed from %d to %d", beforeLen, after.Len())
	}
}

// TestIterVarFor tests iteration variable derivation.
func TestIterVarFor(t *testing.T) {
	tests := []struct {
		collection string
		want       string
	}{
		{"tracks", "track"},
		{"clips", "clip"},
		{"fx_chain", "fx"},
		{"selected_tracks", "selected_track"},
		{"s", "item"},
	}
	for _, tt := range tests {
		if got := iterVarFor(tt.collection); got != tt.want {
			t.Errorf("iterVarFor(%q) = %q, want %q", tt.collection, got, tt.want)
		}
	}
}
