package models

// ActionsOutput is the structured-output fallback shape: the model emits the
// action list directly instead of DSL code.
type ActionsOutput struct {
	Actions []map[string]interface{} `json:"actions"`
}

// TrackState mirrors one track of the DAW project snapshot sent by clients.
type TrackState struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Volume   float64 `json:"volume"`
	Pan      float64 `json:"pan"`
	Muted    bool    `json:"muted"`
	Soloed   bool    `json:"soloed"`
	Selected bool    `json:"selected"`
	Armed    bool    `json:"armed"`
}

// ProjectState is the DAW project snapshot used to ground DSL evaluation.
// Collections beyond tracks (markers, regions) ride in Extra untyped.
type ProjectState struct {
	Tracks []TrackState                `json:"tracks"`
	Extra  map[string][]map[string]any `json:"extra,omitempty"`
}

// ToStateMap converts the typed snapshot into the loose map shape the DSL
// evaluation context consumes.
func (p *ProjectState) ToStateMap() map[string]any {
	tracks := make([]any, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		tracks = append(tracks, map[string]any{
			"index":    t.Index,
			"name":     t.Name,
			"volume":   t.Volume,
			"pan":      t.Pan,
			"muted":    t.Muted,
			"soloed":   t.Soloed,
			"selected": t.Selected,
			"armed":    t.Armed,
		})
	}
	state := map[string]any{"tracks": tracks}
	for name, items := range p.Extra {
		converted := make([]any, 0, len(items))
		for _, item := range items {
			converted = append(converted, item)
		}
		state[name] = converted
	}
	return state
}
