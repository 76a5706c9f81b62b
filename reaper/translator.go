// Package reaper maps resolved DSL actions onto the REAPER control
// surface's call signatures. It is the outbound boundary of the pipeline:
// it receives actions in source order and emits API call maps in that same
// order. Rollback on partial downstream failure is the integration's
// concern, not this package's.
package reaper

import (
	"fmt"
	"log"

	"github.com/cadenza-ai/cadenza-agents-go/dsl"
)

// ActionCall is one REAPER API invocation: an "action" key naming the
// operation plus its parameters, the shape the DAW bridge consumes.
type ActionCall = map[string]any

// verbTable maps DSL action names to REAPER action names and declares the
// parameter each verb's primary value binds to. Verbs outside the table
// pass through verbatim so new DSL vocabulary does not require a translator
// release.
var verbTable = map[string]struct {
	action     string
	boolParam  string
	boolValue  bool
	hasDefault bool
}{
	"mute":           {action: "set_track_mute", boolParam: "mute", boolValue: true, hasDefault: true},
	"unmute":         {action: "set_track_mute", boolParam: "mute", boolValue: false, hasDefault: true},
	"solo":           {action: "set_track_solo", boolParam: "solo", boolValue: true, hasDefault: true},
	"unsolo":         {action: "set_track_solo", boolParam: "solo", boolValue: false, hasDefault: true},
	"select":         {action: "set_track_selected", boolParam: "selected", boolValue: true, hasDefault: true},
	"deselect":       {action: "set_track_selected", boolParam: "selected", boolValue: false, hasDefault: true},
	"delete":         {action: "delete_track"},
	"set_volume":     {action: "set_track_volume"},
	"set_pan":        {action: "set_track_pan"},
	"set_name":       {action: "set_track_name"},
	"rename":         {action: "set_track_name"},
	"add_fx":         {action: "add_track_fx"},
	"add_instrument": {action: "add_instrument"},
	"create_clip":    {action: "create_clip_at_bar"},
}

// integerParams are normalized from the parser's float64 literals to int,
// matching what the REAPER bridge expects for indices and bar counts.
var integerParams = map[string]bool{
	"track":       true,
	"index":       true,
	"bar":         true,
	"length_bars": true,
}

// Translator converts dsl.Action sequences into REAPER API calls.
type Translator struct{}

// NewTranslator creates a translator.
func NewTranslator() *Translator {
	return &Translator{}
}

// Translate maps each action onto a REAPER call, preserving order. The input
// is already fully resolved; translation never drops or reorders actions.
func (t *Translator) Translate(actions []dsl.Action) ([]ActionCall, error) {
	if len(actions) == 0 {
		return nil, fmt.Errorf("no actions to translate")
	}
	calls := make([]ActionCall, 0, len(actions))
	for _, action := range actions {
		calls = append(calls, t.translateOne(action))
	}
	log.Printf("✅ Translated %d actions to REAPER API calls", len(calls))
	return calls, nil
}

func (t *Translator) translateOne(action dsl.Action) ActionCall {
	call := ActionCall{}
	verb, known := verbTable[action.Name]
	if known {
		call["action"] = verb.action
		if verb.hasDefault {
			call[verb.boolParam] = verb.boolValue
		}
	} else {
		call["action"] = action.Name
	}
	for name, value := range action.Params {
		call[name] = normalizeParam(name, value)
	}
	return call
}

func normalizeParam(name string, value any) any {
	if !integerParams[name] {
		return value
	}
	switch n := value.(type) {
	case float64:
		return int(n)
	case int64:
		return int(n)
	default:
		return value
	}
}
