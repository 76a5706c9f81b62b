package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/cadenza-ai/cadenza-agents-go/agents/daw"
	"github.com/cadenza-ai/cadenza-agents-go/config"
	"github.com/cadenza-ai/cadenza-agents-go/llm"
)

// ErrOutOfScope is returned when no agent can handle the request. Callers
// check it with errors.Is to distinguish routing rejections from failures.
var ErrOutOfScope = errors.New("request is out of scope for DAW control")

// routingKeywordsJSON contains the DAW routing keywords as embedded JSON,
// including common translations so non-English requests route correctly.
const routingKeywordsJSON = `{
  "daw": [
    "track",
    "clip",
    "fx",
    "volume",
    "pan",
    "mute",
    "solo",
    "reaper",
    "daw",
    "create",
    "delete",
    "move",
    "select",
    "rename",
    "add",
    "remove",
    "enable",
    "disable",
    "instrument",
    "plugin",
    "effect",
    "compressor",
    "reverb",
    "eq",
    "mix",
    "master",
    "bus",
    "channel",
    "pista",
    "piste",
    "spur",
    "audio track",
    "silence",
    "silenciar",
    "couper",
    "stumm",
    "silenziare",
    "mudo",
    "ミュート",
    "myūto",
    "isolate",
    "ソロ",
    "soro",
    "digital audio workstation",
    "リーパー",
    "rīpā",
    "crear",
    "créer",
    "erstellen",
    "creare",
    "criar",
    "作成する",
    "eliminar",
    "supprimer",
    "löschen",
    "cancellare",
    "remover",
    "削除する",
    "seleccionar",
    "sélectionner",
    "auswählen",
    "selezionare",
    "selecionar",
    "選択する",
    "renombrar",
    "renommer",
    "umbenennen",
    "rinominare",
    "renomear",
    "volumen",
    "lautstärke",
    "ボリューム",
    "panning",
    "stereo balance",
    "panorama",
    "パン",
    "エフェクト",
    "コンプレッサー",
    "リバーブ",
    "イコライザー"
  ]
}`

// Orchestrator routes natural language requests to the DAW agent after
// checking that the request is in scope for DAW control at all.
type Orchestrator struct {
	dawAgent          *daw.DawAgent
	llmProvider       llm.Provider
	dawKeywords       []string
	keywordsLoaded    bool
	keywordsLoadMutex sync.Mutex
}

// OrchestratorResult is the routed result
type OrchestratorResult struct {
	Actions []map[string]any `json:"actions"`
	Usage   any              `json:"usage"`
}

// NewOrchestrator creates a new orchestrator instance
func NewOrchestrator(cfg *config.Config) *Orchestrator {
	o := &Orchestrator{
		dawAgent:    daw.NewDawAgent(cfg),
		llmProvider: llm.NewOpenAIProvider(cfg.OpenAIAPIKey),
	}
	o.loadKeywords()
	return o
}

// GenerateActions validates scope and routes the request to the DAW agent.
func (o *Orchestrator) GenerateActions(ctx context.Context, question string, state map[string]any) (*OrchestratorResult, error) {
	inScope, err := o.DetectScope(ctx, question)
	if err != nil {
		return nil, err
	}
	if !inScope {
		return nil, ErrOutOfScope
	}

	result, err := o.dawAgent.GenerateActions(ctx, question, state)
	if err != nil {
		return nil, fmt.Errorf("daw agent: %w", err)
	}

	return &OrchestratorResult{
		Actions: result.Actions,
		Usage:   result.Usage,
	}, nil
}

// GenerateActionsStream routes the request to the streaming DAW agent,
// emitting actions progressively via callback so the UI can execute them as
// they arrive.
func (o *Orchestrator) GenerateActionsStream(
	ctx context.Context,
	question string,
	state map[string]any,
	callback daw.StreamActionCallback,
) (*OrchestratorResult, error) {
	inScope, err := o.DetectScope(ctx, question)
	if err != nil {
		log.Printf("⚠️ Scope detection error, defaulting to in-scope: %v", err)
		inScope = true
	}
	if !inScope {
		return nil, ErrOutOfScope
	}

	result, err := o.dawAgent.GenerateActionsStream(ctx, question, state, callback)
	if err != nil {
		return nil, fmt.Errorf("daw agent stream: %w", err)
	}

	log.Printf("✅ [Stream] Complete: %d total actions emitted", len(result.Actions))
	return &OrchestratorResult{
		Actions: result.Actions,
		Usage:   result.Usage,
	}, nil
}

// DetectScope uses hybrid keywords + LLM to decide whether the request is a
// DAW request at all. Keyword hits short-circuit; otherwise a small model
// classifies the request.
func (o *Orchestrator) DetectScope(ctx context.Context, question string) (bool, error) {
	if o.detectScopeKeywords(question) {
		return true, nil
	}

	inScope, err := o.detectScopeLLM(ctx, question)
	if err != nil {
		return false, fmt.Errorf("LLM classification failed: %w", err)
	}
	return inScope, nil
}

// loadKeywords loads routing keywords from embedded JSON (with fallback to hardcoded)
func (o *Orchestrator) loadKeywords() {
	o.keywordsLoadMutex.Lock()
	defer o.keywordsLoadMutex.Unlock()

	if o.keywordsLoaded {
		return
	}

	var keywords struct {
		DAW []string `json:"daw"`
	}

	if err := json.Unmarshal([]byte(routingKeywordsJSON), &keywords); err != nil {
		log.Printf("⚠️ Failed to parse embedded routing keywords: %v, using hardcoded keywords", err)
		o.loadDefaultKeywords()
		o.keywordsLoaded = true
		return
	}

	o.dawKeywords = keywords.DAW
	o.keywordsLoaded = true
	log.Printf("✅ Loaded %d DAW routing keywords from embedded data", len(o.dawKeywords))
}

// loadDefaultKeywords sets fallback hardcoded keywords
func (o *Orchestrator) loadDefaultKeywords() {
	o.dawKeywords = []string{
		"track", "clip", "fx", "volume", "pan", "mute", "solo",
		"reaper", "daw", "instrument", "plugin", "effect",
		"compressor", "reverb", "eq", "mix", "master", "bus",
		"create", "delete", "move", "select", "rename",
		"add", "remove", "enable", "disable", "set",
	}
}

// detectScopeKeywords does keyword matching without defaulting to in-scope,
// so the LLM can validate requests that match nothing.
func (o *Orchestrator) detectScopeKeywords(question string) bool {
	if !o.keywordsLoaded {
		o.loadKeywords()
	}

	questionLower := strings.ToLower(question)

	// Single-character keywords cause false positives ("a" in "bake me a cake").
	return containsAny(questionLower, filterSingleCharKeywords(o.dawKeywords))
}

func filterSingleCharKeywords(keywords []string) []string {
	filtered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if len(strings.TrimSpace(kw)) > 1 {
			filtered = append(filtered, kw)
		}
	}
	return filtered
}

// detectScopeLLM classifies the request with a small, fast model. Returns
// false for out-of-scope requests; errors only for API or parse failures.
func (o *Orchestrator) detectScopeLLM(ctx context.Context, question string) (bool, error) {
	classifierPrompt := fmt.Sprintf(`Classify this request. Return JSON:
{
  "needsDAW": true/false  // REAPER operations: tracks, clips, FX, volume, pan, mute, solo, etc.
}

If the request is completely out of scope (e.g., "bake me a cake", "send an email", "what's the weather"), return false.

Request: "%s"`, question)

	request := &llm.GenerationRequest{
		Model:         "gpt-4.1-mini",
		InputArray:    []map[string]any{{"role": "user", "content": classifierPrompt}},
		ReasoningMode: "none",
		OutputSchema: &llm.OutputSchema{
			Name:        "ScopeClassification",
			Description: "Whether the DAW agent can handle the request",
			Schema: map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"needsDAW": map[string]any{
						"type": "boolean",
					},
				},
				"required": []string{"needsDAW"},
			},
		},
	}

	resp, err := o.llmProvider.Generate(ctx, request)
	if err != nil {
		return false, err
	}

	result := struct {
		NeedsDAW bool `json:"needsDAW"`
	}{}

	if resp.RawOutput != "" {
		if err := json.Unmarshal([]byte(resp.RawOutput), &result); err != nil {
			log.Printf("⚠️ Failed to parse LLM classification JSON: %v, raw: %s", err, resp.RawOutput)
			return false, fmt.Errorf("failed to parse LLM classification: %w", err)
		}
	}

	return result.NeedsDAW, nil
}

// containsAny checks if text contains any of the keywords (case-insensitive)
func containsAny(text string, keywords []string) bool {
	textLower := strings.ToLower(text)
	for _, keyword := range keywords {
		if strings.Contains(textLower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
