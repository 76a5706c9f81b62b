package daw

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cadenza-ai/cadenza-agents-go/config"
	"github.com/cadenza-ai/cadenza-agents-go/dsl"
	"github.com/cadenza-ai/cadenza-agents-go/llm"
	"github.com/cadenza-ai/cadenza-agents-go/metrics"
	"github.com/cadenza-ai/cadenza-agents-go/models"
	"github.com/cadenza-ai/cadenza-agents-go/prompt"
	"github.com/cadenza-ai/cadenza-agents-go/reaper"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/openai/openai-go/responses"
)

const (
	defaultModel         = "gpt-5.1"
	streamEventCompleted = "completed"
	maxErrorPreviewChars = 500
	maxDSLPreviewChars   = 300

	dslToolName        = "cadenza_dsl"
	dslToolDescription = "Executes REAPER operations using the CADENZA pipeline DSL. " +
		"Generate pipeline code like: tracks.filter(name contains \"Drum\").for_each(mute()). " +
		"Each statement starts from a collection in the current state (usually 'tracks'), " +
		"narrows it with filter(predicate), and applies exactly one verb per matching item with for_each(verb(params)). " +
		"Use 0-based 'index' in predicates; 'track 1' in user language is index 0. " +
		"ALWAYS check the current REAPER state to see which tracks exist and match on their actual names. " +
		"One statement per line; statements run in order. " +
		"YOU MUST REASON HEAVILY ABOUT THE OPERATIONS AND MAKE SURE THE CODE OBEYS THE GRAMMAR."
)

// DawAgent translates natural language into ordered REAPER actions. The
// model emits pipeline DSL over the project state; the DSL evaluator and the
// action translator turn that into executable action maps.
type DawAgent struct {
	provider      llm.Provider
	systemPrompt  string
	promptBuilder *prompt.DawPromptBuilder
	translator    *reaper.Translator
	metrics       *metrics.SentryMetrics
	model         string
	useDSL        bool // CFG/DSL mode vs JSON Schema fallback
}

func NewDawAgent(cfg *config.Config) *DawAgent {
	promptBuilder := prompt.NewDawPromptBuilder()
	systemPrompt, err := promptBuilder.BuildPrompt()
	if err != nil {
		log.Fatal("Failed to build DAW system prompt:", err)
	}

	factory := llm.NewProviderFactory(cfg.OpenAIAPIKey, cfg.GeminiAPIKey)
	provider, err := factory.GetProvider(context.Background(), defaultModel, "")
	if err != nil {
		log.Fatal("Failed to create LLM provider:", err)
	}

	agent := &DawAgent{
		provider:      provider,
		systemPrompt:  systemPrompt,
		promptBuilder: promptBuilder,
		translator:    reaper.NewTranslator(),
		metrics:       metrics.NewSentryMetrics(),
		model:         defaultModel,
		useDSL:        true,
	}

	log.Printf("🤖 DAW AGENT INITIALIZED:")
	log.Printf("   Provider: %s", provider.Name())
	log.Printf("   System prompt loaded: %d chars", len(systemPrompt))
	log.Printf("   Mode: %s", map[bool]string{true: "DSL (CFG)", false: "JSON Schema"}[agent.useDSL])

	return agent
}

// DawResult is the final product of one generation: ordered REAPER action
// maps plus token usage.
type DawResult struct {
	Actions []map[string]interface{} `json:"actions"`
	Usage   any                      `json:"usage"`
}

func (a *DawAgent) GenerateActions(
	ctx context.Context, question string, state map[string]interface{},
) (*DawResult, error) {
	startTime := time.Now()
	requestID := uuid.New().String()
	log.Printf("🤖 CADENZA REQUEST STARTED: id=%s question=%s", requestID, question)

	transaction := sentry.StartTransaction(ctx, "cadenza.generate_actions")
	defer transaction.Finish()

	transaction.SetTag("model", a.model)
	transaction.SetTag("request_id", requestID)
	transaction.SetContext("cadenza", map[string]interface{}{
		"question_length": len(question),
		"has_state":       state != nil,
	})

	request := a.buildRequest(question, state)

	log.Printf("🚀 CADENZA PROVIDER REQUEST: %s", a.provider.Name())

	resp, err := a.provider.Generate(ctx, request)
	if err != nil {
		transaction.SetTag("success", "false")
		transaction.SetTag("error_type", "provider_error")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("provider request failed: %w", err)
	}

	actions, err := a.parseActionsFromResponse(ctx, resp.RawOutput, state)
	if err != nil {
		transaction.SetTag("success", "false")
		transaction.SetTag("error_type", "parse_error")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("failed to parse actions: %w", err)
	}

	result := &DawResult{
		Actions: actions,
		Usage:   resp.Usage,
	}

	transaction.SetTag("success", "true")
	transaction.SetTag("actions_count", fmt.Sprintf("%d", len(actions)))

	duration := time.Since(startTime)
	a.metrics.RecordGenerationDuration(ctx, duration, true)

	if resp.MCPUsed {
		a.metrics.RecordMCPUsage(resp.MCPUsed, resp.MCPCalls)
	}

	if usage, ok := result.Usage.(responses.ResponseUsage); ok {
		a.metrics.RecordTokenUsage(ctx, a.model,
			int(usage.TotalTokens),
			int(usage.InputTokens),
			int(usage.OutputTokens),
			int(usage.OutputTokensDetails.ReasoningTokens))
	}

	log.Printf("✅ CADENZA REQUEST COMPLETE: actions=%d, duration=%v", len(actions), duration)

	return result, nil
}

// buildRequest assembles the provider request, choosing CFG/DSL or JSON
// Schema mode.
func (a *DawAgent) buildRequest(question string, state map[string]interface{}) *llm.GenerationRequest {
	request := &llm.GenerationRequest{
		Model:         a.model,
		InputArray:    a.buildInputMessages(question, state),
		ReasoningMode: "none",
		SystemPrompt:  a.systemPrompt,
	}

	if a.useDSL {
		request.CFGGrammar = &llm.CFGConfig{
			ToolName:    dslToolName,
			Description: dslToolDescription,
			Grammar:     llm.GetCadenzaDSLGrammar(),
			Syntax:      "lark",
		}
		log.Printf("🔧 Using DSL mode (CFG grammar)")
	} else {
		request.OutputSchema = llm.GetActionsSchema()
		log.Printf("🔧 Using JSON Schema mode (fallback)")
	}

	return request
}

// buildInputMessages constructs the input array for the LLM
func (a *DawAgent) buildInputMessages(question string, state map[string]interface{}) []map[string]interface{} {
	messages := []map[string]interface{}{
		{
			"role":    "user",
			"content": question,
		},
	}

	if len(state) > 0 {
		stateJSON, err := json.Marshal(state)
		if err != nil {
			stateJSON = []byte(fmt.Sprintf("%+v", state))
		}
		messages = append(messages, map[string]interface{}{
			"role":    "user",
			"content": fmt.Sprintf("Current REAPER state: %s", stateJSON),
		})
	}

	return messages
}

// parseActionsFromResponse turns raw model output into REAPER action maps.
// DSL output goes through isolation, evaluation, and translation; anything
// else falls back to the JSON actions shape.
func (a *DawAgent) parseActionsFromResponse(
	ctx context.Context, rawOutput string, state map[string]interface{},
) ([]map[string]interface{}, error) {
	if rawOutput == "" {
		return nil, fmt.Errorf("no raw output available in response")
	}

	code := IsolateDSLBlock(rawOutput)
	if a.useDSL && looksLikeDSL(code) {
		log.Printf("✅ Found DSL code in response: %s", truncate(code, maxDSLPreviewChars))
		return a.evaluateDSL(ctx, code, state)
	}

	if a.useDSL {
		log.Printf("⚠️  DSL mode enabled but output doesn't look like DSL, trying JSON parse")
	}
	return a.parseActionsJSON(rawOutput)
}

// evaluateDSL runs the pipeline program against the current state and
// translates the resulting verbs into REAPER action maps.
func (a *DawAgent) evaluateDSL(
	ctx context.Context, code string, state map[string]interface{},
) ([]map[string]interface{}, error) {
	evalCtx := dsl.BuildContext(state)

	dslActions, err := dsl.Execute(code, evalCtx)
	if err != nil {
		a.metrics.RecordDSLEvaluation(ctx, 0, 0, false)
		return nil, fmt.Errorf("failed to evaluate DSL: %w", err)
	}
	a.metrics.RecordDSLEvaluation(ctx, countStatements(code), len(dslActions), true)

	if len(dslActions) == 0 {
		return nil, fmt.Errorf("DSL program produced no actions")
	}

	calls, err := a.translator.Translate(dslActions)
	if err != nil {
		return nil, fmt.Errorf("failed to translate DSL actions: %w", err)
	}

	result := make([]map[string]interface{}, 0, len(calls))
	for _, call := range calls {
		result = append(result, call)
	}
	log.Printf("✅ Translated DSL to %d REAPER API actions", len(result))
	return result, nil
}

// parseActionsJSON handles the JSON Schema fallback shape.
func (a *DawAgent) parseActionsJSON(rawOutput string) ([]map[string]interface{}, error) {
	var output models.ActionsOutput
	if err := json.Unmarshal([]byte(rawOutput), &output); err != nil {
		log.Printf("❌ Failed to parse output as JSON: %v", err)
		log.Printf("Raw output (first %d chars): %s", maxErrorPreviewChars, truncate(rawOutput, maxErrorPreviewChars))
		return nil, fmt.Errorf("failed to parse actions output: %w", err)
	}

	if len(output.Actions) == 0 {
		return nil, fmt.Errorf("no actions found in output")
	}

	log.Printf("✅ Parsed %d actions from JSON output", len(output.Actions))
	return output.Actions, nil
}

// truncate truncates a string to a maximum length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
