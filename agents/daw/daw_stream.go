package daw

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cadenza-ai/cadenza-agents-go/llm"
	"github.com/cadenza-ai/cadenza-agents-go/models"
	"github.com/getsentry/sentry-go"
)

// StreamActionCallback is called for each action found in the stream
type StreamActionCallback func(action map[string]interface{}) error

// GenerateActionsStream generates actions using streaming. DSL statements
// are evaluated incrementally as complete lines arrive, and a final
// authoritative parse runs at stream completion; the final parse wins.
func (a *DawAgent) GenerateActionsStream(
	ctx context.Context,
	question string,
	state map[string]interface{},
	callback StreamActionCallback,
) (*DawResult, error) {
	startTime := time.Now()
	log.Printf("🤖 CADENZA STREAMING REQUEST STARTED: question=%s", question)

	transaction := sentry.StartTransaction(ctx, "cadenza.generate_actions_stream")
	defer transaction.Finish()

	transaction.SetTag("model", a.model)
	transaction.SetTag("streaming", "true")
	transaction.SetContext("cadenza", map[string]interface{}{
		"question_length": len(question),
		"has_state":       state != nil,
	})

	request := a.buildRequest(question, state)

	var accumulatedText string
	var allActions []map[string]interface{}
	var usage any

	streamCallback := func(event llm.StreamEvent) error {
		return a.handleStreamEvent(ctx, event, &accumulatedText, &allActions, &usage, callback, state)
	}

	log.Printf("🚀 CADENZA STREAMING PROVIDER REQUEST: %s", a.provider.Name())
	resp, err := a.provider.GenerateStream(ctx, request, streamCallback)

	// Actions already delivered make provider errors non-fatal.
	if err != nil {
		if len(allActions) > 0 {
			log.Printf("⚠️  CADENZA: Provider reported error but %d actions were already received: %v", len(allActions), err)
		} else {
			transaction.SetTag("success", "false")
			transaction.SetTag("error_type", "provider_error")
			sentry.CaptureException(err)
			return nil, fmt.Errorf("provider stream failed: %w", err)
		}
	}

	if accumulatedText != "" && len(allActions) == 0 {
		actions, parseErr := a.parseActionsIncremental(ctx, accumulatedText, state, false)
		if parseErr == nil {
			allActions = actions
			for _, action := range actions {
				_ = callback(action)
			}
		}
	}

	if len(allActions) == 0 {
		transaction.SetTag("success", "false")
		transaction.SetTag("error_type", "no_actions")
		return nil, fmt.Errorf("no actions found in stream")
	}

	result := &DawResult{
		Actions: allActions,
		Usage:   usage,
	}
	if resp != nil && resp.Usage != nil {
		result.Usage = resp.Usage
	}

	transaction.SetTag("success", "true")
	transaction.SetTag("actions_count", fmt.Sprintf("%d", len(allActions)))

	duration := time.Since(startTime)
	a.metrics.RecordGenerationDuration(ctx, duration, true)

	log.Printf("✅ CADENZA STREAMING REQUEST COMPLETE: actions=%d, duration=%v", len(allActions), duration)

	return result, nil
}

// parseActionsIncremental tries to parse actions from accumulated text.
// When partial is true, only complete lines are evaluated; the trailing
// unterminated statement is held back for the next attempt.
func (a *DawAgent) parseActionsIncremental(
	ctx context.Context, text string, state map[string]interface{}, partial bool,
) ([]map[string]interface{}, error) {
	code := IsolateDSLBlock(text)

	if a.useDSL && looksLikeDSL(code) {
		if partial {
			nl := strings.LastIndex(code, "\n")
			if nl == -1 {
				return nil, fmt.Errorf("no complete statement yet")
			}
			code = code[:nl]
		}
		if strings.TrimSpace(code) == "" {
			return nil, fmt.Errorf("no complete statement yet")
		}
		return a.evaluateDSL(ctx, code, state)
	}

	// JSON fallback: complete object or bare array.
	trimmed := strings.TrimSpace(text)
	var output models.ActionsOutput
	if err := json.Unmarshal([]byte(trimmed), &output); err == nil && len(output.Actions) > 0 {
		return output.Actions, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var actions []map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &actions); err == nil {
			return actions, nil
		}
	}
	return nil, fmt.Errorf("no actions found")
}

// handleStreamEvent processes a single stream event
func (a *DawAgent) handleStreamEvent(
	ctx context.Context,
	event llm.StreamEvent,
	accumulatedText *string,
	allActions *[]map[string]interface{},
	usage *any,
	callback StreamActionCallback,
	state map[string]interface{},
) error {
	switch event.Type {
	case "output_text.delta":
		return a.handleTextDelta(ctx, event, accumulatedText, allActions, callback, state)
	case "output_progress", "output_started", "heartbeat":
		return nil
	case streamEventCompleted:
		return a.handleStreamCompleted(ctx, event, accumulatedText, allActions, usage, callback, state)
	}
	return nil
}

// handleTextDelta processes text delta events
func (a *DawAgent) handleTextDelta(
	ctx context.Context,
	event llm.StreamEvent,
	accumulatedText *string,
	allActions *[]map[string]interface{},
	callback StreamActionCallback,
	state map[string]interface{},
) error {
	text, ok := event.Data["text"].(string)
	if !ok || text == "" {
		return nil
	}

	*accumulatedText += text

	// Only re-evaluate when a statement boundary arrived.
	if !strings.Contains(text, "\n") {
		return nil
	}

	actions, err := a.parseActionsIncremental(ctx, *accumulatedText, state, true)
	if err != nil {
		// Incomplete programs are expected mid-stream.
		return nil
	}
	return a.emitNewActions(actions, allActions, callback)
}

// handleStreamCompleted runs the authoritative final parse.
func (a *DawAgent) handleStreamCompleted(
	ctx context.Context,
	event llm.StreamEvent,
	accumulatedText *string,
	allActions *[]map[string]interface{},
	usage *any,
	callback StreamActionCallback,
	state map[string]interface{},
) error {
	log.Printf("📦 CADENZA: Stream completed, final parse of %d chars", len(*accumulatedText))
	if *accumulatedText != "" {
		actions, err := a.parseActionsIncremental(ctx, *accumulatedText, state, false)
		if err != nil {
			log.Printf("❌ CADENZA: Final parse failed: %v", err)
			log.Printf("❌ CADENZA: Accumulated text (first %d chars): %s", maxErrorPreviewChars, truncate(*accumulatedText, maxErrorPreviewChars))
		} else {
			if emitErr := a.emitNewActions(actions, allActions, callback); emitErr != nil {
				return emitErr
			}
		}
	}
	if usageData, ok := event.Data["usage"]; ok {
		*usage = usageData
	}
	return nil
}

// emitNewActions forwards actions beyond the count already delivered.
func (a *DawAgent) emitNewActions(
	actions []map[string]interface{},
	allActions *[]map[string]interface{},
	callback StreamActionCallback,
) error {
	for i := len(*allActions); i < len(actions); i++ {
		log.Printf("✅ CADENZA: Parsed action %d: %v", i+1, actions[i]["action"])
		if err := callback(actions[i]); err != nil {
			return err
		}
		*allActions = append(*allActions, actions[i])
	}
	return nil
}
