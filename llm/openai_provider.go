package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Conceptual-Machines/grammar-school-go/gs"
	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const (
	userRole      = "user"
	developerRole = "developer"

	// Reasoning effort levels
	reasoningNone    = "none"
	reasoningMinimal = "minimal"
	reasoningLow     = "low"
	reasoningMedium  = "medium"
	reasoningHigh    = "high"
	reasoningMin     = "min"
	reasoningMed     = "med"

	// Heartbeats keep the downstream connection alive during long generations
	heartbeatIntervalSeconds = 10

	providerNameOpenAI = "openai"

	maxArgsLogLength     = 100
	maxPreviewChars      = 200
	maxErrorPreviewChars = 500
	mcpCallType          = "mcp_call"
)

// OpenAIProvider implements the Provider interface using OpenAI's Responses
// API. CFG-constrained requests go over a raw HTTP request because the SDK
// does not yet model custom grammar tools.
type OpenAIProvider struct {
	client *openai.Client
	apiKey string // kept for raw HTTP requests when CFG tools are needed
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client: &client,
		apiKey: apiKey,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return providerNameOpenAI
}

// Generate implements non-streaming generation.
func (p *OpenAIProvider) Generate(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error) {
	startTime := time.Now()
	log.Printf("🎵 OPENAI GENERATION REQUEST STARTED (Model: %s)", request.Model)

	transaction := sentry.StartTransaction(ctx, "openai.generate")
	defer transaction.Finish()

	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameOpenAI)
	transaction.SetTag("mcp_enabled", fmt.Sprintf("%t", request.MCPConfig != nil))

	params := p.buildRequestParams(request)

	span := transaction.StartChild("openai.api_call")
	apiStartTime := time.Now()

	var resp *responses.Response
	var err error
	if request.CFGGrammar != nil || request.OutputSchema != nil {
		resp, err = p.rawRequest(ctx, params, request)
	} else {
		resp, err = p.client.Responses.New(ctx, params)
	}

	apiDuration := time.Since(apiStartTime)
	span.Finish()

	if err != nil {
		log.Printf("❌ OPENAI REQUEST FAILED after %v: %v", apiDuration, err)
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	log.Printf("⏱️  OPENAI API CALL COMPLETED in %v", apiDuration)

	result, err := p.processResponse(resp, startTime, transaction, request.CFGGrammar)
	if err != nil {
		transaction.SetTag("success", "false")
		return nil, err
	}

	transaction.SetTag("success", "true")
	return result, nil
}

// rawRequest marshals the SDK params to JSON, splices in the CFG tool or
// schema verbosity settings the SDK cannot express, and posts directly.
func (p *OpenAIProvider) rawRequest(
	ctx context.Context, params responses.ResponseNewParams, request *GenerationRequest,
) (*responses.Response, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request params: %w", err)
	}
	var paramsMap map[string]any
	if err := json.Unmarshal(paramsJSON, &paramsMap); err != nil {
		return nil, fmt.Errorf("failed to rebuild request params: %w", err)
	}

	if request.OutputSchema != nil {
		if text, ok := paramsMap["text"].(map[string]any); ok {
			text["verbosity"] = "low"
		}
	}

	if request.CFGGrammar != nil {
		cleanedGrammar := gs.CleanGrammarForCFG(request.CFGGrammar.Grammar)
		cfgTool := gs.BuildOpenAICFGTool(gs.CFGConfig{
			ToolName:    request.CFGGrammar.ToolName,
			Description: request.CFGGrammar.Description,
			Grammar:     cleanedGrammar,
			Syntax:      request.CFGGrammar.Syntax,
		})
		log.Printf("🔧 CFG GRAMMAR CONFIGURED: %s (syntax: %s)", request.CFGGrammar.ToolName, request.CFGGrammar.Syntax)

		// Plain text format when using CFG; the tool owns the output shape.
		paramsMap["text"] = gs.GetOpenAITextFormatForCFG()

		tools, _ := paramsMap["tools"].([]any)
		tools = append(tools, cfgTool)
		paramsMap["tools"] = tools
		paramsMap["parallel_tool_calls"] = false
	}

	modifiedJSON, err := json.Marshal(paramsMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal modified params: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/responses", bytes.NewReader(modifiedJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			log.Printf("⚠️  Failed to close response body: %v", closeErr)
		}
	}()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, truncate(string(body), maxErrorPreviewChars))
	}
	resp := &responses.Response{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, nil
}

// GenerateStream implements streaming generation.
func (p *OpenAIProvider) GenerateStream(
	ctx context.Context, request *GenerationRequest, callback StreamCallback,
) (*GenerationResponse, error) {
	startTime := time.Now()
	log.Printf("🎵 OPENAI STREAMING GENERATION REQUEST STARTED (Model: %s)", request.Model)

	transaction := sentry.StartTransaction(ctx, "openai.generate_stream")
	defer transaction.Finish()

	transaction.SetTag("model", request.Model)
	transaction.SetTag("provider", providerNameOpenAI)
	transaction.SetTag("streaming", "true")

	// CFG tools in streaming are not yet supported by the SDK; the model may
	// still emit DSL as plain text, parsed incrementally by the agent.
	params := p.buildRequestParams(request)

	stream := p.client.Responses.NewStreaming(ctx, params)

	result, err := p.processStream(stream, callback, transaction, startTime)
	if err != nil {
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		return nil, err
	}

	transaction.SetTag("success", "true")
	log.Printf("✅ STREAMING GENERATION COMPLETED in %v", time.Since(startTime))
	return result, nil
}

// buildRequestParams converts a GenerationRequest to Responses API params.
func (p *OpenAIProvider) buildRequestParams(request *GenerationRequest) responses.ResponseNewParams {
	inputItems := responses.ResponseInputParam{}

	for _, item := range request.InputArray {
		role, hasRole := item["role"].(string)
		content, hasContent := item["content"].(string)
		if !hasRole || !hasContent {
			log.Printf("⚠️  Skipping invalid input item (missing role or content): %v", item)
			continue
		}

		var roleEnum responses.EasyInputMessageRole
		switch role {
		case developerRole:
			roleEnum = responses.EasyInputMessageRoleDeveloper
		case userRole:
			roleEnum = responses.EasyInputMessageRoleUser
		default:
			roleEnum = responses.EasyInputMessageRoleUser
		}

		inputItems = append(inputItems,
			responses.ResponseInputItemParamOfMessage(content, roleEnum),
		)
	}

	var reasoningEffort shared.ReasoningEffort
	switch request.ReasoningMode {
	case reasoningNone:
		reasoningEffort = shared.ReasoningEffort("none")
	case reasoningMinimal, reasoningMin, reasoningLow:
		reasoningEffort = responses.ReasoningEffortLow
	case reasoningMedium, reasoningMed:
		reasoningEffort = responses.ReasoningEffortMedium
	case reasoningHigh:
		reasoningEffort = responses.ReasoningEffortHigh
	default:
		reasoningEffort = responses.ReasoningEffortLow
	}

	params := responses.ResponseNewParams{
		Model: request.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: inputItems,
		},
		Instructions:      openai.String(request.SystemPrompt),
		ParallelToolCalls: openai.Bool(true),
		Reasoning: shared.ReasoningParam{
			Effort: reasoningEffort,
		},
	}

	if request.OutputSchema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigParamOfJSONSchema(
				request.OutputSchema.Name,
				request.OutputSchema.Schema,
			),
		}
	}

	if request.MCPConfig != nil && request.MCPConfig.URL != "" {
		params.Tools = []responses.ToolUnionParam{
			{
				OfMcp: &responses.ToolMcpParam{
					ServerLabel: request.MCPConfig.Label,
					ServerURL:   request.MCPConfig.URL,
					RequireApproval: responses.ToolMcpRequireApprovalUnionParam{
						OfMcpToolApprovalFilter: &responses.ToolMcpRequireApprovalMcpToolApprovalFilterParam{
							Never: responses.ToolMcpRequireApprovalMcpToolApprovalFilterNeverParam{
								ToolNames: []string{},
							},
						},
					},
				},
			},
		}
		log.Printf("🔗 MCP SERVER ENABLED: %s (label: %s)", request.MCPConfig.URL, request.MCPConfig.Label)
	}

	return params
}

// extractDSLFromCFGToolCall searches the response output items for the CFG
// tool call carrying DSL code. The Responses API has placed it under a few
// different keys across versions, so several locations are checked.
func (p *OpenAIProvider) extractDSLFromCFGToolCall(resp *responses.Response) string {
	for _, outputItem := range resp.Output {
		outputItemJSON, err := json.Marshal(outputItem)
		if err != nil {
			continue
		}
		var itemMap map[string]any
		if json.Unmarshal(outputItemJSON, &itemMap) != nil {
			continue
		}
		if dslCode := p.findDSLInOutputItem(itemMap); dslCode != "" {
			return dslCode
		}
	}
	log.Printf("⚠️  No CFG tool call found in response output items")
	return ""
}

func (p *OpenAIProvider) findDSLInOutputItem(itemMap map[string]any) string {
	if code, ok := itemMap["code"].(string); ok && code != "" {
		log.Printf("🔧 Found CFG tool call code (DSL): %s", truncate(code, maxPreviewChars))
		return code
	}

	for _, field := range []string{"input", "action", "arguments", "result", "output", "content"} {
		if val, ok := itemMap[field].(string); ok && val != "" && p.isDSLCode(val) {
			log.Printf("🔧 Found DSL in field %q: %s", field, truncate(val, maxPreviewChars))
			return val
		}
	}

	if toolCalls, ok := itemMap["tool_calls"].([]any); ok {
		for _, toolCall := range toolCalls {
			toolCallMap, ok := toolCall.(map[string]any)
			if !ok {
				continue
			}
			if input, ok := toolCallMap["input"].(string); ok && input != "" {
				return input
			}
			if function, ok := toolCallMap["function"].(map[string]any); ok {
				if arguments, ok := function["arguments"].(string); ok && arguments != "" {
					return arguments
				}
			}
		}
	}

	return ""
}

// extractAndCleanTextOutput strips markdown code fences from text output.
func (p *OpenAIProvider) extractAndCleanTextOutput(resp *responses.Response) string {
	textOutput := resp.OutputText()
	if textOutput == "" {
		return ""
	}

	cleaned := strings.TrimPrefix(textOutput, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned != textOutput {
		log.Printf("🧹 Stripped markdown code blocks from output: %d -> %d chars", len(textOutput), len(cleaned))
	}
	return cleaned
}

// isDSLCode checks if a string looks like pipeline DSL code.
func (p *OpenAIProvider) isDSLCode(text string) bool {
	return strings.Contains(text, ".filter(") ||
		strings.Contains(text, ".map(") ||
		strings.Contains(text, ".for_each(")
}

// processResponse converts an OpenAI Response to a GenerationResponse. With
// a CFG grammar configured the DSL MUST come from the tool call; plain text
// in that mode is an error, not a fallback.
func (p *OpenAIProvider) processResponse(
	resp *responses.Response,
	startTime time.Time,
	transaction *sentry.Span,
	cfgConfig *CFGConfig,
) (*GenerationResponse, error) {
	span := transaction.StartChild("process_response")
	defer span.Finish()

	if cfgConfig != nil {
		if dslCode := p.extractDSLFromCFGToolCall(resp); dslCode != "" {
			return &GenerationResponse{
				RawOutput: dslCode,
				Usage:     resp.Usage,
			}, nil
		}
	}

	textOutput := p.extractAndCleanTextOutput(resp)
	log.Printf("📥 OPENAI RESPONSE: output_length=%d, output_items=%d, tokens=%d",
		len(textOutput), len(resp.Output), resp.Usage.TotalTokens)

	if cfgConfig != nil {
		log.Printf("❌ CFG was configured but the model did not use the CFG tool")
		return nil, fmt.Errorf("CFG grammar was configured but the model did not use the CFG tool to generate DSL code")
	}

	if textOutput == "" {
		return nil, fmt.Errorf("openai response did not include any output text")
	}

	mcpUsed, mcpCalls, mcpTools := p.analyzeMCPUsage(resp)
	p.logUsageStats(resp.Usage)

	log.Printf("✅ GENERATION COMPLETED in %v (raw output stored)", time.Since(startTime))
	return &GenerationResponse{
		RawOutput: textOutput,
		Usage:     resp.Usage,
		MCPUsed:   mcpUsed,
		MCPCalls:  mcpCalls,
		MCPTools:  mcpTools,
	}, nil
}

// analyzeMCPUsage checks if MCP tools were used and returns usage details.
func (p *OpenAIProvider) analyzeMCPUsage(resp *responses.Response) (bool, int, []string) {
	mcpUsed := false
	mcpCallCount := 0
	toolsUsed := make(map[string]bool)

	for _, outputItem := range resp.Output {
		if outputItem.Type != mcpCallType {
			continue
		}
		mcpCall := outputItem.AsMcpCall()
		mcpUsed = true
		mcpCallCount++
		toolsUsed[mcpCall.Name] = true

		if mcpCall.Arguments != "" {
			log.Printf("   🛠️  MCP tool call: %s (%s)", mcpCall.Name, truncate(mcpCall.Arguments, maxArgsLogLength))
		}

		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Category: "mcp",
			Message:  fmt.Sprintf("MCP tool called: %s", mcpCall.Name),
			Level:    sentry.LevelInfo,
			Data: map[string]interface{}{
				"tool_name":    mcpCall.Name,
				"server_label": mcpCall.ServerLabel,
				"has_error":    mcpCall.Error != "",
			},
		})
	}

	uniqueTools := make([]string, 0, len(toolsUsed))
	for tool := range toolsUsed {
		uniqueTools = append(uniqueTools, tool)
	}

	if mcpCallCount > 0 {
		log.Printf("📊 MCP TOOLS USED: %v", uniqueTools)
	}
	return mcpUsed, mcpCallCount, uniqueTools
}

func (p *OpenAIProvider) logUsageStats(usage responses.ResponseUsage) {
	log.Printf("📊 USAGE: input=%d, output=%d, reasoning=%d, total=%d",
		usage.InputTokens, usage.OutputTokens,
		usage.OutputTokensDetails.ReasoningTokens, usage.TotalTokens)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// processStream drains the SSE stream, forwarding deltas to the callback and
// accumulating the raw output. A background ticker sends heartbeats even
// while stream.Next() blocks during long operations.
func (p *OpenAIProvider) processStream(
	stream *ssestream.Stream[responses.ResponseStreamEventUnion],
	callback StreamCallback,
	transaction *sentry.Span,
	startTime time.Time,
) (*GenerationResponse, error) {
	var accumulatedText string
	var usage any
	var mcpUsed bool
	var mcpCallCount int
	var mcpTools []string

	eventCount := 0

	heartbeatDone := make(chan bool)
	go func() {
		ticker := time.NewTicker(heartbeatIntervalSeconds * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				elapsed := time.Since(startTime)
				_ = callback(StreamEvent{
					Type:    "heartbeat",
					Message: "Processing...",
					Data: map[string]any{
						"events_received": eventCount,
						"elapsed_seconds": int(elapsed.Seconds()),
					},
				})
			case <-heartbeatDone:
				return
			}
		}
	}()
	defer close(heartbeatDone)

	for stream.Next() {
		event := stream.Current()
		eventCount++

		if err := p.handleStreamEvent(event, eventCount, startTime, callback,
			&accumulatedText, &usage, &mcpUsed, &mcpCallCount, &mcpTools); err != nil {
			return nil, err
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		log.Printf("❌ STREAMING ERROR: %v", streamErr)
		transaction.SetTag("error_type", "stream_error")
		_ = callback(StreamEvent{Type: "error", Message: fmt.Sprintf("Stream error: %v", streamErr)})
		return nil, fmt.Errorf("stream error: %w", streamErr)
	}

	if accumulatedText == "" {
		log.Printf("❌ STREAM COMPLETE with no output after %d events", eventCount)
		return nil, fmt.Errorf("no output received from stream")
	}

	return &GenerationResponse{
		RawOutput: accumulatedText,
		Usage:     usage,
		MCPUsed:   mcpUsed,
		MCPCalls:  mcpCallCount,
		MCPTools:  mcpTools,
	}, nil
}

func (p *OpenAIProvider) handleStreamEvent(
	event responses.ResponseStreamEventUnion,
	eventCount int,
	startTime time.Time,
	callback StreamCallback,
	accumulatedText *string,
	usage *any,
	mcpUsed *bool,
	mcpCallCount *int,
	mcpTools *[]string,
) error {
	wrappedData := map[string]any{
		"openai_event_type": event.Type,
		"event_count":       eventCount,
		"elapsed_ms":        time.Since(startTime).Milliseconds(),
	}

	switch event.Type {
	case "response.output_item.added":
		return callback(StreamEvent{Type: "output_started", Message: "Generating output...", Data: wrappedData})

	case "response.output_text.delta":
		deltaBytes, err := json.Marshal(event.Delta)
		if err != nil {
			return nil
		}
		var deltaMap map[string]string
		if json.Unmarshal(deltaBytes, &deltaMap) != nil {
			return nil
		}
		text, ok := deltaMap["OfString"]
		if !ok || text == "" {
			return nil
		}
		*accumulatedText += text
		return callback(StreamEvent{
			Type:    "output_text.delta",
			Message: "Text delta received",
			Data: map[string]any{
				"text": text,
			},
		})

	case "response.output_item.done":
		return callback(StreamEvent{Type: "output_progress", Message: "Output item completed", Data: wrappedData})

	case "response.completed":
		resp := event.Response
		*mcpUsed, *mcpCallCount, *mcpTools = p.analyzeMCPUsage(&resp)
		*usage = resp.Usage
		p.logUsageStats(resp.Usage)
		// Text may arrive entirely via output items rather than deltas.
		if *accumulatedText == "" {
			*accumulatedText = resp.OutputText()
		}
		return callback(StreamEvent{
			Type:    "completed",
			Message: "Generation complete",
			Data: map[string]any{
				"usage":    resp.Usage,
				"mcp_used": *mcpUsed,
			},
		})
	}

	return nil
}
