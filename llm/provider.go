package llm

import "context"

// OutputSchema defines the expected JSON output structure for providers
// running in structured-output mode.
type OutputSchema struct {
	Name        string
	Description string
	Schema      map[string]any
}

// CFGConfig configures context-free-grammar constrained generation. The
// grammar is handed to the provider as a tool definition so the model emits
// DSL code instead of free text.
type CFGConfig struct {
	ToolName    string
	Description string
	Grammar     string // Lark or regex grammar definition
	Syntax      string // "lark" or "regex"
}

// MCPConfig points a provider at an MCP tool server.
type MCPConfig struct {
	Label string
	URL   string
}

// GenerationRequest carries the provider-independent request parameters.
type GenerationRequest struct {
	Model         string
	InputArray    []map[string]any
	ReasoningMode string
	SystemPrompt  string
	OutputSchema  *OutputSchema
	CFGGrammar    *CFGConfig
	MCPConfig     *MCPConfig
}

// GenerationResponse is the provider-independent result. RawOutput holds the
// model's text or DSL output; parsing it is the agent's job.
type GenerationResponse struct {
	RawOutput string
	Usage     any
	MCPUsed   bool
	MCPCalls  int
	MCPTools  []string
}

// StreamEvent is one event from a streaming generation.
type StreamEvent struct {
	Type    string
	Message string
	Data    map[string]any
}

// StreamCallback receives stream events as they arrive. Returning an error
// aborts the stream.
type StreamCallback func(event StreamEvent) error

// Provider is the single polymorphic boundary to an LLM backend. Every
// provider must support CFG grammar constraints or JSON Schema structured
// output; the DSL pipeline depends only on this interface, never on a
// concrete provider.
type Provider interface {
	Generate(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error)
	GenerateStream(ctx context.Context, request *GenerationRequest, callback StreamCallback) (*GenerationResponse, error)
	Name() string
}
