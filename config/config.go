package config

import "os"

// Config contains configuration for CADENZA agents
type Config struct {
	OpenAIAPIKey string // OpenAI API key for LLM provider
	GeminiAPIKey string // Google Gemini API key (optional)
	MCPServerURL string // MCP server URL (optional)
	SentryDSN    string // Sentry DSN for error reporting (optional)
}

// FromEnv builds a Config from environment variables. Missing keys stay
// empty; providers validate their own keys at construction time.
func FromEnv() *Config {
	return &Config{
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		MCPServerURL: os.Getenv("CADENZA_MCP_SERVER_URL"),
		SentryDSN:    os.Getenv("SENTRY_DSN"),
	}
}
