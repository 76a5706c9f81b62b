package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cadenza-ai/cadenza-agents-go/agents/daw"
	"github.com/cadenza-ai/cadenza-agents-go/config"
	"github.com/cadenza-ai/cadenza-agents-go/models"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: Could not load .env file: %v", err)
		log.Println("   Continuing with environment variables...")
	}

	cfg := config.FromEnv()
	if cfg.OpenAIAPIKey == "" {
		log.Fatal("❌ ERROR: OPENAI_API_KEY is not set in environment!")
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		}); err != nil {
			log.Printf("⚠️  Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	agent := daw.NewDawAgent(cfg)

	// Sample project state the agent reasons over
	project := &models.ProjectState{
		Tracks: []models.TrackState{
			{Index: 0, Name: "Drums 1", Volume: -2.5, Selected: true},
			{Index: 1, Name: "Drums 2", Volume: 1.0},
			{Index: 2, Name: "Bass", Muted: true},
			{Index: 3, Name: "Lead Synth", Volume: 3.2},
		},
	}
	state := project.ToStateMap()

	testQuestions := []string{
		"mute all the drum tracks",
		"set every track that's louder than 0 dB back to -3 dB",
		"select the muted tracks and unmute them",
		"delete the Lead Synth track",
	}

	ctx := context.Background()

	for i, question := range testQuestions {
		fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
		fmt.Printf("Test %d/%d: %s\n", i+1, len(testQuestions), question)
		fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

		startTime := time.Now()

		result, err := agent.GenerateActions(ctx, question, state)
		if err != nil {
			log.Printf("❌ Error: %v", err)
			continue
		}

		duration := time.Since(startTime)

		fmt.Printf("✅ Success! Duration: %v\n\n", duration)
		fmt.Printf("Actions (%d):\n", len(result.Actions))
		for j, action := range result.Actions {
			actionJSON, _ := json.MarshalIndent(action, "", "  ")
			fmt.Printf("  [%d] %s\n", j+1, string(actionJSON))
		}

		if result.Usage != nil {
			fmt.Printf("\nUsage:\n")
			usageJSON, _ := json.MarshalIndent(result.Usage, "", "  ")
			fmt.Printf("  %s\n", string(usageJSON))
		}

		if i < len(testQuestions)-1 {
			time.Sleep(1 * time.Second)
		}
	}

	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("✅ All tests completed!\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
}
