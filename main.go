package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/edukit/coursegen/internal/infra/genai"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	GEMINI_API_KEY := os.Getenv("GEMINI_API_KEY")
	ANTHROPIC_API_KEY := os.Getenv("ANTHROPIC_API_KEY")
	if GEMINI_API_KEY == "" {
		log.Fatalf("GEMINI_API_KEY is not set")
	}

	ctx := context.Background()

	// 1. Create providers
	providers := []genai.Generator{
		genai.NewGemini(genai.Options{APIKey: GEMINI_API_KEY, Timeout: 30 * time.Second}),
	}
	if ANTHROPIC_API_KEY != "" {
		providers = append(providers, genai.NewAnthropic(genai.Options{APIKey: ANTHROPIC_API_KEY, Timeout: 30 * time.Second}))
	} else {
		log.Println("ANTHROPIC_API_KEY not set, running without failover")
	}

	// 2. Setup daily budget tracker
	budget := genai.NewBudget(50, 100000)

	// 3. Setup router with failover across the providers
	router, err := genai.NewRouter(budget, providers...)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	fmt.Println("=== Testing Completion Router ===")
	fmt.Println()

	// 4. Make multiple calls to test failover and budget accounting
	topics := []string{"recursion", "hash tables", "goroutines", "normalization", "backpressure"}
	for i, topic := range topics {
		res, err := router.Generate(ctx, genai.Request{
			System:          "You are a concise teaching assistant.",
			Prompt:          fmt.Sprintf("Explain %s in one short sentence.", topic),
			Temperature:     0.2,
			MaxOutputTokens: 120,
		})
		if err != nil {
			log.Printf("Call %d failed: %v", i+1, err)
			continue
		}
		fmt.Printf("Call %d [%s]: %s\n", i+1, res.Provider, oneLine(res.Text))

		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println()

	// 5. Show per-provider health
	fmt.Println("=== Provider Health ===")
	for _, st := range router.Health() {
		marker := " "
		if st.Active {
			marker = "*"
		}
		fmt.Printf("%s %s:\n", marker, st.Name)
		fmt.Printf("  Successes: %d\n", st.Successes)
		fmt.Printf("  Failures: %d\n", st.Failures)
		if st.LastError != "" {
			fmt.Printf("  Last Error: %s\n", st.LastError)
		}
		fmt.Println()
	}

	// 6. Show budget usage
	stats := budget.Stats()
	fmt.Printf("Calls today: %d / %d\n", stats.Calls, stats.CallLimit)
	fmt.Printf("Tokens today: %d / %d (%.1f%%)\n", stats.Tokens, stats.TokenLimit, stats.UsagePercentage)
	fmt.Printf("Budget resets at: %s\n", stats.NextResetAt.Format(time.RFC3339))
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
