package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"sleuth/adapters/analysis"
	"sleuth/adapters/excel"
	"sleuth/adapters/llm"
	"sleuth/adapters/llm/heuristic"
	"sleuth/adapters/memory"
	"sleuth/adapters/splunk"
	"sleuth/app"
	"sleuth/domain/catalog"
	"sleuth/domain/evidence"
	"sleuth/internal/config"
	"sleuth/internal/logging"
	"sleuth/ports"
)

// One-shot investigation from the command line, with an optional xlsx report.
func main() {
	question := flag.String("q", "", "question to investigate")
	window := flag.String("window", "24h", "time window expression (1h, 24h, 7d)")
	report := flag.Bool("report", false, "write an xlsx report")
	flag.Parse()

	if *question == "" {
		fmt.Fprintln(os.Stderr, "usage: investigate -q \"why are checkout errors spiking?\" [-window 24h] [-report]")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.NewDefaultLogger()

	cat, err := catalog.Load(appConfig.Paths.ServiceCatalog)
	if err != nil {
		logger.Warn("service catalog unavailable (%v), running without service matching", err)
		cat = catalog.Empty()
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:         appConfig.AI.OpenAIKey,
		Model:          appConfig.AI.Model,
		EmbeddingModel: appConfig.AI.EmbeddingModel,
		BaseURL:        appConfig.AI.BaseURL,
		Temperature:    appConfig.AI.Temperature,
		MaxTokens:      appConfig.AI.MaxTokens,
		Timeout:        appConfig.AI.Timeout,
	})

	var incidentMemory ports.MemoryPort = memory.NullStore{}
	if appConfig.Database.Enabled {
		if db, err := sqlx.Connect("postgres", appConfig.Database.URL); err == nil {
			if store, err := memory.NewPostgresStore(db, llmClient); err == nil {
				incidentMemory = store
			}
		}
	}

	guardrails := splunk.NewGuardrails()
	service := app.NewInvestigationService(
		llm.NewIntentAdapter(llmClient, cat),
		llm.NewGeneratorAdapter(llmClient, cat, heuristic.NewGenerator(cat)),
		splunk.NewPlanner(llmClient, cat, guardrails),
		splunk.NewClient(splunk.ClientConfig{
			BaseURL:   appConfig.Splunk.BaseURL,
			Username:  appConfig.Splunk.Username,
			Password:  appConfig.Splunk.Password,
			Token:     appConfig.Splunk.Token,
			VerifySSL: appConfig.Splunk.VerifySSL,
		}),
		analysis.NewAnalyzer(),
		llm.NewComposerAdapter(llmClient),
		incidentMemory,
		cat,
		appConfig.Investigation,
		logger,
	)

	result, err := service.Investigate(context.Background(), *question, *window)
	inv := result.Investigation

	fmt.Printf("Investigation %s: %s\n", inv.ID, inv.State)
	if err != nil {
		fmt.Printf("Failed [%s]: %s\n", inv.FailCode, inv.FailMsg)
		os.Exit(1)
	}

	if inv.Answer != nil {
		fmt.Printf("\nRoot cause: %s\n", inv.Answer.RootCause)
		fmt.Printf("Confidence: %.2f (%s)\n", inv.Answer.Confidence, inv.Answer.ConfidenceLevel)
		if inv.Answer.Insufficient {
			fmt.Println("Warning: insufficient evidence to confirm any hypothesis")
		}
		fmt.Printf("\n%s\n", inv.Answer.Explanation)
	}
	fmt.Printf("\nSteps taken: %d\n", inv.StepsUsed)

	if *report {
		writeReport(appConfig, result)
	}
}

func writeReport(appConfig *config.Config, result *app.Result) {
	if err := os.MkdirAll(appConfig.Paths.ReportDir, 0o755); err != nil {
		log.Printf("Failed to create report directory: %v", err)
		return
	}

	scores := make(map[string]evidence.ConfidenceResult, len(result.Ranked))
	for _, r := range result.Ranked {
		scores[r.HypothesisID.String()] = r
	}

	writer := excel.NewReportWriter(appConfig.Paths.ReportDir)
	path, err := writer.Write(result.Investigation, result.Hypotheses, scores, result.Findings)
	if err != nil {
		log.Printf("Failed to write report: %v", err)
		return
	}
	fmt.Printf("Report written to %s\n", path)
}
