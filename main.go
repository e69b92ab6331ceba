package main

import (
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"sleuth/adapters/analysis"
	"sleuth/adapters/llm"
	"sleuth/adapters/llm/heuristic"
	"sleuth/adapters/memory"
	"sleuth/adapters/splunk"
	"sleuth/api"
	"sleuth/app"
	"sleuth/domain/catalog"
	"sleuth/internal/config"
	"sleuth/internal/logging"
	"sleuth/ports"
)

func main() {
	// Load environment variables from .env file
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
	} else {
		logger.Info("loaded service catalog with %d service(s)", cat.Len())
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

	incidentMemory := buildMemory(appConfig, llmClient, logger)

	guardrails := splunk.NewGuardrails()
	executor := splunk.NewClient(splunk.ClientConfig{
		BaseURL:   appConfig.Splunk.BaseURL,
		Username:  appConfig.Splunk.Username,
		Password:  appConfig.Splunk.Password,
		Token:     appConfig.Splunk.Token,
		VerifySSL: appConfig.Splunk.VerifySSL,
	})

	service := app.NewInvestigationService(
		llm.NewIntentAdapter(llmClient, cat),
		llm.NewGeneratorAdapter(llmClient, cat, heuristic.NewGenerator(cat)),
		splunk.NewPlanner(llmClient, cat, guardrails),
		executor,
		analysis.NewAnalyzer(),
		llm.NewComposerAdapter(llmClient),
		incidentMemory,
		cat,
		appConfig.Investigation,
		logger,
	)

	server := api.NewServer(service, logger)
	addr := ":" + appConfig.Server.Port
	logger.Info("listening on %s", addr)
	if err := http.ListenAndServe(addr, server.Router()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// buildMemory connects the incident store when a database is configured,
// otherwise falls back to the null store.
func buildMemory(appConfig *config.Config, llmClient *llm.Client, logger *logging.Logger) ports.MemoryPort {
	if !appConfig.Database.Enabled {
		logger.Info("DATABASE_URL not set, incident memory disabled")
		return memory.NullStore{}
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		logger.Warn("failed to connect to incident database, memory disabled: %v", err)
		return memory.NullStore{}
	}
	store, err := memory.NewPostgresStore(db, llmClient)
	if err != nil {
		logger.Warn("failed to initialize incident store, memory disabled: %v", err)
		return memory.NullStore{}
	}
	logger.Info("incident memory connected")
	return store
}
