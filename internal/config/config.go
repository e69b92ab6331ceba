package config

import (
	"os"
	"strconv"
	"time"

	"sleuth/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database      DatabaseConfig
	AI            AIConfig
	Splunk        SplunkConfig
	Server        ServerConfig
	Investigation InvestigationConfig
	Paths         PathConfig
}

// DatabaseConfig holds the incident-memory database settings. An empty URL
// disables historical memory rather than failing startup.
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// AIConfig holds LLM settings for planning, generation, and composition
type AIConfig struct {
	OpenAIKey      string
	Model          string
	EmbeddingModel string
	BaseURL        string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
}

// SplunkConfig holds the log platform connection settings
type SplunkConfig struct {
	BaseURL   string
	Username  string
	Password  string
	Token     string
	VerifySSL bool
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// InvestigationConfig holds the policy knobs bounding one investigation
type InvestigationConfig struct {
	// StopThreshold stops probing once top confidence reaches it.
	StopThreshold float64
	// SaturationGain tunes the confidence saturation curve.
	SaturationGain float64
	MaxSteps       int
	MaxWall        time.Duration
	// RetryMax is the consecutive step failures before a hypothesis is
	// demoted to INCONCLUSIVE.
	RetryMax int
	// Concurrency is the parallel worker slots for independent hypotheses.
	Concurrency int
	// QueryTimeout bounds plan generation and query execution.
	QueryTimeout time.Duration
	BackoffBase  time.Duration
	// GraceWindow keeps ingesting results that land shortly after the
	// budget deadline; later arrivals are discarded.
	GraceWindow time.Duration
	// MemoryTopK is how many similar incidents to retrieve.
	MemoryTopK int
	// HistoricalHalfLife controls recency decay of memory-sourced evidence.
	HistoricalHalfLife time.Duration
}

// PathConfig holds file system paths
type PathConfig struct {
	ServiceCatalog string
	ReportDir      string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	aiConfig, err := loadAIConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AI configuration")
	}
	config.AI = *aiConfig

	config.Database = loadDatabaseConfig()
	config.Splunk = loadSplunkConfig()
	config.Server = loadServerConfig()
	config.Investigation = loadInvestigationConfig()
	config.Paths = loadPathConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadDatabaseConfig() DatabaseConfig {
	url := os.Getenv("DATABASE_URL")
	return DatabaseConfig{
		URL:     url,
		Enabled: url != "",
	}
}

func loadAIConfig() (*AIConfig, error) {
	openaiKey := os.Getenv("OPENAI_API_KEY")
	if openaiKey == "" {
		return nil, errors.ConfigInvalid("OPENAI_API_KEY is required")
	}

	return &AIConfig{
		OpenAIKey:      openaiKey,
		Model:          getEnvOrDefault("LLM_MODEL", "gpt-4.1-mini"),
		EmbeddingModel: getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		BaseURL:        getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		MaxTokens:      getEnvIntOrDefault("MAX_TOKENS", 2000),
		Temperature:    getEnvFloatOrDefault("TEMPERATURE", 0.3),
		Timeout:        getEnvDurationOrDefault("LLM_TIMEOUT", 60*time.Second),
	}, nil
}

func loadSplunkConfig() SplunkConfig {
	return SplunkConfig{
		BaseURL:   getEnvOrDefault("SPLUNK_URL", "https://localhost:8089"),
		Username:  getEnvOrDefault("SPLUNK_USERNAME", ""),
		Password:  getEnvOrDefault("SPLUNK_PASSWORD", ""),
		Token:     getEnvOrDefault("SPLUNK_TOKEN", ""),
		VerifySSL: getEnvBoolOrDefault("SPLUNK_VERIFY_SSL", false),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port: getEnvOrDefault("PORT", "8080"),
	}
}

func loadInvestigationConfig() InvestigationConfig {
	return InvestigationConfig{
		StopThreshold:      getEnvFloatOrDefault("STOP_THRESHOLD", 0.85),
		SaturationGain:     getEnvFloatOrDefault("SATURATION_GAIN", 1.0),
		MaxSteps:           getEnvIntOrDefault("MAX_STEPS", 8),
		MaxWall:            getEnvDurationOrDefault("MAX_WALL", 5*time.Minute),
		RetryMax:           getEnvIntOrDefault("RETRY_MAX", 3),
		Concurrency:        getEnvIntOrDefault("CONCURRENCY", 2),
		QueryTimeout:       getEnvDurationOrDefault("QUERY_TIMEOUT", 30*time.Second),
		BackoffBase:        getEnvDurationOrDefault("BACKOFF_BASE", 500*time.Millisecond),
		GraceWindow:        getEnvDurationOrDefault("GRACE_WINDOW", 5*time.Second),
		MemoryTopK:         getEnvIntOrDefault("MEMORY_TOP_K", 5),
		HistoricalHalfLife: getEnvDurationOrDefault("HISTORICAL_HALF_LIFE", 7*24*time.Hour),
	}
}

func loadPathConfig() PathConfig {
	return PathConfig{
		ServiceCatalog: getEnvOrDefault("SERVICE_CATALOG", "./service-catalog.json"),
		ReportDir:      getEnvOrDefault("REPORT_DIR", "./reports"),
	}
}

func validateConfig(config *Config) error {
	if config.Investigation.StopThreshold <= 0 || config.Investigation.StopThreshold > 1 {
		return errors.ConfigInvalid("STOP_THRESHOLD must be in (0,1]")
	}
	if config.Investigation.MaxSteps <= 0 {
		return errors.ConfigInvalid("MAX_STEPS must be positive")
	}
	if config.Investigation.Concurrency <= 0 {
		return errors.ConfigInvalid("CONCURRENCY must be positive")
	}
	if config.Investigation.RetryMax < 0 {
		return errors.ConfigInvalid("RETRY_MAX must not be negative")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
