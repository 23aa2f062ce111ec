package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Classifier ClassifierConfig
	Limits     LimitsConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	EventLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	EngineVersion      string
	EventTopic         string
}

type DatabaseConfig struct {
	Connection string
}

type ClassifierConfig struct {
	Provider      string // "openai" or "ollama"
	Model         string // primary classification model
	FallbackModel string // cheaper/more robust fallback
	OpenAIAPIKey  string
	OllamaBaseURL string
	TimeoutMs     int
}

type LimitsConfig struct {
	LockTTL              time.Duration
	IdempotencyTTL       time.Duration
	SessionRateLimit     int // messages per minute per session
	SessionRateWindow    time.Duration
	AnonRateLimit        int // actions per window per anonymous user
	AnonRateWindow       time.Duration
	AccountRateLimit     int // messages per window per account
	AccountRateWindow    time.Duration
	ActionRateLimit      int // UI actions per minute per session
	ActionRateWindow     time.Duration
	DefaultTokenBudget   int
	DefaultCostCeiling   float64
	RuleCacheTTL         time.Duration
	AccountCacheTTL      time.Duration
	FallbackCleanupEvery time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			EventLogFilePath:   getEnv("EVENT_LOG_FILE_PATH", "logs/events.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			EngineVersion:      getEnv("ENGINE_VERSION", "v2"),
			EventTopic:         getEnv("ENGINE_EVENT_TOPIC", "ENGINE_EVENTS"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Classifier: ClassifierConfig{
			Provider:      getEnv("CLASSIFIER_PROVIDER", "openai"),
			Model:         getEnv("CLASSIFIER_MODEL", "gpt-5-nano"),
			FallbackModel: getEnv("CLASSIFIER_FALLBACK_MODEL", "gpt-5-mini"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			TimeoutMs:     getEnvAsInt("CLASSIFIER_TIMEOUT_MS", 8000),
		},
		Limits: LimitsConfig{
			LockTTL:              getEnvAsDuration("SESSION_LOCK_TTL", 30*time.Second),
			IdempotencyTTL:       getEnvAsDuration("IDEMPOTENCY_TTL", 5*time.Minute),
			SessionRateLimit:     getEnvAsInt("RATE_LIMIT_SESSION", 10),
			SessionRateWindow:    getEnvAsDuration("RATE_WINDOW_SESSION", time.Minute),
			AnonRateLimit:        getEnvAsInt("RATE_LIMIT_ANON", 20),
			AnonRateWindow:       getEnvAsDuration("RATE_WINDOW_ANON", 5*time.Minute),
			AccountRateLimit:     getEnvAsInt("RATE_LIMIT_ACCOUNT", 100),
			AccountRateWindow:    getEnvAsDuration("RATE_WINDOW_ACCOUNT", 5*time.Minute),
			ActionRateLimit:      getEnvAsInt("RATE_LIMIT_ACTION", 30),
			ActionRateWindow:     getEnvAsDuration("RATE_WINDOW_ACTION", time.Minute),
			DefaultTokenBudget:   getEnvAsInt("DEFAULT_TOKEN_BUDGET", 100000),
			DefaultCostCeiling:   getEnvAsFloat("DEFAULT_COST_CEILING", 10.0),
			RuleCacheTTL:         getEnvAsDuration("RULE_CACHE_TTL", 5*time.Minute),
			AccountCacheTTL:      getEnvAsDuration("ACCOUNT_CACHE_TTL", 10*time.Minute),
			FallbackCleanupEvery: getEnvAsDuration("FALLBACK_CLEANUP_EVERY", 5*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
