package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App    AppConfig
	Keys   APIKeys
	Ai     AIConfig
	Budget BudgetConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	SessionTTLMinutes  int
}

type APIKeys struct {
	GoogleGemini string
	ProxyToken   string
	JWTSecret    string
}

type AIConfig struct {
	Provider        string // "gemini" or "proxy"
	Model           string
	ProxyBaseURL    string
	MaxRoundTrips   int
	MaxOutputTokens int
	CacheTTLMinutes int
}

type BudgetConfig struct {
	Ceiling          int
	MaxHistoryTurns  int
	MaxHistoryTokens int
	MaxSourceTokens  int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			SessionTTLMinutes:  getEnvAsInt("SESSION_TTL_MINUTES", 60),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			ProxyToken:   getEnv("LLM_PROXY_TOKEN", ""),
			JWTSecret:    getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			Provider:        getEnv("LLM_PROVIDER", "gemini"),
			Model:           getEnv("LLM_MODEL", "gemini-2.0-flash"),
			ProxyBaseURL:    getEnv("LLM_PROXY_BASE_URL", ""),
			MaxRoundTrips:   getEnvAsInt("AGENT_MAX_ROUND_TRIPS", 6),
			MaxOutputTokens: getEnvAsInt("AGENT_MAX_OUTPUT_TOKENS", 8192),
			CacheTTLMinutes: getEnvAsInt("PROMPT_CACHE_TTL_MINUTES", 30),
		},
		Budget: BudgetConfig{
			Ceiling:          getEnvAsInt("BUDGET_CEILING_TOKENS", 100_000),
			MaxHistoryTurns:  getEnvAsInt("BUDGET_MAX_HISTORY_TURNS", 10),
			MaxHistoryTokens: getEnvAsInt("BUDGET_MAX_HISTORY_TOKENS", 30_000),
			MaxSourceTokens:  getEnvAsInt("BUDGET_MAX_SOURCE_TOKENS", 40_000),
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
