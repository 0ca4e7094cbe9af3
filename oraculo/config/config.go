package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DBDriver   string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string
	DBPath     string
	JWTSecret  string

	// Default credentials per provider, used when the caller does not send one.
	GroqAPIKey      string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaBaseURL   string

	ProvidersFile string
	PromptsFile   string

	SessionCacheSize int
	SessionCacheTTL  time.Duration
	SessionLockTTL   time.Duration

	RedisURL string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	ScraperBrowser bool

	RetentionTTL      time.Duration
	RetentionSchedule string

	DurableDegradedThreshold int
}

func LoadConfig() Config {
	env := getEnv("ORACULO_ENV", "development")
	if env == "development" {
		// a missing .env is fine, the process environment still applies
		_ = godotenv.Load()
	}

	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8000"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "oraculo"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "oraculo.db"),
		JWTSecret:  getEnv("JWT_SECRET", ""),

		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434/api"),

		ProvidersFile: getEnv("PROVIDERS_FILE", ""),
		PromptsFile:   getEnv("PROMPTS_FILE", ""),

		SessionCacheSize: getEnvInt("SESSION_CACHE_SIZE", 1024),
		SessionCacheTTL:  getEnvDuration("SESSION_CACHE_TTL", 2*time.Hour),
		SessionLockTTL:   getEnvDuration("SESSION_LOCK_TTL", 2*time.Minute),

		RedisURL: getEnv("REDIS_URL", ""),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "oraculo-documents"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		ScraperBrowser: getEnvBool("SCRAPER_BROWSER", false),

		RetentionTTL:      getEnvDuration("RETENTION_TTL", 0),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "@every 1h"),

		DurableDegradedThreshold: getEnvInt("DURABLE_DEGRADED_THRESHOLD", 3),
	}
}

// DefaultCredentials maps provider names to the configured API keys.
func (c Config) DefaultCredentials() map[string]string {
	return map[string]string{
		"Groq":      c.GroqAPIKey,
		"Gemini":    c.GeminiAPIKey,
		"OpenAI":    c.OpenAIAPIKey,
		"Anthropic": c.AnthropicAPIKey,
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
