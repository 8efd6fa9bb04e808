package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort     string
	AllowedOrigins []string

	// DBDriver selects the conversation store: "postgres" or "sqlite".
	DBDriver    string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string
	AutoMigrate bool

	// RedisURL enables the cross-instance event relay when set.
	RedisURL     string
	RedisChannel string

	JWTSecret      string
	SessionTTL     time.Duration
	SocketTokenTTL time.Duration

	AIProvider            string
	AITimeout             time.Duration
	AISystemPrompt        string
	ChatContextWindowSize int
	OllamaBaseURL         string
	OllamaModel           string
	OpenRouterBaseURL     string
	OpenRouterAPIKey      string
	OpenRouterModel       string
	OpenRouterSiteURL     string
	OpenRouterAppName     string
}

const defaultSystemPrompt = "You are a helpful assistant in a chat app. Keep replies concise and friendly."

func Load() *Config {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: reading .env: %v", err)
	}

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		AllowedOrigins: getList("ALLOWED_ORIGINS"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "hideout"),
		DBPassword:  getEnv("DB_PASSWORD", "hideout_dev_password"),
		DBName:      getEnv("DB_NAME", "hideout"),
		SQLitePath:  getEnv("SQLITE_PATH", "hideout.db"),
		AutoMigrate: getBool("AUTO_MIGRATE", true),

		RedisURL:     getEnv("REDIS_URL", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "hideout:events"),

		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		SessionTTL:     getDuration("SESSION_TTL", 24*time.Hour),
		SocketTokenTTL: getDuration("SOCKET_TOKEN_TTL", 15*time.Minute),

		AIProvider:            strings.ToLower(getEnv("AI_PROVIDER", "ollama")),
		AITimeout:             getDuration("AI_TIMEOUT", 60*time.Second),
		AISystemPrompt:        getEnv("AI_SYSTEM_PROMPT", defaultSystemPrompt),
		ChatContextWindowSize: getInt("CHAT_CONTEXT_WINDOW_SIZE", 20),
		OllamaBaseURL:         getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:           getEnv("OLLAMA_MODEL", "llama3:latest"),
		OpenRouterBaseURL:     getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:      getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterModel:       getEnv("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterSiteURL:     getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName:     getEnv("OPENROUTER_APP_NAME", "hideout"),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("config: invalid %s=%q, using %d", key, v, fallback)
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("config: invalid %s=%q, using %t", key, v, fallback)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("config: invalid %s=%q, using %s", key, v, fallback)
	}
	return fallback
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
