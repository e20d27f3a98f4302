package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	MaxUploadSizeBytes int64

	// Import runner tuning.
	ImportChunkSize int
	RowErrorSample  int

	// External model access. Empty key disables both the category
	// suggester and the statement extractor.
	GeminiAPIKey   string
	GeminiModel    string
	SuggestTimeout time.Duration
	ExtractTimeout time.Duration

	// Statement extraction sanitizer.
	StatementGraceDays   int
	IdentityTagWhitelist []string

	// Reconciliation date-matching tolerance, in days.
	BankMatchToleranceDays   int
	CardMatchToleranceDays   int
	LargeAmountSentinelCents int64
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: no .env file found, relying on OS environment variables and defaults.")
	}

	log.Println("Loading application configuration...")

	suggestTimeout, err := time.ParseDuration(getEnv("SUGGEST_TIMEOUT", "20s"))
	if err != nil {
		log.Printf("WARNING: invalid SUGGEST_TIMEOUT, using default 20s. Error: %v", err)
		suggestTimeout = 20 * time.Second
	}
	extractTimeout, err := time.ParseDuration(getEnv("EXTRACT_TIMEOUT", "120s"))
	if err != nil {
		log.Printf("WARNING: invalid EXTRACT_TIMEOUT, using default 120s. Error: %v", err)
		extractTimeout = 120 * time.Second
	}

	maxUploadSizeBytes, err := strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760"), 10, 64)
	if err != nil {
		log.Printf("WARNING: invalid MAX_UPLOAD_SIZE_BYTES, using default 10MB. Error: %v", err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	largeSentinel, err := strconv.ParseInt(getEnv("LARGE_AMOUNT_SENTINEL_CENTS", "1000000"), 10, 64)
	if err != nil {
		log.Printf("WARNING: invalid LARGE_AMOUNT_SENTINEL_CENTS, using default 1000000. Error: %v", err)
		largeSentinel = 1000000
	}

	var whitelist []string
	if raw := getEnv("IDENTITY_TAG_WHITELIST", ""); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if t := strings.TrimSpace(tag); t != "" {
				whitelist = append(whitelist, t)
			}
		}
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./terrain.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxUploadSizeBytes: maxUploadSizeBytes,

		ImportChunkSize: getEnvAsInt("IMPORT_CHUNK_SIZE", 500),
		RowErrorSample:  getEnvAsInt("ROW_ERROR_SAMPLE", 50),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		SuggestTimeout: suggestTimeout,
		ExtractTimeout: extractTimeout,

		StatementGraceDays:   getEnvAsInt("STATEMENT_GRACE_DAYS", 5),
		IdentityTagWhitelist: whitelist,

		BankMatchToleranceDays:   getEnvAsInt("BANK_MATCH_TOLERANCE_DAYS", 1),
		CardMatchToleranceDays:   getEnvAsInt("CARD_MATCH_TOLERANCE_DAYS", 3),
		LargeAmountSentinelCents: largeSentinel,
	}

	if Cfg.ImportChunkSize <= 0 {
		log.Printf("WARNING: IMPORT_CHUNK_SIZE must be positive, using default 500")
		Cfg.ImportChunkSize = 500
	}

	if Cfg.GeminiAPIKey == "" {
		log.Println("GEMINI_API_KEY not set: category suggestions and statement extraction are disabled.")
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, ChunkSize=%d",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.ImportChunkSize)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}
