package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	AIAPIKey   string
	EmbedModel string
	EmbedDim   int

	// Cloud extraction service; empty URL means unconfigured and the
	// pipeline goes straight to the local fallback parser.
	ExtractAPIURL   string
	ExtractAPIToken string
	PollInterval    time.Duration
	PollTimeout     time.Duration

	RedisAddr string
	RedisDB   int

	StuckTimeout  time.Duration
	ChunkSize     int
	MinBlockWords int
	Workers       int

	JWTSecret string
	Port      string
}

// LoadConfig loads the environment variables and returns config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "paperbase-docs"),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),

		ExtractAPIURL:   getEnv("EXTRACT_API_URL", ""),
		ExtractAPIToken: getEnv("EXTRACT_API_TOKEN", ""),
		PollInterval:    getEnvDuration("EXTRACT_POLL_INTERVAL", 5*time.Second),
		PollTimeout:     getEnvDuration("EXTRACT_POLL_TIMEOUT", 3*time.Minute),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		StuckTimeout:  getEnvDuration("STUCK_TIMEOUT", 10*time.Minute),
		ChunkSize:     getEnvInt("CHUNK_SIZE", 1200),
		MinBlockWords: getEnvInt("MIN_BLOCK_WORDS", 5),
		Workers:       getEnvInt("WORKERS", 4),

		JWTSecret: getEnv("JWT_SECRET", ""),
		Port:      getEnv("PORT", "8080"),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
