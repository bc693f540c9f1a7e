// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// ErrMissingDatabaseURL is returned by Validate when no connection string is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL (or MONGODB_URI) is not set")

// defaultOrigin is the local development frontend, always allowed by CORS.
const defaultOrigin = "http://localhost:4200"

// Config holds all runtime configuration for the service.
type Config struct {
	Port   string
	AppEnv string

	// Document store. A mongodb:// URL selects MongoDB, postgres:// selects PostgreSQL.
	DatabaseURL   string
	MongoDatabase string

	// Object storage (Backblaze B2 through its S3-compatible endpoint)
	B2KeyID       string
	B2Key         string
	B2BucketID    string
	B2BucketName  string
	B2Endpoint    string
	B2UseSSL      bool
	B2DownloadURL string // optional override for the direct download base
	StoragePrefix string
	// StorageURLMode is "proxy" (default) or "storage-direct".
	StorageURLMode string

	// APIBaseURL is the public base used to build proxy links, e.g. "https://api.example.com".
	APIBaseURL     string
	AllowedOrigins []string
	MaxUploadBytes int64

	// Hosted identity provider (Clerk)
	ClerkAPIURL    string
	ClerkSecretKey string
	ClerkJWTKey    string

	RedisURL        string
	ProfileCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	OTELCollectorHost string
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, reading from environment")
	}

	return &Config{
		Port:   getEnv("PORT", "3000"),
		AppEnv: getEnv("APP_ENV", "development"),

		DatabaseURL:   getEnv("DATABASE_URL", os.Getenv("MONGODB_URI")),
		MongoDatabase: getEnv("MONGODB_DATABASE", "shop"),

		B2KeyID:        os.Getenv("B2_APPLICATION_KEY_ID"),
		B2Key:          os.Getenv("B2_APPLICATION_KEY"),
		B2BucketID:     os.Getenv("B2_BUCKET_ID"),
		B2BucketName:   os.Getenv("B2_BUCKET_NAME"),
		B2Endpoint:     getEnv("B2_ENDPOINT", "s3.us-west-004.backblazeb2.com"),
		B2UseSSL:       getEnv("B2_USE_SSL", "true") == "true",
		B2DownloadURL:  os.Getenv("B2_DOWNLOAD_URL"),
		StoragePrefix:  getEnv("STORAGE_PREFIX", "products"),
		StorageURLMode: getEnv("STORAGE_URL_MODE", "proxy"),

		APIBaseURL:     strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		AllowedOrigins: parseOrigins(os.Getenv("FRONTEND_URL")),
		MaxUploadBytes: getInt64("MAX_UPLOAD_BYTES", 10<<20),

		ClerkAPIURL:    strings.TrimRight(getEnv("CLERK_API_URL", "https://api.clerk.com/v1"), "/"),
		ClerkSecretKey: os.Getenv("CLERK_SECRET_KEY"),
		ClerkJWTKey:    os.Getenv("CLERK_JWT_KEY"),

		RedisURL:        os.Getenv("REDIS_URL"),
		ProfileCacheTTL: getDuration("PROFILE_CACHE_TTL", 5*time.Minute),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "product-events"),

		OTELCollectorHost: os.Getenv("OTEL_COLLECTOR_HOST"),
	}
}

// Validate reports configuration that makes startup impossible.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesMongo reports whether DatabaseURL points at MongoDB.
func (c *Config) UsesMongo() bool {
	return strings.HasPrefix(c.DatabaseURL, "mongodb://") || strings.HasPrefix(c.DatabaseURL, "mongodb+srv://")
}

func parseOrigins(raw string) []string {
	origins := splitList(raw)
	for _, o := range origins {
		if o == defaultOrigin {
			return origins
		}
	}
	return append(origins, defaultOrigin)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.TrimRight(p, "/"))
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
