// Package config loads server configuration from the environment,
// following the same "explicit var, then fallback, then default" chain
// the teacher repo uses for Redis.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds everything main needs to wire the server together.
type Config struct {
	Port string

	RedisAddr     string
	RedisPassword string

	DatabaseURL string // postgres DSN for the session audit log; empty disables it

	SQLitePath string // credential store

	BoardStoreDir string // root of saved_boards/

	ImageBackend string // "local" or "s3"
	AWSRegion    string
	S3Bucket     string
	PublicURL    string // base URL local-backend image links are served from

	MaxReplayLen int

	InviteTTLHours int
}

// Load reads a .env file if present (missing is not an error, matching
// godotenv's own convention) and then environment variables, applying the
// same defaults the teacher hardcodes in main.go.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:          envOr("PORT", "8080"),
		RedisAddr:     redisAddr(),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    envOr("SQLITE_PATH", "saved_boards/users.db"),
		BoardStoreDir: envOr("BOARD_STORE_DIR", "saved_boards"),
		ImageBackend:  envOr("IMAGE_BACKEND", "local"),
		AWSRegion:     envOr("AWS_REGION", "us-east-1"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		PublicURL:     envOr("PUBLIC_URL", "http://localhost:"+envOr("PORT", "8080")),
		MaxReplayLen:  2000,

		InviteTTLHours: 24,
	}
	return cfg
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		return fmt.Sprintf("%s:%s", host, port)
	}
	return "localhost:6379"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
