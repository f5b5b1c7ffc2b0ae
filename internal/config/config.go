// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port          string
	MongoURI      string
	MongoDB       string
	RedisAddr     string
	RedisPassword string
	OwnerID       string
	HostAPIURL    string
	CommandPrefix string
}

// Load reads configuration from environment variables. OWNER_ID must be
// set; everything else has a development default.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8085"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "gatekeeper"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		OwnerID:       os.Getenv("OWNER_ID"),
		HostAPIURL:    getEnv("HOST_API_URL", "http://localhost:3000"),
		CommandPrefix: getEnv("COMMAND_PREFIX", "!vet"),
	}
	if cfg.OwnerID == "" {
		return nil, fmt.Errorf("OWNER_ID environment variable is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
