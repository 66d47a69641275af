package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment
// variables.
type Config struct {
	Env          string
	HTTPAddr     string
	StoreMode    string
	MongoURI     string
	MongoDB      string
	JWTSecret    string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	CORSOrigins  []string
	ShutdownWait time.Duration
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:        getEnv("APP_ENV", "dev"),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		StoreMode:  strings.ToLower(getEnv("STORE_MODE", "memory")),
		MongoURI:   os.Getenv("MONGO_URI"),
		MongoDB:    getEnv("MONGO_DB", "dental_smile"),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		KafkaTopic: getEnv("KAFKA_EVENTS_TOPIC", "chat-events"),
		KafkaGroup: getEnv("KAFKA_GROUP_PREFIX", "chatd"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	origins := getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	for _, raw := range strings.Split(origins, ",") {
		if val := strings.TrimSpace(raw); val != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, val)
		}
	}
	wait, err := parseDurationEnv("SHUTDOWN_WAIT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownWait = wait

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.StoreMode {
	case "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORE_MODE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_MODE %q", cfg.StoreMode)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}
