package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	PostgresDSN    string
	StorageDriver  string
	RedisAddr      string
	KafkaBrokers   []string
	KafkaGroupID   string
	JWTSecret      string
	HTTPAddr       string
	OTLPEndpoint   string
	RateLimitRPS   float64
	RateLimitBurst int
	RunMigrations  bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}
	return fromEnv()
}

func fromEnv() *Config {
	cfg := &Config{
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		StorageDriver:  strings.ToLower(os.Getenv("STORAGE_DRIVER")),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKER")),
		KafkaGroupID:   os.Getenv("KAFKA_GROUP_ID"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		RateLimitRPS:   floatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: intEnv("RATE_LIMIT_BURST", 20),
		RunMigrations:  boolEnv("RUN_MIGRATIONS", true),
	}

	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=rental sslmode=disable"
	}
	if cfg.StorageDriver != DriverMemory {
		cfg.StorageDriver = DriverPostgres
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.KafkaGroupID == "" {
		cfg.KafkaGroupID = "rental-settlement-service"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	slog.Info("config loaded",
		"storage_driver", cfg.StorageDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"http_addr", cfg.HTTPAddr,
		"otlp_endpoint", cfg.OTLPEndpoint)
	return cfg
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func floatEnv(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid float in env, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func intEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer in env, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}

func boolEnv(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean in env, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}
