package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultMySQLDSN = "root:root@tcp(localhost:3306)/jobcard?parseTime=true"

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	OpTimeout       time.Duration
	RunMigrations   bool

	// RedisAddr empty disables idempotency keys and the GRN lock
	RedisAddr     string
	RedisPoolSize int

	GRNLockTTL    time.Duration
	GRNMaxRetries int

	RejectNonPositiveQty bool

	HealthInterval  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// Load reads an optional .env file, then the environment.
func Load() Config {
	// a missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	return Config{
		HTTPAddr:             stringFromEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:             stringFromEnv("GRPC_ADDR", ":50051"),
		MySQLDSN:             stringFromEnv("MYSQL_DSN", defaultMySQLDSN),
		MaxOpenConns:         intFromEnv("DB_MAX_OPEN_CONNS", 50),
		MaxIdleConns:         intFromEnv("DB_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime:      durationFromEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		OpTimeout:            durationFromEnv("DB_OP_TIMEOUT", 10*time.Second),
		RunMigrations:        boolFromEnv("RUN_MIGRATIONS", true),
		RedisAddr:            stringFromEnv("REDIS_ADDR", ""),
		RedisPoolSize:        intFromEnv("REDIS_POOL_SIZE", 100),
		GRNLockTTL:           durationFromEnv("GRN_LOCK_TTL", 5*time.Second),
		GRNMaxRetries:        intFromEnv("GRN_MAX_RETRIES", 5),
		RejectNonPositiveQty: boolFromEnv("INWARD_REJECT_NON_POSITIVE_QTY", true),
		HealthInterval:       durationFromEnv("HEALTH_INTERVAL", 10*time.Second),
		ShutdownTimeout:      durationFromEnv("SHUTDOWN_TIMEOUT", 5*time.Second),
		LogLevel:             stringFromEnv("LOG_LEVEL", "info"),
	}
}

func stringFromEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// durationFromEnv accepts Go durations ("750ms", "5m") or plain seconds.
func durationFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
