// Package config loads host configuration from the environment, the
// way the teacher's own config package does: plain os.Getenv reads with
// defaults, no third-party config library.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr         string
	DBDSN            string
	JWTSecret        string
	JWTTTL           time.Duration
	SnapshotInterval int64
	TraceStdout      bool
	RabbitMQURL      string
	BusQueueName     string
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func Load() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DBDSN:            getEnv("DB_DSN", "root:password@tcp(localhost:3316)/nomyx?parseTime=true&multiStatements=true&charset=utf8mb4&collation=utf8mb4_unicode_ci"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change"),
		JWTTTL:           time.Duration(getEnvInt("JWT_TTL_HOURS", 24)) * time.Hour,
		SnapshotInterval: int64(getEnvInt("SNAPSHOT_INTERVAL", 50)),
		TraceStdout:      getEnvBool("TRACE_STDOUT", true),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		BusQueueName:     getEnv("BUS_QUEUE_NAME", "nomyx_inbound_messages"),
	}
}
