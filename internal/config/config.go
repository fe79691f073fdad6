package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort   string
	DBDSN     string
	JWTSecret string
	RedisAddr string

	// chat tunables
	PageSize          int
	TypingTTL         time.Duration
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
}

func Load() Config {
	pageSize, _ := strconv.Atoi(get("CHAT_PAGE_SIZE", "50"))
	return Config{
		AppPort:   get("APP_PORT", "8080"),
		DBDSN:     must("DB_DSN"),
		JWTSecret: must("JWT_SECRET"),
		RedisAddr: get("REDIS_ADDR", "localhost:6379"),

		PageSize:          pageSize,
		TypingTTL:         getDuration("CHAT_TYPING_TTL", 3*time.Second),
		HeartbeatInterval: getDuration("CHAT_HEARTBEAT", 4*time.Second),
		ReconnectDelay:    getDuration("CHAT_RECONNECT_DELAY", 5*time.Second),
	}
}

func get(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
