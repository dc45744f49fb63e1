// Package config reads the broker's runtime configuration from the
// environment, following the getEnv/getEnvInt pattern used throughout the
// teacher's cmd/main.go wiring.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/huziichuk/bcs-broker/internal/catalog"
)

// Config holds all broker startup configuration.
type Config struct {
	Addr         string
	LogLevel     string
	LogPretty    bool
	HelloTimeout time.Duration
	SessionTTL   time.Duration // 0 disables TTL eviction
	Videos       []string
}

// Load reads configuration from the environment, applying the defaults
// described in the broker's ambient configuration surface.
func Load() Config {
	return Config{
		Addr:         getEnv("BROKER_ADDR", ":8080"),
		LogLevel:     getEnv("BROKER_LOG_LEVEL", "info"),
		LogPretty:    getEnvBool("BROKER_LOG_PRETTY", false),
		HelloTimeout: time.Duration(getEnvInt("BROKER_HELLO_TIMEOUT_MS", 3000)) * time.Millisecond,
		SessionTTL:   time.Duration(getEnvInt("BROKER_SESSION_TTL_SECONDS", 0)) * time.Second,
		Videos:       getEnvList("BROKER_VIDEO_CATALOGUE", catalog.DefaultVideos),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
