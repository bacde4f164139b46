package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DatabaseURL        string
	WaveCapacity       int
	OverlapMinutes     int
	RateLimitPerMinute int
	RateLimitBurst     int
	RelayInterval      time.Duration
	NotifyInterval     time.Duration
	NotifyBatchSize    int
	NotifyProvider     string
	StatusURL          string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		WaveCapacity:       readInt("WAVE_CAPACITY", 3),
		OverlapMinutes:     readInt("OVERLAP_MINUTES", 10),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		RelayInterval:      readDurationSeconds("RELAY_INTERVAL_SECONDS", 1),
		NotifyInterval:     readDurationSeconds("NOTIFY_INTERVAL_SECONDS", 5),
		NotifyBatchSize:    readInt("NOTIFY_BATCH_SIZE", 50),
		NotifyProvider:     os.Getenv("SMS_PROVIDER"),
		StatusURL:          os.Getenv("STATUS_URL"),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
