package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka sink for cluster reports. Disabled by default; reports go to
	// stdout as JSON lines when no sink topic is configured.
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool

	// Correlation parameters.
	WindowLengthNs int64
	MinSensors     int

	// Decimated marks the input captures as real-time decimated data, which
	// forces the forward boundary search and span-derived record counts.
	Decimated bool

	// WorkerCount bounds how many capture files are scanned concurrently.
	WorkerCount int

	// RosterPath points at the sensor location file; optional.
	RosterPath string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	windowLength, err := parseInt64Env("WINDOW_LENGTH_NS", 80000)
	if err != nil {
		return nil, err
	}
	if windowLength <= 0 {
		return nil, errors.New("WINDOW_LENGTH_NS must be positive")
	}

	minSensors, err := parseIntEnv("MIN_SENSORS", 5)
	if err != nil {
		return nil, err
	}
	if minSensors < 1 {
		return nil, errors.New("MIN_SENSORS must be at least 1")
	}

	workerCount, err := parseIntEnv("WORKER_COUNT", 4)
	if err != nil {
		return nil, err
	}
	if workerCount < 1 {
		return nil, errors.New("WORKER_COUNT must be at least 1")
	}

	sinkTopic := os.Getenv("KAFKA_SINK_TOPIC")
	kafkaEnabled := sinkTopic != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sinkTopic,
		KafkaEnabled:   kafkaEnabled,

		WindowLengthNs: windowLength,
		MinSensors:     minSensors,
		Decimated:      os.Getenv("DECIMATED") == "true",
		WorkerCount:    workerCount,
		RosterPath:     os.Getenv("ROSTER_PATH"),
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is not set")
		}
	}

	return cfg, nil
}

func parseIntEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseInt64Env(key string, def int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
