package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (emergency push notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Queue configuration
	MaxQueuesPerDoctor  int
	QueueUpdateInterval time.Duration

	// Wait-time estimation constants
	AvgConsultationTime time.Duration
	AvgTriageTime       time.Duration

	// Connection configuration
	ConnIdleTimeout time.Duration
	WriteTimeout    time.Duration
	SendBufferSize  int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8089"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Queue
		MaxQueuesPerDoctor:  getEnvAsInt("MAX_QUEUES_PER_DOCTOR", 500),
		QueueUpdateInterval: getEnvAsDuration("QUEUE_UPDATE_INTERVAL", "5s"),

		// Estimation
		AvgConsultationTime: getEnvAsDuration("AVG_CONSULTATION_TIME", "15m"),
		AvgTriageTime:       getEnvAsDuration("AVG_TRIAGE_TIME", "5m"),

		// Connections
		ConnIdleTimeout: getEnvAsDuration("CONN_IDLE_TIMEOUT", "60s"),
		WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", "10s"),
		SendBufferSize:  getEnvAsInt("SEND_BUFFER_SIZE", 64),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
