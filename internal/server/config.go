package server

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration from environment variables.
type Config struct {
	Port           string
	AWSRegion      string
	AWSEndpointURL string // For LocalStack
	DynamoDBTable  string
	NotifyQueueURL string

	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	BatchSize       int
	Workers         int
	ClaimTimeout    time.Duration
	CycleInterval   time.Duration
	CycleCron       string
	ReclaimInterval time.Duration

	APIKey              string
	AdminKey            string
	AllowInsecureNoAuth bool

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Port:           getEnv("RETRYD_PORT", "8080"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""), // Empty = real AWS
		DynamoDBTable:  getEnv("DYNAMODB_TABLE", "retryd-items"),
		NotifyQueueURL: getEnv("RETRYD_NOTIFY_QUEUE_URL", ""),

		ProviderBaseURL: getEnv("RETRYD_PROVIDER_URL", "http://localhost:8090"),
		ProviderAPIKey:  getEnv("RETRYD_PROVIDER_API_KEY", ""),
		ProviderTimeout: getEnvDuration("RETRYD_PROVIDER_TIMEOUT", 30*time.Second),

		BatchSize:       getEnvInt("RETRYD_BATCH_SIZE", 10),
		Workers:         getEnvInt("RETRYD_WORKERS", 4),
		ClaimTimeout:    getEnvDuration("RETRYD_CLAIM_TIMEOUT", 5*time.Minute),
		CycleInterval:   getEnvDuration("RETRYD_CYCLE_INTERVAL", 15*time.Second),
		CycleCron:       getEnv("RETRYD_CYCLE_CRON", ""),
		ReclaimInterval: getEnvDuration("RETRYD_RECLAIM_INTERVAL", time.Minute),

		APIKey:              getEnv("RETRYD_API_KEY", ""),
		AdminKey:            getEnv("RETRYD_ADMIN_KEY", ""),
		AllowInsecureNoAuth: getEnvBool("RETRYD_ALLOW_INSECURE_NO_AUTH", false),

		ReadTimeout:     getEnvDuration("RETRYD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("RETRYD_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("RETRYD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("RETRYD_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
