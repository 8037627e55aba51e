package config

import (
	"sync"
	"time"
)

var (
	gatewayOnce   sync.Once
	gatewayConfig *GatewayConfig
)

// GatewayConfig controls the external AI gateway: provider access,
// rate limiting, retry and circuit breaking.
type GatewayConfig struct {
	APIKey         string
	BaseURL        string
	TextModel      string
	EmbeddingModel string

	RequestsPerSecond float64
	Burst             int
	CallTimeout       time.Duration

	MaxRetries    int
	BackoffBase   time.Duration
	BackoffFactor float64

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func GetGatewayConfig() *GatewayConfig {
	gatewayOnce.Do(func() {
		loadEnv()

		gatewayConfig = &GatewayConfig{
			APIKey:         getEnv("AI_API_KEY", ""),
			BaseURL:        getEnv("AI_BASE_URL", ""),
			TextModel:      getEnv("AI_TEXT_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("AI_EMBEDDING_MODEL", "text-embedding-3-small"),

			RequestsPerSecond: getEnvFloat("GATEWAY_RPS", 10),
			Burst:             getEnvInt("GATEWAY_BURST", 20),
			CallTimeout:       getEnvDuration("GATEWAY_CALL_TIMEOUT", 30*time.Second),

			MaxRetries:    getEnvInt("GATEWAY_MAX_RETRIES", 3),
			BackoffBase:   getEnvDuration("GATEWAY_BACKOFF_BASE", 500*time.Millisecond),
			BackoffFactor: getEnvFloat("GATEWAY_BACKOFF_FACTOR", 2),

			BreakerThreshold: getEnvInt("GATEWAY_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  getEnvDuration("GATEWAY_BREAKER_COOLDOWN", 30*time.Second),
		}
	})
	return gatewayConfig
}
