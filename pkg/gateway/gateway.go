package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	cfg "github.com/feichai0017/legal-intel/config"
	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

// Capability names used for circuit breaking and logging.
const (
	CapabilityText      = "text"
	CapabilityEmbedding = "embedding"
)

// TextRequest asks the text-generation capability for output.
type TextRequest struct {
	Prompt    string
	MaxTokens int
}

// TextResponse carries generated text plus how many retries the call
// needed; callers treat retried results as lower-confidence.
type TextResponse struct {
	Text    string
	Retries int
}

// Client is the sole path to external AI capabilities.
type Client interface {
	GenerateText(ctx context.Context, req *TextRequest) (*TextResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider is a concrete AI backend. Implementations classify their
// failures by wrapping models.ErrTransientService or
// models.ErrPermanentService.
type Provider interface {
	GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gateway enforces the global rate limit, per-call timeout, retry with
// backoff and per-capability circuit breaking in front of a Provider.
// It keeps no caller state beyond a call's lifetime.
type Gateway struct {
	provider Provider
	limiter  *rate.Limiter
	breakers map[string]*breaker
	config   *cfg.GatewayConfig
	logger   logger.Logger
}

func New(provider Provider, config *cfg.GatewayConfig, log logger.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breakers: map[string]*breaker{
			CapabilityText:      newBreaker(config.BreakerThreshold, config.BreakerCooldown),
			CapabilityEmbedding: newBreaker(config.BreakerThreshold, config.BreakerCooldown),
		},
		config: config,
		logger: log,
	}
}

func (g *Gateway) GenerateText(ctx context.Context, req *TextRequest) (*TextResponse, error) {
	var text string
	retries, err := g.call(ctx, CapabilityText, func(callCtx context.Context) error {
		var callErr error
		text, callErr = g.provider.GenerateText(callCtx, req.Prompt, req.MaxTokens)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &TextResponse{Text: text, Retries: retries}, nil
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	_, err := g.call(ctx, CapabilityEmbedding, func(callCtx context.Context) error {
		var callErr error
		vector, callErr = g.provider.Embed(callCtx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// call runs fn under the gateway's resilience policy and returns how
// many retries were needed.
func (g *Gateway) call(ctx context.Context, capability string, fn func(context.Context) error) (int, error) {
	br := g.breakers[capability]
	if !br.Allow() {
		g.logger.Warn("Circuit breaker open, failing fast",
			logger.String("capability", capability),
		)
		return 0, fmt.Errorf("capability %s circuit open: %w", capability, models.ErrServiceUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(g.backoff(attempt)):
			case <-ctx.Done():
				return attempt - 1, fmt.Errorf("call cancelled: %w", ctx.Err())
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return attempt, fmt.Errorf("rate limiter wait: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
		start := time.Now()
		err := fn(callCtx)
		latency := time.Since(start)
		cancel()

		if err == nil {
			br.RecordSuccess()
			g.logger.Info("Gateway call succeeded",
				logger.String("capability", capability),
				logger.Duration("latency", latency),
				logger.Int("attempt", attempt),
			)
			return attempt, nil
		}

		br.RecordFailure()
		g.logger.Warn("Gateway call failed",
			logger.String("capability", capability),
			logger.Duration("latency", latency),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)

		lastErr = err
		// Per-call timeouts count as transient; everything else the
		// provider did not mark transient is permanent.
		if !models.Transient(err) && !errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}

	return g.config.MaxRetries, lastErr
}

// backoff computes exponential backoff with jitter for the given
// attempt (1-based).
func (g *Gateway) backoff(attempt int) time.Duration {
	d := time.Duration(float64(g.config.BackoffBase) * math.Pow(g.config.BackoffFactor, float64(attempt-1)))
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
