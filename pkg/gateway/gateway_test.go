package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/feichai0017/legal-intel/config"
	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

// scriptedProvider returns the scripted error for each successive call,
// succeeding once the script runs out.
type scriptedProvider struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (p *scriptedProvider) next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx < len(p.errs) {
		return p.errs[idx]
	}
	return nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := p.next(); err != nil {
		return "", err
	}
	return "generated text", nil
}

func (p *scriptedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func testGatewayConfig() *cfg.GatewayConfig {
	return &cfg.GatewayConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CallTimeout:       time.Second,
		MaxRetries:        3,
		BackoffBase:       time.Millisecond,
		BackoffFactor:     2,
		BreakerThreshold:  2,
		BreakerCooldown:   40 * time.Millisecond,
	}
}

func transientErr() error {
	return fmt.Errorf("upstream 503: %w", models.ErrTransientService)
}

func permanentErr() error {
	return fmt.Errorf("upstream 400: %w", models.ErrPermanentService)
}

func TestRetriesTransientFailure(t *testing.T) {
	provider := &scriptedProvider{errs: []error{transientErr()}}
	gw := New(provider, testGatewayConfig(), logger.NewTestLogger())

	resp, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello", MaxTokens: 16})
	require.NoError(t, err)
	assert.Equal(t, "generated text", resp.Text)
	assert.Equal(t, 1, resp.Retries)
	assert.Equal(t, 2, provider.callCount())
}

func TestPermanentFailureNotRetried(t *testing.T) {
	provider := &scriptedProvider{errs: []error{permanentErr(), permanentErr()}}
	gw := New(provider, testGatewayConfig(), logger.NewTestLogger())

	_, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPermanentService))
	assert.Equal(t, 1, provider.callCount())
}

func TestRetriesExhausted(t *testing.T) {
	config := testGatewayConfig()
	config.MaxRetries = 2
	provider := &scriptedProvider{errs: []error{transientErr(), transientErr(), transientErr()}}
	gw := New(provider, config, logger.NewTestLogger())

	_, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransientService))
	assert.Equal(t, 3, provider.callCount())
}

func TestBreakerFailsFastAfterThreshold(t *testing.T) {
	config := testGatewayConfig()
	config.MaxRetries = 0
	provider := &scriptedProvider{errs: []error{permanentErr(), permanentErr(), permanentErr()}}
	gw := New(provider, config, logger.NewTestLogger())

	for i := 0; i < config.BreakerThreshold; i++ {
		_, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
		require.Error(t, err)
	}

	_, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrServiceUnavailable))
	// The open breaker never reached the provider.
	assert.Equal(t, config.BreakerThreshold, provider.callCount())
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	config := testGatewayConfig()
	config.MaxRetries = 0
	provider := &scriptedProvider{errs: []error{permanentErr(), permanentErr()}}
	gw := New(provider, config, logger.NewTestLogger())

	for i := 0; i < config.BreakerThreshold; i++ {
		_, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
		require.Error(t, err)
	}

	time.Sleep(config.BreakerCooldown + 10*time.Millisecond)

	resp, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "generated text", resp.Text)
}

func TestBreakersArePerCapability(t *testing.T) {
	config := testGatewayConfig()
	config.MaxRetries = 0
	provider := &scriptedProvider{errs: []error{permanentErr(), permanentErr()}}
	gw := New(provider, config, logger.NewTestLogger())

	for i := 0; i < config.BreakerThreshold; i++ {
		_, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
		require.Error(t, err)
	}

	// Text is open, embedding is not.
	_, err := gw.GenerateText(context.Background(), &TextRequest{Prompt: "hello"})
	assert.True(t, errors.Is(err, models.ErrServiceUnavailable))

	vector, err := gw.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Len(t, vector, 3)
}

func TestCancelledContextStopsRetries(t *testing.T) {
	config := testGatewayConfig()
	config.BackoffBase = 50 * time.Millisecond
	provider := &scriptedProvider{errs: []error{transientErr(), transientErr(), transientErr(), transientErr()}}
	gw := New(provider, config, logger.NewTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := gw.GenerateText(ctx, &TextRequest{Prompt: "hello"})
	require.Error(t, err)
	assert.Less(t, provider.callCount(), 4)
}
