package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/pkg/gateway"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

// Operation names, used as keys in confidence scores and error
// annotations.
const (
	OpSummarize = "summarize"
	OpExtract   = "extract"
	OpUrgency   = "classify_urgency"
	OpForecast  = "forecast"
)

// Output collects the four analysis operations for one document. Nil
// fields mark operations that failed permanently; Errors records why.
type Output struct {
	Summary          *string
	StructuredData   map[string]interface{}
	IsUrgent         *bool
	Forecast         []models.ForecastPoint
	ConfidenceScores map[string]float64
	Errors           map[string]string
}

// Config bounds orchestrator behavior.
type Config struct {
	OperationTimeout time.Duration
	DocumentDeadline time.Duration
	ForecastHorizon  int
	MaxSummaryTokens int
}

// Orchestrator fans the four analysis operations out against the
// gateway concurrently and fans their results back in. A single
// failing operation is absorbed as a null sub-result; the document
// fails only when both summarize and extract fail.
type Orchestrator struct {
	gw     gateway.Client
	config Config
	logger logger.Logger
}

func NewOrchestrator(gw gateway.Client, config Config, log logger.Logger) *Orchestrator {
	if config.ForecastHorizon <= 0 {
		config.ForecastHorizon = 7
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = 30 * time.Second
	}
	if config.DocumentDeadline <= 0 {
		config.DocumentDeadline = 2 * time.Minute
	}
	if config.MaxSummaryTokens <= 0 {
		config.MaxSummaryTokens = 512
	}
	return &Orchestrator{gw: gw, config: config, logger: log}
}

// Analyze runs all four operations for one document. The returned
// error is non-nil only when the document as a whole must fail.
func (o *Orchestrator) Analyze(ctx context.Context, doc *models.Document, meta map[string]interface{}) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.DocumentDeadline)
	defer cancel()

	out := &Output{
		ConfidenceScores: make(map[string]float64),
		Errors:           make(map[string]string),
	}
	var mu sync.Mutex
	opErrs := make(map[string]error)

	record := func(op string, confidence float64, err error, apply func()) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			opErrs[op] = err
			out.Errors[op] = err.Error()
			o.logger.Warn("Analysis operation failed",
				logger.String("documentId", doc.ID),
				logger.String("operation", op),
				logger.Error(err),
			)
			return
		}
		out.ConfidenceScores[op] = confidence
		apply()
	}

	// The four operations are independent; none may cancel its
	// siblings, so every goroutine returns nil.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, confidence, err := o.summarize(gctx, doc)
		record(OpSummarize, confidence, err, func() { out.Summary = &summary })
		return nil
	})

	g.Go(func() error {
		data, confidence, err := o.extract(gctx, doc, meta)
		record(OpExtract, confidence, err, func() { out.StructuredData = data })
		return nil
	})

	g.Go(func() error {
		urgent, confidence, err := o.classifyUrgency(gctx, doc, meta)
		record(OpUrgency, confidence, err, func() { out.IsUrgent = &urgent })
		return nil
	})

	g.Go(func() error {
		forecast, confidence, err := o.forecast(gctx, doc)
		record(OpForecast, confidence, err, func() { out.Forecast = forecast })
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if out.Summary == nil && out.StructuredData == nil {
		// Keep the failure retryable when both ops died transiently
		// (outage, rate limiting); only permanent failures exhaust the
		// document.
		sentinel := models.ErrPermanentService
		if retryableOpErr(opErrs[OpSummarize]) && retryableOpErr(opErrs[OpExtract]) {
			sentinel = models.ErrTransientService
		}
		return nil, fmt.Errorf("summarize and extract both failed for document %s: %w",
			doc.ID, sentinel)
	}

	return out, nil
}

// retryableOpErr mirrors the gateway's transiency rule: marked
// transient, or a deadline the operation ran into.
func retryableOpErr(err error) bool {
	return models.Transient(err) || errors.Is(err, context.DeadlineExceeded)
}

func (o *Orchestrator) summarize(ctx context.Context, doc *models.Document) (string, float64, error) {
	opCtx, cancel := context.WithTimeout(ctx, o.config.OperationTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Summarize the following %s in at most 200 words. Reply with the summary only.\n\n%s",
		doc.Type, doc.Content,
	)
	resp, err := o.gw.GenerateText(opCtx, &gateway.TextRequest{
		Prompt:    prompt,
		MaxTokens: o.config.MaxSummaryTokens,
	})
	if err != nil {
		return "", 0, err
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", 0, fmt.Errorf("empty summary: %w", models.ErrPermanentService)
	}
	return summary, retryAdjusted(0.9, resp.Retries), nil
}

func (o *Orchestrator) extract(ctx context.Context, doc *models.Document, meta map[string]interface{}) (map[string]interface{}, float64, error) {
	opCtx, cancel := context.WithTimeout(ctx, o.config.OperationTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Extract structured data from the following %s as a JSON object with exactly the keys "+
			"%s. Use null for fields you cannot extract. Reply with JSON only.%s\n\n%s",
		doc.Type, strings.Join(models.StructuredDataKeys, ", "), metadataHint(meta), doc.Content,
	)
	resp, err := o.gw.GenerateText(opCtx, &gateway.TextRequest{Prompt: prompt, MaxTokens: 1024})
	if err != nil {
		return nil, 0, err
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(extractJSON(resp.Text), &parsed); err != nil {
		return nil, 0, fmt.Errorf("extraction schema violation: %v: %w", err, models.ErrPermanentService)
	}

	// Schema completeness: every key present, null when unextractable.
	data := make(map[string]interface{}, len(models.StructuredDataKeys))
	populated := 0
	for _, key := range models.StructuredDataKeys {
		value, ok := parsed[key]
		if !ok || value == nil {
			data[key] = nil
			continue
		}
		data[key] = value
		populated++
	}

	confidence := 0.5 + 0.4*float64(populated)/float64(len(models.StructuredDataKeys))
	return data, retryAdjusted(confidence, resp.Retries), nil
}

func (o *Orchestrator) classifyUrgency(ctx context.Context, doc *models.Document, meta map[string]interface{}) (bool, float64, error) {
	opCtx, cancel := context.WithTimeout(ctx, o.config.OperationTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Does the following %s require urgent attention (imminent deadlines, injunctions, "+
			"emergency relief)? Reply with exactly true or false.%s\n\n%s",
		doc.Type, metadataHint(meta), doc.Content,
	)
	resp, err := o.gw.GenerateText(opCtx, &gateway.TextRequest{Prompt: prompt, MaxTokens: 8})
	if err != nil {
		return false, 0, err
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Text))
	switch {
	case strings.HasPrefix(answer, "true"):
		return true, retryAdjusted(0.9, resp.Retries), nil
	case strings.HasPrefix(answer, "false"):
		return false, retryAdjusted(0.9, resp.Retries), nil
	default:
		return false, 0, fmt.Errorf("urgency answer %q is not boolean: %w", answer, models.ErrPermanentService)
	}
}

// forecastPointWire is the model-facing forecast schema; timestamps
// are assigned locally so the horizon is always contiguous.
type forecastPointWire struct {
	Value      float64 `json:"value"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

func (o *Orchestrator) forecast(ctx context.Context, doc *models.Document) ([]models.ForecastPoint, float64, error) {
	opCtx, cancel := context.WithTimeout(ctx, o.config.OperationTimeout)
	defer cancel()

	horizon := o.config.ForecastHorizon
	prompt := fmt.Sprintf(
		"Forecast the likelihood of a favorable outcome for the following %s over the next "+
			"%d periods. Reply with a JSON array of exactly %d objects, each with numeric keys "+
			"value, lower_bound and upper_bound in [0,1], lower_bound <= value <= upper_bound.\n\n%s",
		doc.Type, horizon, horizon, doc.Content,
	)
	resp, err := o.gw.GenerateText(opCtx, &gateway.TextRequest{Prompt: prompt, MaxTokens: 1024})
	if err != nil {
		return nil, 0, err
	}

	var wire []forecastPointWire
	if err := json.Unmarshal(extractJSON(resp.Text), &wire); err != nil {
		return nil, 0, fmt.Errorf("forecast schema violation: %v: %w", err, models.ErrPermanentService)
	}
	if len(wire) != horizon {
		return nil, 0, fmt.Errorf("forecast length %d, want %d: %w",
			len(wire), horizon, models.ErrPermanentService)
	}

	base := time.Now().UTC().Truncate(24 * time.Hour)
	points := make([]models.ForecastPoint, horizon)
	for i, p := range wire {
		lower, upper := p.LowerBound, p.UpperBound
		// Repair inverted bounds instead of discarding the forecast.
		if lower > p.Value {
			lower = p.Value
		}
		if upper < p.Value {
			upper = p.Value
		}
		points[i] = models.ForecastPoint{
			Timestamp:  base.Add(time.Duration(i+1) * 24 * time.Hour),
			Value:      p.Value,
			LowerBound: lower,
			UpperBound: upper,
		}
	}

	return points, retryAdjusted(0.8, resp.Retries), nil
}

// retryAdjusted lowers a confidence score when the gateway had to
// retry the call; a retried answer is treated as less deterministic.
func retryAdjusted(confidence float64, retries int) float64 {
	adjusted := confidence - 0.15*float64(retries)
	if adjusted < 0.1 {
		return 0.1
	}
	return adjusted
}

// metadataHint surfaces extracted metadata to the prompt without
// dumping the whole map.
func metadataHint(meta map[string]interface{}) string {
	if meta == nil {
		return ""
	}
	legal, ok := meta["legal"].(map[string]interface{})
	if !ok || len(legal) == 0 {
		return ""
	}
	hint, err := json.Marshal(legal)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("\nKnown metadata: %s", hint)
}

// extractJSON trims markdown fences and surrounding prose so the
// payload can be unmarshalled directly.
func extractJSON(text string) []byte {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return []byte(text)
	}
	end := strings.LastIndexAny(text, "]}")
	if end < start {
		return []byte(text)
	}
	return []byte(text[start : end+1])
}
