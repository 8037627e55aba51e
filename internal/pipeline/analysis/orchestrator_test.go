package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/legal-intel/internal/models"
	"github.com/feichai0017/legal-intel/pkg/gateway"
	"github.com/feichai0017/legal-intel/pkg/logger"
)

// opResponse scripts one operation of the fake gateway.
type opResponse struct {
	text    string
	retries int
	err     error
}

// fakeClient routes by prompt shape; each operation's prompt opens with
// a distinct instruction.
type fakeClient struct {
	summarize opResponse
	extract   opResponse
	urgency   opResponse
	forecast  opResponse
}

func (f *fakeClient) GenerateText(ctx context.Context, req *gateway.TextRequest) (*gateway.TextResponse, error) {
	var resp opResponse
	switch {
	case strings.HasPrefix(req.Prompt, "Summarize"):
		resp = f.summarize
	case strings.HasPrefix(req.Prompt, "Extract structured data"):
		resp = f.extract
	case strings.Contains(req.Prompt, "urgent attention"):
		resp = f.urgency
	case strings.HasPrefix(req.Prompt, "Forecast"):
		resp = f.forecast
	default:
		return nil, fmt.Errorf("unrecognized prompt: %.40s", req.Prompt)
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &gateway.TextResponse{Text: resp.text, Retries: resp.retries}, nil
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding not scripted")
}

func happyClient(horizon int) *fakeClient {
	points := make([]string, horizon)
	for i := range points {
		points[i] = `{"value":0.6,"lower_bound":0.4,"upper_bound":0.8}`
	}
	return &fakeClient{
		summarize: opResponse{text: "The parties dispute delivery terms under a supply agreement."},
		extract: opResponse{text: `{"case_number":"23-CV-1","parties":["Acme","Initech"],` +
			`"dates":["2024-01-15"],"monetary_amount":"$2,500,000","legal_issues":["breach"]}`},
		urgency:  opResponse{text: "false"},
		forecast: opResponse{text: "[" + strings.Join(points, ",") + "]"},
	}
}

func testDoc() *models.Document {
	return &models.Document{
		ID:      "doc-1",
		Type:    models.TypeContract,
		Content: "This agreement is entered into between Acme and Initech.",
	}
}

func newTestOrchestrator(client *fakeClient) *Orchestrator {
	return NewOrchestrator(client, Config{
		OperationTimeout: time.Second,
		DocumentDeadline: 5 * time.Second,
		ForecastHorizon:  3,
	}, logger.NewTestLogger())
}

func TestAnalyzeAllOperationsSucceed(t *testing.T) {
	o := newTestOrchestrator(happyClient(3))

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)

	require.NotNil(t, out.Summary)
	assert.Contains(t, *out.Summary, "supply agreement")

	require.NotNil(t, out.StructuredData)
	for _, key := range models.StructuredDataKeys {
		assert.Contains(t, out.StructuredData, key)
	}

	require.NotNil(t, out.IsUrgent)
	assert.False(t, *out.IsUrgent)

	assert.Len(t, out.Forecast, 3)
	assert.Len(t, out.ConfidenceScores, 4)
	assert.Empty(t, out.Errors)
}

func TestAnalyzeAbsorbsForecastFailure(t *testing.T) {
	client := happyClient(3)
	client.forecast = opResponse{err: fmt.Errorf("model refused: %w", models.ErrPermanentService)}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)

	assert.Nil(t, out.Forecast)
	assert.Contains(t, out.Errors, OpForecast)
	assert.NotContains(t, out.ConfidenceScores, OpForecast)
	assert.NotNil(t, out.Summary)
	assert.NotNil(t, out.StructuredData)
}

func TestAnalyzeSucceedsWithSummaryOnly(t *testing.T) {
	client := happyClient(3)
	client.extract = opResponse{err: fmt.Errorf("bad schema: %w", models.ErrPermanentService)}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)
	assert.NotNil(t, out.Summary)
	assert.Nil(t, out.StructuredData)
	assert.Contains(t, out.Errors, OpExtract)
}

func TestAnalyzeFailsWhenSummarizeAndExtractBothFail(t *testing.T) {
	client := happyClient(3)
	client.summarize = opResponse{err: fmt.Errorf("down: %w", models.ErrPermanentService)}
	client.extract = opResponse{err: fmt.Errorf("down: %w", models.ErrPermanentService)}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, models.ErrPermanentService))
}

func TestAnalyzeTotalTransientFailureStaysTransient(t *testing.T) {
	client := happyClient(3)
	client.summarize = opResponse{err: fmt.Errorf("rate limited: %w", models.ErrTransientService)}
	client.extract = opResponse{err: fmt.Errorf("upstream 503: %w", models.ErrTransientService)}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, models.ErrTransientService))
	assert.False(t, errors.Is(err, models.ErrPermanentService))
}

func TestAnalyzeMixedTotalFailureIsPermanent(t *testing.T) {
	client := happyClient(3)
	client.summarize = opResponse{err: fmt.Errorf("rate limited: %w", models.ErrTransientService)}
	client.extract = opResponse{err: fmt.Errorf("bad schema: %w", models.ErrPermanentService)}
	o := newTestOrchestrator(client)

	// A permanent extract failure will not heal on retry; only a fully
	// transient outage keeps the document retryable.
	_, err := o.Analyze(context.Background(), testDoc(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPermanentService))
}

func TestExtractFillsMissingKeysWithNull(t *testing.T) {
	client := happyClient(3)
	client.extract = opResponse{text: "```json\n{\"case_number\":\"23-CV-1\",\"parties\":[\"Acme\",\"Initech\"]}\n```"}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)
	require.NotNil(t, out.StructuredData)

	assert.Equal(t, "23-CV-1", out.StructuredData["case_number"])
	assert.Nil(t, out.StructuredData["dates"])
	assert.Nil(t, out.StructuredData["monetary_amount"])
	assert.Nil(t, out.StructuredData["legal_issues"])

	// 2 of 5 keys populated.
	assert.InDelta(t, 0.66, out.ConfidenceScores[OpExtract], 0.001)
}

func TestForecastWrongLengthRejected(t *testing.T) {
	client := happyClient(3)
	client.forecast = opResponse{text: `[{"value":0.5,"lower_bound":0.4,"upper_bound":0.6}]`}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)
	assert.Nil(t, out.Forecast)
	assert.Contains(t, out.Errors[OpForecast], "length")
}

func TestForecastRepairsInvertedBounds(t *testing.T) {
	client := happyClient(3)
	client.forecast = opResponse{text: `[
		{"value":0.5,"lower_bound":0.7,"upper_bound":0.9},
		{"value":0.5,"lower_bound":0.2,"upper_bound":0.3},
		{"value":0.5,"lower_bound":0.4,"upper_bound":0.6}
	]`}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)
	require.Len(t, out.Forecast, 3)

	for i, p := range out.Forecast {
		assert.LessOrEqual(t, p.LowerBound, p.Value, "point %d", i)
		assert.GreaterOrEqual(t, p.UpperBound, p.Value, "point %d", i)
		if i > 0 {
			assert.True(t, out.Forecast[i-1].Timestamp.Before(p.Timestamp))
		}
	}
}

func TestRetriedCallsLowerConfidence(t *testing.T) {
	client := happyClient(3)
	client.summarize.retries = 2
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, out.ConfidenceScores[OpSummarize], 0.001)
}

func TestNonBooleanUrgencyRejected(t *testing.T) {
	client := happyClient(3)
	client.urgency = opResponse{text: "perhaps"}
	o := newTestOrchestrator(client)

	out, err := o.Analyze(context.Background(), testDoc(), nil)
	require.NoError(t, err)
	assert.Nil(t, out.IsUrgent)
	assert.Contains(t, out.Errors, OpUrgency)
}
