package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCaseLaw = `Case No. 23-CV-4512 in the District of Delaware.

Acme Corporation v. Initech LLC

SECTION I: BACKGROUND

The parties executed the agreement on January 15, 2024 for the sum of
$2,500,000. Responses are due by no later than March 1, 2024.

SECTION II: DISCUSSION

The court finds that the terms of the contract were breached.`

func TestExtractFullMetadata(t *testing.T) {
	e := NewExtractor()

	meta, degraded := e.Extract(sampleCaseLaw)
	assert.False(t, degraded)

	basic, ok := meta["basic"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "en", basic["language"])
	assert.Greater(t, basic["word_count"].(int), 0)

	legal, ok := meta["legal"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "23-CV-4512", legal["case_number"])
	assert.Equal(t, []string{"Acme Corporation", "Initech LLC"}, legal["parties"])
	assert.Equal(t, "Delaware", legal["jurisdiction"])
	assert.NotEmpty(t, legal["monetary_amounts"])

	structural, ok := meta["structural"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, structural["section_count"])

	temporal, ok := meta["temporal"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, temporal["dates"])
	assert.NotEmpty(t, temporal["deadlines"])
}

func TestExtractDegradedOnSparseContent(t *testing.T) {
	e := NewExtractor()

	// No legal or temporal signals at all: best-effort metadata comes
	// back flagged degraded, never an error.
	meta, degraded := e.Extract("plain text with nothing legal about it whatsoever")
	assert.True(t, degraded)
	assert.Contains(t, meta, "basic")
	assert.Contains(t, meta, "structural")
	assert.NotContains(t, meta, "legal")
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewExtractor()

	first, firstDegraded := e.Extract(sampleCaseLaw)
	second, secondDegraded := e.Extract(sampleCaseLaw)

	assert.Equal(t, first, second)
	assert.Equal(t, firstDegraded, secondDegraded)
}
