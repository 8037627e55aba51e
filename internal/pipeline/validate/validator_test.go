package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/legal-intel/internal/models"
)

func TestValidateRejectsBadContent(t *testing.T) {
	v := NewValidator(100)

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
		{"below minimum length", "This complaint is only fifty characters long here."},
		{"invalid utf8", "agreement " + string([]byte{0xff, 0xfe}) + strings.Repeat("whereas the parties agree ", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&models.Document{ID: "doc-1", Content: tt.content})
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput))
		})
	}
}

func TestValidateAcceptsLongContent(t *testing.T) {
	v := NewValidator(100)
	content := strings.Repeat("This agreement is made between the parties. ", 10)

	err := v.Validate(&models.Document{ID: "doc-1", Content: content})
	assert.NoError(t, err)
}

func TestValidateCountsRunesNotBytes(t *testing.T) {
	v := NewValidator(100)

	// 50 runes, 150 bytes: still below the minimum length.
	short := strings.Repeat("条", 50)
	err := v.Validate(&models.Document{ID: "doc-1", Content: short})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	long := strings.Repeat("条款", 60)
	assert.NoError(t, v.Validate(&models.Document{ID: "doc-2", Content: long}))
}

func TestClassifyByKeywords(t *testing.T) {
	v := NewValidator(100)

	tests := []struct {
		name     string
		content  string
		expected models.DocumentType
	}{
		{
			"contract",
			"This agreement is entered into by the parties, whereas in consideration of the mutual terms and conditions set forth hereinafter.",
			models.TypeContract,
		},
		{
			"case law",
			"The plaintiff filed suit against the defendant. The court issued its opinion and entered judgment for the appellee.",
			models.TypeCaseLaw,
		},
		{
			"brief",
			"STATEMENT OF FACTS. Counsel presents the following argument. This brief is respectfully submitted.",
			models.TypeBrief,
		},
		{
			"statute",
			"Section 12, subsection (a) of the code shall be amended as enacted by public law 94-123.",
			models.TypeStatute,
		},
		{
			"unclassifiable",
			"The quick brown fox jumps over a lazy dog near a riverbank at dawn without any particular purpose.",
			models.TypeOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docType, _ := v.Classify(tt.content)
			assert.Equal(t, tt.expected, docType)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	v := NewValidator(100)
	content := "This agreement between plaintiff and defendant, whereas the court held."

	first, firstHint := v.Classify(content)
	for i := 0; i < 5; i++ {
		docType, hint := v.Classify(content)
		assert.Equal(t, first, docType)
		assert.Equal(t, firstHint, hint)
	}
}

func TestPriorityHint(t *testing.T) {
	v := NewValidator(100)

	_, calm := v.Classify("This agreement covers routine maintenance services for the premises.")
	_, urgent := v.Classify("Motion for emergency injunction; the filing deadline is tomorrow and immediate relief is sought.")

	assert.Equal(t, 5, calm)
	assert.Greater(t, urgent, calm)
	assert.LessOrEqual(t, urgent, 10)
}
