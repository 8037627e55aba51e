package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/feichai0017/legal-intel/internal/models"
)

// ClassifierVersion changes whenever the keyword tables below change.
// Classification is deterministic given (content, version).
const ClassifierVersion = 2

// Validator performs structural validation and content-based
// classification of incoming documents.
type Validator struct {
	minLength int
}

func NewValidator(minLength int) *Validator {
	if minLength <= 0 {
		minLength = 100
	}
	return &Validator{minLength: minLength}
}

// Validate rejects empty, too-short or non-UTF8 content.
func (v *Validator) Validate(doc *models.Document) error {
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return fmt.Errorf("document %s has empty content: %w", doc.ID, models.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) < v.minLength {
		return fmt.Errorf("document %s content below minimum length %d: %w",
			doc.ID, v.minLength, models.ErrInvalidInput)
	}
	if !utf8.ValidString(doc.Content) {
		return fmt.Errorf("document %s content is not valid UTF-8: %w", doc.ID, models.ErrInvalidInput)
	}
	return nil
}

var typeKeywords = []struct {
	docType  models.DocumentType
	keywords []string
}{
	{models.TypeContract, []string{"agreement", "party of the first part", "hereinafter", "whereas", "consideration", "terms and conditions"}},
	{models.TypeCaseLaw, []string{"plaintiff", "defendant", "court", "opinion", "judgment", "appellant", "appellee"}},
	{models.TypeBrief, []string{"brief", "respectfully submitted", "argument", "statement of facts", "counsel"}},
	{models.TypeStatute, []string{"section", "subsection", "shall be amended", "public law", "enacted", "code"}},
}

// Classify assigns a document type from content keywords and computes
// a coarse priority hint for scheduling. The hint is not the final
// urgency flag; that comes out of analysis.
func (v *Validator) Classify(content string) (models.DocumentType, int) {
	lower := strings.ToLower(content)

	best := models.TypeOther
	bestScore := 0
	for _, entry := range typeKeywords {
		score := 0
		for _, kw := range entry.keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best = entry.docType
			bestScore = score
		}
	}

	return best, priorityHint(lower)
}

var urgentMarkers = []string{
	"emergency", "injunction", "temporary restraining order",
	"deadline", "statute of limitations", "immediate",
}

// priorityHint returns 1-10; urgent-looking documents schedule ahead.
func priorityHint(lower string) int {
	hint := 5
	for _, marker := range urgentMarkers {
		if strings.Contains(lower, marker) {
			hint += 2
		}
	}
	if hint > 10 {
		hint = 10
	}
	return hint
}
