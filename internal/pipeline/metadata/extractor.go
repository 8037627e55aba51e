package metadata

import (
	"regexp"
	"strings"
	"unicode"
)

// ExtractionVersion changes whenever the extraction rules change.
// Extraction is a pure function of (content, version).
const ExtractionVersion = 3

// Extractor pulls basic, legal, structural and temporal metadata from
// a validated document. It never fails the pipeline: a sub-extractor
// that produces nothing is skipped and the result is flagged degraded,
// which lowers downstream confidence scores.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

var (
	caseNumberRe = regexp.MustCompile(`(?i)(?:case|docket)\s+no\.?\s*([0-9]{1,4}[-:][A-Za-z0-9-]+)`)
	partiesRe    = regexp.MustCompile(`([A-Z][A-Za-z.,'& ]{2,60})\s+v\.?\s+([A-Z][A-Za-z.,'& ]{2,60})`)
	dateRe       = regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	deadlineRe   = regexp.MustCompile(`(?i)(?:no later than|on or before|due by|deadline of)\s+([^.;\n]{4,60})`)
	moneyRe      = regexp.MustCompile(`\$\s?[0-9][0-9,]*(?:\.[0-9]{2})?(?:\s?(?:million|billion))?`)
	headingRe    = regexp.MustCompile(`(?m)^\s*(?:ARTICLE|SECTION|Section|Article)\s+[IVXLC0-9]+[.: ]`)
	jurisdictRe  = regexp.MustCompile(`(?i)(?:district of|state of|commonwealth of)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
)

// Extract returns a best-effort metadata map plus a degraded flag.
func (e *Extractor) Extract(content string) (map[string]interface{}, bool) {
	meta := make(map[string]interface{})
	degraded := false

	extractors := []struct {
		name string
		fn   func(string) (interface{}, bool)
	}{
		{"basic", extractBasic},
		{"legal", extractLegal},
		{"structural", extractStructural},
		{"temporal", extractTemporal},
	}

	for _, ex := range extractors {
		value, ok := ex.fn(content)
		if !ok {
			degraded = true
			continue
		}
		meta[ex.name] = value
	}

	meta["extraction_version"] = ExtractionVersion
	return meta, degraded
}

func extractBasic(content string) (interface{}, bool) {
	return map[string]interface{}{
		"size_bytes": len(content),
		"word_count": len(strings.Fields(content)),
		"language":   detectLanguage(content),
		"format":     detectFormat(content),
	}, true
}

func extractLegal(content string) (interface{}, bool) {
	legal := make(map[string]interface{})

	if m := partiesRe.FindStringSubmatch(content); m != nil {
		legal["parties"] = []string{strings.TrimSpace(m[1]), strings.TrimSpace(m[2])}
	}
	if m := caseNumberRe.FindStringSubmatch(content); m != nil {
		legal["case_number"] = m[1]
	}
	if m := jurisdictRe.FindStringSubmatch(content); m != nil {
		legal["jurisdiction"] = strings.TrimSpace(m[1])
	}
	if amounts := moneyRe.FindAllString(content, 10); len(amounts) > 0 {
		legal["monetary_amounts"] = amounts
	}

	return legal, len(legal) > 0
}

func extractStructural(content string) (interface{}, bool) {
	headings := headingRe.FindAllString(content, 100)
	trimmed := make([]string, 0, len(headings))
	for _, h := range headings {
		trimmed = append(trimmed, strings.TrimSpace(h))
	}

	return map[string]interface{}{
		"section_count": len(trimmed),
		"headings":      trimmed,
		"paragraphs":    strings.Count(content, "\n\n") + 1,
	}, true
}

func extractTemporal(content string) (interface{}, bool) {
	temporal := make(map[string]interface{})

	if dates := dateRe.FindAllString(content, 20); len(dates) > 0 {
		temporal["dates"] = dates
	}
	if deadlines := deadlineRe.FindAllStringSubmatch(content, 10); len(deadlines) > 0 {
		found := make([]string, 0, len(deadlines))
		for _, d := range deadlines {
			found = append(found, strings.TrimSpace(d[1]))
		}
		temporal["deadlines"] = found
	}

	return temporal, len(temporal) > 0
}

var englishMarkers = []string{" the ", " of ", " and ", " to ", " in "}

// detectLanguage is a cheap heuristic; anything not obviously English
// is reported unknown rather than guessed.
func detectLanguage(content string) string {
	lower := strings.ToLower(content)
	hits := 0
	for _, marker := range englishMarkers {
		if strings.Contains(lower, marker) {
			hits++
		}
	}
	if hits >= 3 {
		return "en"
	}
	return "unknown"
}

func detectFormat(content string) string {
	printable := 0
	for _, r := range content {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if printable == len([]rune(content)) {
		return "plain_text"
	}
	return "mixed"
}
