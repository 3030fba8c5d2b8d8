package tools

import (
	"context"
	"regexp"
	"strings"
)

// DocumentTools checks document completeness and runs lightweight
// authenticity heuristics for the document validator.
type DocumentTools struct {
	repo *Repository
}

func NewDocumentTools(repo *Repository) *DocumentTools {
	return &DocumentTools{repo: repo}
}

// CheckDocumentCompleteness compares provided documents against the
// required set, case-insensitively.
func (d *DocumentTools) CheckDocumentCompleteness(ctx context.Context, required, provided []string) (map[string]any, error) {
	providedSet := make(map[string]bool, len(provided))
	for _, doc := range provided {
		providedSet[strings.ToLower(strings.TrimSpace(doc))] = true
	}
	missing := []string{}
	for _, doc := range required {
		if !providedSet[strings.ToLower(strings.TrimSpace(doc))] {
			missing = append(missing, strings.ToLower(strings.TrimSpace(doc)))
		}
	}
	return map[string]any{
		"required_count":    len(required),
		"provided_count":    len(provided),
		"missing_documents": missing,
		"complete":          len(missing) == 0,
	}, nil
}

var currencyPattern = regexp.MustCompile(`\$\d+[\d,.]*`)

// ExtractDocumentMetadata extracts lightweight metadata from a submitted
// document.
func (d *DocumentTools) ExtractDocumentMetadata(ctx context.Context, documentName string) (map[string]any, error) {
	contents, err := d.repo.LoadSubmission(documentName)
	if err != nil {
		return map[string]any{
			"document": documentName,
			"missing":  true,
			"error":    err.Error(),
		}, nil
	}
	lower := strings.ToLower(contents)
	return map[string]any{
		"document":           documentName,
		"line_count":         len(strings.Split(contents, "\n")),
		"character_count":    len(contents),
		"currency_mentions":  currencyPattern.FindAllString(contents, -1),
		"contains_signature": strings.Contains(lower, "signature"),
	}, nil
}

// ValidateDocumentAuthenticity scores a document with structural
// heuristics. A missing document scores zero.
func (d *DocumentTools) ValidateDocumentAuthenticity(ctx context.Context, documentName string) (map[string]any, error) {
	contents, err := d.repo.LoadSubmission(documentName)
	if err != nil {
		return map[string]any{
			"document":           documentName,
			"missing":            true,
			"authenticity_score": 0,
			"notes":              err.Error(),
		}, nil
	}
	lower := strings.ToLower(contents)
	score := 50
	if strings.Contains(lower, "license:") {
		score += 15
	}
	if strings.Contains(lower, "estimate number") || strings.Contains(lower, "report") {
		score += 15
	}
	if strings.Contains(lower, "signature") {
		score += 10
	}
	if strings.Contains(contents, "__") {
		score -= 5
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return map[string]any{
		"document":           documentName,
		"authenticity_score": score,
		"notes":              "Heuristic evaluation only",
	}, nil
}
