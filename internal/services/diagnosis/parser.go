package diagnosis

import (
	"encoding/json"
	"strings"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
)

const (
	maxReferrals     = 3
	defaultReasoning = "Primary diagnosis"
)

var fenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// ParseResult extracts the diagnosis object from a model reply. Markdown
// fences and prose around the outermost braces are ignored. Referrals are
// truncated to three, and an empty list is padded with the primary diagnosis.
func ParseResult(model, text string) (*models.ICD10Result, error) {
	cleaned := fenceReplacer.Replace(text)

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil, models.NewMalformedResponseError(model, "no JSON object found", nil)
	}

	var result models.ICD10Result
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &result); err != nil {
		return nil, models.NewMalformedResponseError(model, "invalid JSON", err)
	}

	result.Code = strings.TrimSpace(result.Code)
	result.Description = strings.TrimSpace(result.Description)
	if result.Code == "" || result.Description == "" {
		return nil, models.NewMalformedResponseError(model, "missing code or description", nil)
	}

	if len(result.ProposedReferrals) > maxReferrals {
		result.ProposedReferrals = result.ProposedReferrals[:maxReferrals]
	}
	if len(result.ProposedReferrals) == 0 {
		result.ProposedReferrals = []models.Referral{primaryReferral(result)}
	}
	return &result, nil
}

func primaryReferral(r models.ICD10Result) models.Referral {
	reasoning := defaultReasoning
	switch {
	case r.Evidence != nil && r.Evidence.ClinicalReasoning != "":
		reasoning = r.Evidence.ClinicalReasoning
	case r.ClinicalNotes != "":
		reasoning = r.ClinicalNotes
	}
	return models.Referral{
		Code:              r.Code,
		Description:       r.Description,
		ClinicalReasoning: reasoning,
	}
}
