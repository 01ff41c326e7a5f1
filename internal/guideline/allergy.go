package guideline

import (
	"strings"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// Fallback keyword lists used when the allergy_rules modifier is absent.
var (
	defaultSevereKeywords = []string{
		"anaphylaxis", "anaphylactic", "sjs", "stevens-johnson",
		"dress", "angioedema", "toxic epidermal",
	}
	defaultMildKeywords = []string{"rash", "itching", "hives", "mild"}
)

// ClassifyAllergySeverity maps free-text allergy history onto the allergy
// status partition. The inferred flag is true when penicillin was mentioned
// but no severity keyword matched, so the mild default was applied; callers
// surface that as a warning.
//
// Severe keywords are scanned before mild ones because severe reactions often
// co-mention mild symptoms ("rash progressing to anaphylaxis").
func (s *Snapshot) ClassifyAllergySeverity(text string) (status domain.AllergyStatus, inferred bool) {
	if strings.TrimSpace(text) == "" {
		return domain.NoAllergy, false
	}

	lower := strings.ToLower(text)
	if !strings.Contains(lower, "penicillin") &&
		!strings.Contains(lower, "pcn") &&
		!strings.Contains(lower, "pen ") {
		return domain.OtherAllergy, false
	}

	severe, mild := defaultSevereKeywords, defaultMildKeywords
	if rules := s.corpus.Modifiers.Allergy; rules != nil {
		if len(rules.Classification.Severe.Keywords) > 0 {
			severe = rules.Classification.Severe.Keywords
		}
		if len(rules.Classification.Mild.Keywords) > 0 {
			mild = rules.Classification.Mild.Keywords
		}
	}

	for _, kw := range severe {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return domain.SeverePCNAllergy, false
		}
	}
	for _, kw := range mild {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return domain.MildPCNAllergy, false
		}
	}

	// PCN mentioned, severity unclear. Mild is the conservative default: it
	// permits cephalosporins rather than blocking therapy outright.
	return domain.MildPCNAllergy, true
}
