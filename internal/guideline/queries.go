package guideline

import (
	"fmt"
	"strings"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// Snapshot is one immutable corpus view. All methods are pure reads.
type Snapshot struct {
	corpus *domain.Corpus
}

// Corpus exposes the underlying documents for diagnostics and serialization.
func (s *Snapshot) Corpus() *domain.Corpus {
	return s.corpus
}

// Version returns the corpus version string from index.json.
func (s *Snapshot) Version() string {
	return s.corpus.Index.Version
}

// Violations returns the cross-reference validation report from load time.
func (s *Snapshot) Violations() []string {
	return s.corpus.Violations
}

// Drug returns a drug monograph by id.
func (s *Snapshot) Drug(drugID string) (*domain.DrugDoc, bool) {
	doc, ok := s.corpus.Drugs[drugID]
	return doc, ok
}

// GetInfectionRegimens returns regimens for an infection whose allergy_status
// equals the argument, in source order. When subcategory is non-empty only
// categories whose name contains it (case-insensitive) are considered. Each
// match carries its parent category name and the effective route and duration
// (regimen override else category default).
func (s *Snapshot) GetInfectionRegimens(infectionID, subcategory string, status domain.AllergyStatus) ([]domain.RegimenMatch, error) {
	doc, ok := s.corpus.Infections[infectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownInfection, infectionID)
	}

	sub := strings.ToLower(subcategory)
	var matches []domain.RegimenMatch
	for _, category := range doc.Categories {
		if sub != "" && !strings.Contains(strings.ToLower(category.Name), sub) {
			continue
		}
		for _, regimen := range category.Regimens {
			if regimen.AllergyStatus != status {
				continue
			}
			route := regimen.Route
			if route == "" {
				route = category.Route
			}
			duration := regimen.Duration
			if duration == "" {
				duration = category.Duration
			}
			matches = append(matches, domain.RegimenMatch{
				AllergyStatus: regimen.AllergyStatus,
				Drugs:         regimen.Drugs,
				Category:      category.Name,
				Route:         route,
				Duration:      duration,
				Reasoning:     regimen.Reasoning,
				Note:          regimen.Note,
			})
		}
	}
	return matches, nil
}

// DoseResult is a DoseEntry enriched with monograph identity and renal
// adjustment outcome.
type DoseResult struct {
	DrugID            string
	DrugName          string
	Class             string
	MatchedIndication string
	Entry             domain.DoseEntry
	RenalAdjusted     bool
	OriginalDose      string
	RenalNote         string
	ExtraMonitoring   []string
	Warnings          []string
}

// GetDrugDose resolves the dose entry for a drug and indication. The exact
// indication key is tried first, then a substring fallback: the first key in
// file order that contains the requested indication. Renal adjustment is
// applied when crcl is known.
func (s *Snapshot) GetDrugDose(drugID, indication string, crcl *float64) (*DoseResult, error) {
	doc, ok := s.corpus.Drugs[drugID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDrug, drugID)
	}

	matched := indication
	entry, ok := doc.Dosing.ByIndication.Get(indication)
	if !ok {
		for _, key := range doc.Dosing.ByIndication.Keys() {
			if strings.Contains(key, indication) {
				entry, _ = doc.Dosing.ByIndication.Get(key)
				matched = key
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: drug %s indication %s", domain.ErrMissingDoseEntry, drugID, indication)
	}

	result := &DoseResult{
		DrugID:            doc.DrugID,
		DrugName:          doc.DrugName,
		Class:             doc.Class,
		MatchedIndication: matched,
		Entry:             entry,
	}

	if crcl != nil {
		s.applyRenalAdjustment(drugID, *crcl, result)
	}

	return result, nil
}

// CheckPregnancySafe reports whether a drug may be used in pregnancy. A drug
// is unsafe if it appears in any contraindicated class, in the trimester
// avoid list for the supplied trimester, or if its monograph grades pregnancy
// use as contraindicated or avoid.
func (s *Snapshot) CheckPregnancySafe(drugID string, trimester int) (bool, string) {
	rules := s.corpus.Modifiers.Pregnancy
	if rules != nil {
		for _, class := range rules.Contraindicated {
			for _, id := range class.Drugs {
				if id == drugID {
					return false, class.Reason
				}
			}
		}
		var avoid []string
		switch trimester {
		case 1:
			avoid = rules.TrimesterGuidance.FirstTrimester.Avoid
		case 2, 3:
			avoid = rules.TrimesterGuidance.SecondThirdTrimester.Avoid
		}
		for _, id := range avoid {
			if id == drugID {
				return false, fmt.Sprintf("avoid in trimester %d", trimester)
			}
		}
	}

	if doc, ok := s.corpus.Drugs[drugID]; ok {
		grade := strings.ToLower(doc.PregnancySafe)
		if grade == domain.PregnancyContraindicated || strings.Contains(grade, domain.PregnancyAvoid) {
			reason := doc.PregnancyNotes
			if reason == "" {
				reason = fmt.Sprintf("%s in pregnancy", grade)
			}
			return false, reason
		}
	}

	return true, ""
}

// PregnancyExclusions returns every drug id contraindicated for the trimester,
// mapped to the clinical reason. Iterates drugs in load order so reasons and
// downstream warnings come out deterministic.
func (s *Snapshot) PregnancyExclusions(trimester int) map[string]string {
	excluded := make(map[string]string)
	for _, drugID := range s.corpus.DrugOrder {
		if safe, reason := s.CheckPregnancySafe(drugID, trimester); !safe {
			excluded[drugID] = reason
		}
	}
	return excluded
}

// GetCriticalRules returns the fixed per-infection safety assertions from the
// index. These must surface on every recommendation for the infection.
func (s *Snapshot) GetCriticalRules(infectionID string) []string {
	return s.corpus.Index.Infections[infectionID].CriticalRules
}
