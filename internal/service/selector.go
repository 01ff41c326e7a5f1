package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
	"github.com/deesatzed/tuhs-abx-steward/internal/guideline"
)

// Selector maps a patient case onto an infection subcategory, allergy class
// and the first guideline regimen that survives filtering.
type Selector struct {
	logger *logrus.Logger
}

// NewSelector creates a drug selector.
func NewSelector(logger *logrus.Logger) *Selector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Selector{logger: logger}
}

// Select runs the selection workflow against one corpus snapshot. Errors are
// accumulated in the returned Selection rather than raised, so callers always
// get whatever classification was produced.
func (s *Selector) Select(snap *guideline.Snapshot, patient *domain.PatientCase) domain.Selection {
	sel := domain.Selection{}

	// Step 1: Derive infection subcategory and route
	infectionID, subcategory, route := deriveCategory(patient)
	sel.InfectionCategory = subcategory
	sel.Route = route

	// Step 2: Classify allergy severity
	allergy, inferred := snap.ClassifyAllergySeverity(patient.Allergies)
	sel.AllergyClassification = allergy
	sel.AllergyInferred = inferred
	if inferred {
		sel.Warnings = append(sel.Warnings,
			"Penicillin allergy reported without reaction details; classified as mild by default - verify history")
	}

	s.logger.WithFields(logrus.Fields{
		"infection":   infectionID,
		"subcategory": subcategory,
		"route":       route,
		"allergy":     allergy,
	}).Debug("Case classified")

	// Step 3: Compute pregnancy exclusions
	var excluded map[string]string
	if patient.Pregnancy > 0 {
		excluded = snap.PregnancyExclusions(patient.Pregnancy)
	}

	// Step 4: Fetch candidate regimens, retrying without the subcategory
	// filter when it matches nothing
	regimens, err := snap.GetInfectionRegimens(infectionID, subcategory, allergy.RegimenStatus())
	if err != nil {
		sel.Errors = append(sel.Errors, fmt.Sprintf("unknown infection type: %s", infectionID))
		return sel
	}
	if len(regimens) == 0 {
		regimens, _ = snap.GetInfectionRegimens(infectionID, "", allergy.RegimenStatus())
		if len(regimens) > 0 {
			sel.SubcategoryFallback = true
			sel.Warnings = append(sel.Warnings, fmt.Sprintf(
				"No regimen defined for subcategory %q; using general %s guidance", subcategory, infectionID))
		}
	}
	if len(regimens) == 0 {
		sel.Errors = append(sel.Errors, fmt.Sprintf(
			"no regimen available for %s with %s", infectionID, allergy))
		return sel
	}

	// Step 5: First regimen with at least one drug surviving pregnancy
	// filtering wins; file order is the only precedence control
	chosen, removed := firstSurvivingRegimen(regimens, excluded)
	if chosen == nil {
		sel.Errors = append(sel.Errors, fmt.Sprintf(
			"no regimen for %s survives pregnancy contraindication filtering", infectionID))
		return sel
	}
	for _, r := range removed {
		sel.PregnancyFiltered = true
		sel.Warnings = append(sel.Warnings, fmt.Sprintf(
			"%s excluded in pregnancy: %s", r.drugID, r.reason))
	}

	sel.DrugIDs = chosen.Drugs
	if chosen.Route != "" {
		sel.Route = domain.Route(chosen.Route)
	}
	if chosen.Reasoning != "" {
		sel.Rationale = append(sel.Rationale, chosen.Reasoning)
	}
	if chosen.Note != "" {
		sel.Warnings = append(sel.Warnings, chosen.Note)
	}

	// Step 6: Per-infection critical rules always surface
	sel.Warnings = append(sel.Warnings, snap.GetCriticalRules(infectionID)...)
	if sel.Route == domain.RouteIV && !mentionsIV(sel.Warnings) {
		sel.Warnings = append(sel.Warnings, "IV therapy required for this infection category")
	}

	return sel
}

type removedDrug struct {
	drugID string
	reason string
}

// firstSurvivingRegimen walks regimens in source order, drops pregnancy
// excluded drugs, and returns the first regimen that still has drugs. The
// removed list covers every exclusion encountered up to and including the
// chosen regimen, so skipped first-line choices still surface as warnings.
func firstSurvivingRegimen(regimens []domain.RegimenMatch, excluded map[string]string) (*domain.RegimenMatch, []removedDrug) {
	var removed []removedDrug
	removedSeen := make(map[string]bool)
	for i := range regimens {
		regimen := regimens[i]
		if len(excluded) == 0 {
			return &regimen, nil
		}
		var surviving []string
		for _, drugID := range regimen.Drugs {
			if reason, bad := excluded[drugID]; bad {
				if !removedSeen[drugID] {
					removedSeen[drugID] = true
					removed = append(removed, removedDrug{drugID: drugID, reason: reason})
				}
				continue
			}
			surviving = append(surviving, drugID)
		}
		if len(surviving) > 0 {
			regimen.Drugs = surviving
			return &regimen, removed
		}
	}
	return nil, removed
}

// deriveCategory applies the deterministic subcategory rules. The returned
// infectionID keys the corpus; the subcategory narrows category matching and
// doubles as the dosing indication.
func deriveCategory(patient *domain.PatientCase) (infectionID, subcategory string, route domain.Route) {
	presentation := strings.ToLower(patient.Presentation)
	location := strings.ToLower(patient.Location)

	switch patient.InfectionType {
	case "uti":
		if patient.Fever || containsAny(presentation, "flank", "costovertebral", "cvat") {
			return "uti", "pyelonephritis", domain.RouteIV
		}
		return "uti", "cystitis", domain.RoutePO

	case "pneumonia":
		switch {
		case location == "icu" || patient.Severity == domain.SeveritySevere:
			return "pneumonia", "severe_cap", domain.RouteIV
		case strings.Contains(location, "hospital") || location == "hap":
			return "pneumonia", "hap", domain.RouteIV
		case strings.Contains(location, "ventilator") || location == "vap":
			return "pneumonia", "vap", domain.RouteIV
		case strings.Contains(presentation, "aspiration"):
			return "pneumonia", "aspiration", domain.RouteIV
		default:
			return "pneumonia", "cap", domain.RouteIV
		}

	case "intra_abdominal":
		if patient.Severity == domain.SeveritySevere {
			return "intra_abdominal", "severe_intra_abdominal", domain.RouteIV
		}
		return "intra_abdominal", "moderate_intra_abdominal", domain.RouteIV

	case "bacteremia", "sepsis":
		if patient.MRSARisk || strings.Contains(presentation, "mrsa") {
			return "bacteremia", "bacteremia_mrsa", domain.RouteIV
		}
		return "bacteremia", "bacteremia", domain.RouteIV

	case "meningitis":
		return "meningitis", "bacterial_meningitis", domain.RouteIV

	default:
		return patient.InfectionType, patient.InfectionType, domain.RouteIV
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func mentionsIV(warnings []string) bool {
	for _, w := range warnings {
		if strings.Contains(w, "IV") {
			return true
		}
	}
	return false
}
