package api

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// RecommendRequest is the legacy wire payload. Upstream clients send numeric
// fields as free-form strings ("72 years", "88 kg", ">60") and bundle risk
// factors into one inf_risks text blob, so everything is projected onto the
// typed PatientCase here, at the ingress boundary only.
type RecommendRequest struct {
	Age             string `json:"age"`
	Gender          string `json:"gender,omitempty"`
	WeightKg        string `json:"weight_kg,omitempty"`
	GFR             string `json:"gfr,omitempty"`
	CrCl            string `json:"crcl,omitempty"`
	Location        string `json:"location,omitempty"`
	Allergies       string `json:"allergies,omitempty"`
	InfectionType   string `json:"infection_type"`
	CurrentOutptAbx string `json:"current_outpt_abx,omitempty"`
	CurrentInpAbx   string `json:"current_inp_abx,omitempty"`
	CultureResults  string `json:"culture_results,omitempty"`
	PriorResistance string `json:"prior_resistance,omitempty"`
	SourceRisk      string `json:"source_risk,omitempty"`
	InfRisks        string `json:"inf_risks,omitempty"`
}

var leadingNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseNumber extracts the first number from a free-form field.
func parseNumber(raw string) (float64, bool) {
	match := leadingNumber.FindString(raw)
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ToPatientCase projects the legacy payload onto the typed pipeline input.
func (r *RecommendRequest) ToPatientCase() (*domain.PatientCase, error) {
	patient := &domain.PatientCase{
		CultureResults:     strings.TrimSpace(r.CultureResults),
		PriorResistance:    strings.TrimSpace(r.PriorResistance),
		CurrentAntibiotics: strings.TrimSpace(strings.Join(nonEmpty(r.CurrentOutptAbx, r.CurrentInpAbx), "; ")),
		Allergies:          strings.TrimSpace(r.Allergies),
		Location:           strings.ToLower(strings.TrimSpace(r.Location)),
	}

	age, ok := parseNumber(r.Age)
	if !ok {
		return nil, fmt.Errorf("age %q is not numeric", r.Age)
	}
	patient.Age = int(age)

	if w, ok := parseNumber(r.WeightKg); ok {
		patient.WeightKg = w
	}

	// crcl takes precedence over the legacy gfr field
	if c, ok := parseNumber(r.CrCl); ok {
		patient.CrCl = &c
	} else if g, ok := parseNumber(r.GFR); ok {
		patient.CrCl = &g
	}

	applyRiskText(patient, r.InfRisks)
	if strings.Contains(strings.ToLower(r.SourceRisk), "mrsa") {
		patient.MRSARisk = true
	}

	normalizeInfectionType(patient, r.InfectionType)

	if err := patient.Validate(); err != nil {
		return nil, err
	}
	return patient, nil
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

var trimesterPattern = regexp.MustCompile(`(?:trimester\s*)?([123])(?:st|nd|rd)?\s*trimester|trimester\s*([123])|pregnan\w*\s*([123])?`)

// applyRiskText mines the free-text risk blob for the structured hints the
// selector consumes.
func applyRiskText(patient *domain.PatientCase, risks string) {
	text := strings.ToLower(risks)
	if text == "" {
		return
	}

	if strings.Contains(text, "fever") || strings.Contains(text, "febrile") {
		patient.Fever = true
	}
	if strings.Contains(text, "mrsa") {
		patient.MRSARisk = true
	}

	switch {
	case strings.Contains(text, "severe"), strings.Contains(text, "septic"), strings.Contains(text, "icu"):
		patient.Severity = domain.SeveritySevere
	case strings.Contains(text, "moderate"):
		patient.Severity = domain.SeverityModerate
	case strings.Contains(text, "mild"):
		patient.Severity = domain.SeverityMild
	}

	if strings.Contains(text, "pregnan") {
		patient.Pregnancy = parseTrimester(text)
	}

	// Pyelonephritis hints ride along in the risk text
	if strings.Contains(text, "flank") || strings.Contains(text, "costovertebral") || strings.Contains(text, "cvat") {
		patient.Presentation = appendHint(patient.Presentation, "flank pain")
	}
}

// parseTrimester finds an explicit trimester in the text. Unspecified
// pregnancy defaults to the second trimester, the most restrictive choice
// for both first- and near-term exclusion lists.
func parseTrimester(text string) int {
	for _, m := range trimesterPattern.FindAllStringSubmatch(text, -1) {
		for _, g := range m[1:] {
			if g != "" {
				n, _ := strconv.Atoi(g)
				return n
			}
		}
	}
	switch {
	case strings.Contains(text, "first trimester"):
		return 1
	case strings.Contains(text, "second trimester"):
		return 2
	case strings.Contains(text, "third trimester"):
		return 3
	}
	return 2
}

func appendHint(existing, hint string) string {
	if existing == "" {
		return hint
	}
	if strings.Contains(strings.ToLower(existing), hint) {
		return existing
	}
	return existing + "; " + hint
}

// normalizeInfectionType folds the legacy infection taxonomy onto the corpus
// document ids. Cystitis and pyelonephritis merged into one uti document, so
// the old split names become hints instead.
func normalizeInfectionType(patient *domain.PatientCase, raw string) {
	token := strings.ToLower(strings.TrimSpace(raw))

	switch token {
	case "cystitis":
		patient.InfectionType = "uti"
	case "pyelonephritis":
		patient.InfectionType = "uti"
		patient.Fever = true
	case "cellulitis", "ssti", "skin_soft_tissue":
		patient.InfectionType = "skin"
	case "cap":
		patient.InfectionType = "pneumonia"
	case "hap", "vap":
		patient.InfectionType = "pneumonia"
		if patient.Location == "" {
			patient.Location = token
		}
	default:
		patient.InfectionType = token
	}
}
