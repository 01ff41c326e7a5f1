package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
	"github.com/deesatzed/tuhs-abx-steward/internal/guideline"
)

// Calculator turns selected drug ids into fully specified orders: indication
// dosing, weight-based computation, renal adjustment and monitoring.
type Calculator struct {
	weightBased map[string]bool
	logger      *logrus.Logger
}

// NewCalculator creates a dose calculator. weightBasedDrugs lists the drug
// ids dosed in mg/kg (glycopeptides).
func NewCalculator(weightBasedDrugs []string, logger *logrus.Logger) *Calculator {
	if logger == nil {
		logger = logrus.New()
	}
	wb := make(map[string]bool, len(weightBasedDrugs))
	for _, id := range weightBasedDrugs {
		wb[id] = true
	}
	return &Calculator{weightBased: wb, logger: logger}
}

// Calculate prices every drug for the indication. Lookup failures are
// accumulated per drug; remaining drugs are still processed.
func (c *Calculator) Calculate(snap *guideline.Snapshot, drugIDs []string, indication string, crcl *float64, weightKg float64, age int) domain.RegimenPlan {
	plan := domain.RegimenPlan{}
	seenMonitoring := make(map[string]bool)

	for _, drugID := range drugIDs {
		result, err := c.resolveDose(snap, drugID, indication, crcl)
		if err != nil {
			plan.Errors = append(plan.Errors, err.Error())
			continue
		}

		dosed := c.assembleDrug(snap, result, crcl, weightKg, &plan)
		plan.Drugs = append(plan.Drugs, dosed)

		for _, item := range dosed.Monitoring {
			if !seenMonitoring[item] {
				seenMonitoring[item] = true
				plan.Monitoring = append(plan.Monitoring, item)
			}
		}
	}

	// Regimen-level safety warnings
	if crcl != nil && *crcl < 30 {
		plan.RenalEdgeTier = true
		plan.Warnings = append(plan.Warnings,
			"Severe renal impairment (CrCl < 30 mL/min) - verify all doses and intervals with pharmacy")
	}
	if age >= 65 {
		plan.Warnings = append(plan.Warnings,
			"Age 65 or older - reassess renal function and review for drug interactions")
	}

	return plan
}

// resolveDose tries the indication as given, then progressively normalized
// variants, stopping at the first hit.
func (c *Calculator) resolveDose(snap *guideline.Snapshot, drugID, indication string, crcl *float64) (*guideline.DoseResult, error) {
	for _, candidate := range indicationCandidates(indication) {
		result, err := snap.GetDrugDose(drugID, candidate, crcl)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, domain.ErrUnknownDrug) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: drug %s has no dose for indication %s", domain.ErrMissingDoseEntry, drugID, indication)
}

func (c *Calculator) assembleDrug(snap *guideline.Snapshot, result *guideline.DoseResult, crcl *float64, weightKg float64, plan *domain.RegimenPlan) domain.DosedDrug {
	entry := result.Entry
	dosed := domain.DosedDrug{
		DrugID:        result.DrugID,
		DrugName:      result.DrugName,
		Class:         result.Class,
		Dose:          entry.EffectiveDose(),
		Frequency:     entry.Frequency,
		Route:         entry.Route,
		Duration:      entry.Duration,
		LoadingDose:   entry.LoadingDose,
		RenalAdjusted: result.RenalAdjusted,
		OriginalDose:  result.OriginalDose,
	}

	doc, _ := snap.Drug(result.DrugID)
	if doc != nil {
		dosed.Coverage = coverageFromSpectrum(doc.Spectrum)
		dosed.Monitoring = append(dosed.Monitoring, doc.Monitoring.Required...)
	}
	dosed.Monitoring = append(dosed.Monitoring, result.ExtraMonitoring...)

	if entry.Note != "" {
		dosed.Notes = append(dosed.Notes, entry.Note)
	}
	if result.RenalNote != "" {
		dosed.Notes = append(dosed.Notes, result.RenalNote)
	}

	// Weight-based dosing, gated per drug id
	if c.weightBased[result.DrugID] {
		if weightKg > 0 {
			dosed.CalculatedDose = computeWeightDose(dosed.Dose, entry.LoadingDose, weightKg)
		} else {
			plan.WeightCalcSkipped = true
			dosed.Warnings = append(dosed.Warnings,
				fmt.Sprintf("Weight required for accurate %s dosing", result.DrugName))
		}
	}

	if result.RenalAdjusted && crcl != nil {
		dosed.Warnings = append(dosed.Warnings,
			fmt.Sprintf("Dose adjusted for CrCl = %.0f mL/min", *crcl))
	}
	if doc != nil && doc.RenalAdjustment.Critical {
		dosed.Warnings = append(dosed.Warnings,
			fmt.Sprintf("%s is nephrotoxic - monitor renal function closely", result.DrugName))
	}
	if entry.CriticalNote != "" {
		dosed.Warnings = append(dosed.Warnings, entry.CriticalNote)
	}
	if len(result.Warnings) > 0 {
		// A tier matched but no override was defined; dosing needs a human.
		plan.ManualDoseChecks = true
		dosed.Warnings = append(dosed.Warnings, result.Warnings...)
	}

	return dosed
}

// indicationCandidates widens an indication key by stripping severity and
// setting prefixes and site suffixes, most specific first.
func indicationCandidates(indication string) []string {
	prefixes := []string{"mild_", "moderate_", "severe_", "community_", "hospital_", "bacterial_"}
	suffixes := []string{"_mrsa", "_sepsis", "_source"}

	candidates := []string{indication}
	seen := map[string]bool{indication: true}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			candidates = append(candidates, s)
		}
	}

	stripped := indication
	for _, p := range prefixes {
		if strings.HasPrefix(stripped, p) {
			stripped = strings.TrimPrefix(stripped, p)
			add(stripped)
			break
		}
	}
	for _, base := range []string{indication, stripped} {
		for _, suf := range suffixes {
			if strings.HasSuffix(base, suf) {
				add(strings.TrimSuffix(base, suf))
			}
		}
	}
	return candidates
}

var mgPerKgPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)(?:\s*[-–]\s*(\d+(?:\.\d+)?))?\s*mg/kg`)

// computeWeightDose evaluates mg/kg dose strings against the patient weight.
// Ranges use their midpoint; results round to the nearest 250 mg.
func computeWeightDose(dose, loadingDose string, weightKg float64) *domain.CalculatedDose {
	calc := &domain.CalculatedDose{}
	if mg, ok := evalMgPerKg(dose, weightKg); ok {
		calc.MaintenanceDose = mg
	}
	if mg, ok := evalMgPerKg(loadingDose, weightKg); ok {
		calc.LoadingDose = mg
	}
	if calc.MaintenanceDose == "" && calc.LoadingDose == "" {
		return nil
	}
	return calc
}

func evalMgPerKg(s string, weightKg float64) (string, bool) {
	m := mgPerKgPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	low, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", false
	}
	perKg := low
	if m[2] != "" {
		high, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return "", false
		}
		perKg = (low + high) / 2
	}
	mg := math.Round(perKg*weightKg/250) * 250
	return fmt.Sprintf("%.0f mg", mg), true
}

// coverageFromSpectrum lists the organism groups a drug covers well, in the
// monograph's fixed field order.
func coverageFromSpectrum(spectrum domain.Spectrum) []string {
	var coverage []string
	for _, entry := range []struct{ label, grade string }{
		{"Gram-positive", spectrum.GramPositive},
		{"Gram-negative", spectrum.GramNegative},
		{"Anaerobes", spectrum.Anaerobes},
		{"Atypicals", spectrum.Atypicals},
	} {
		if entry.grade == "Excellent" || entry.grade == "Good" {
			coverage = append(coverage, fmt.Sprintf("%s: %s", entry.label, entry.grade))
		}
	}
	return coverage
}
