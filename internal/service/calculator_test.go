package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

func newTestCalculator() *Calculator {
	return NewCalculator([]string{"vancomycin"}, testLogger())
}

func TestIndicationCandidates(t *testing.T) {
	tests := []struct {
		indication string
		want       []string
	}{
		{"pyelonephritis", []string{"pyelonephritis"}},
		{"severe_cap", []string{"severe_cap", "cap"}},
		{"bacterial_meningitis", []string{"bacterial_meningitis", "meningitis"}},
		{"moderate_intra_abdominal", []string{"moderate_intra_abdominal", "intra_abdominal"}},
		{"bacteremia_mrsa", []string{"bacteremia_mrsa", "bacteremia"}},
		{"severe_bacteremia_sepsis", []string{"severe_bacteremia_sepsis", "bacteremia_sepsis", "severe_bacteremia", "bacteremia"}},
	}

	for _, tt := range tests {
		t.Run(tt.indication, func(t *testing.T) {
			assert.Equal(t, tt.want, indicationCandidates(tt.indication))
		})
	}
}

func TestEvalMgPerKg(t *testing.T) {
	tests := []struct {
		name     string
		dose     string
		weightKg float64
		want     string
		wantOK   bool
	}{
		{"range midpoint", "15-20 mg/kg", 80, "1500 mg", true},
		{"loading range", "25-30 mg/kg", 70, "2000 mg", true},
		{"single value", "15 mg/kg", 70, "1000 mg", true},
		{"embedded in text", "15-20 mg/kg q24h", 80, "1500 mg", true},
		{"not weight based", "2 g", 80, "", false},
		{"empty", "", 80, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := evalMgPerKg(tt.dose, tt.weightKg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculate_WeightBasedWithRenalAdjustment(t *testing.T) {
	snap := testSnapshot(t)
	crcl := 25.0

	plan := newTestCalculator().Calculate(snap, []string{"vancomycin"}, "bacteremia_mrsa", &crcl, 80, 75)
	require.Empty(t, plan.Errors)
	require.Len(t, plan.Drugs, 1)

	vanc := plan.Drugs[0]
	assert.True(t, vanc.RenalAdjusted)
	assert.Equal(t, "15-20 mg/kg q24h", vanc.Dose)
	assert.Equal(t, "15-20 mg/kg", vanc.OriginalDose)
	require.NotNil(t, vanc.CalculatedDose)
	assert.Equal(t, "1500 mg", vanc.CalculatedDose.MaintenanceDose)

	assert.Contains(t, vanc.Warnings, "Dose adjusted for CrCl = 25 mL/min")
	assert.Contains(t, vanc.Warnings, "Vancomycin is nephrotoxic - monitor renal function closely")
	assert.Contains(t, plan.Warnings, "Severe renal impairment (CrCl < 30 mL/min) - verify all doses and intervals with pharmacy")
	assert.True(t, plan.RenalEdgeTier)

	assert.Contains(t, plan.Monitoring, "Vancomycin trough before 4th dose")
	assert.Contains(t, plan.Monitoring, "Daily serum creatinine while CrCl < 60")
}

func TestCalculate_MeningitisLoadingDose(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"ceftriaxone", "vancomycin"}, "bacterial_meningitis", nil, 70, 42)
	require.Empty(t, plan.Errors)
	require.Len(t, plan.Drugs, 2)

	ctx := plan.Drugs[0]
	assert.Equal(t, "Ceftriaxone", ctx.DrugName)
	assert.Equal(t, "2 g", ctx.Dose)
	assert.Equal(t, "q12h", ctx.Frequency)

	vanc := plan.Drugs[1]
	assert.Equal(t, "25-30 mg/kg", vanc.LoadingDose)
	require.NotNil(t, vanc.CalculatedDose)
	assert.Equal(t, "2000 mg", vanc.CalculatedDose.LoadingDose)
	assert.NotEmpty(t, vanc.CalculatedDose.MaintenanceDose)
}

func TestCalculate_MissingWeightWarns(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"vancomycin"}, "bacteremia", nil, 0, 50)
	require.Empty(t, plan.Errors)
	require.Len(t, plan.Drugs, 1)

	vanc := plan.Drugs[0]
	assert.Nil(t, vanc.CalculatedDose)
	assert.Contains(t, vanc.Warnings, "Weight required for accurate Vancomycin dosing")
	assert.True(t, plan.WeightCalcSkipped)
}

func TestCalculate_ElderlyWarning(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"ceftriaxone"}, "pyelonephritis", nil, 0, 65)
	require.Empty(t, plan.Errors)
	assert.Contains(t, plan.Warnings, "Age 65 or older - reassess renal function and review for drug interactions")

	young := newTestCalculator().Calculate(snap, []string{"ceftriaxone"}, "pyelonephritis", nil, 0, 64)
	assert.NotContains(t, young.Warnings, "Age 65 or older - reassess renal function and review for drug interactions")
}

func TestCalculate_UnknownDrugAccumulatesError(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"imaginarymycin", "ceftriaxone"}, "pyelonephritis", nil, 0, 40)
	require.Len(t, plan.Errors, 1)
	assert.Contains(t, plan.Errors[0], "imaginarymycin")
	require.Len(t, plan.Drugs, 1, "remaining drugs are still priced")
	assert.Equal(t, "Ceftriaxone", plan.Drugs[0].DrugName)
}

func TestCalculate_MissingIndicationAccumulatesError(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"metronidazole"}, "bacterial_meningitis", nil, 0, 40)
	require.Len(t, plan.Errors, 1)
	assert.Contains(t, plan.Errors[0], "metronidazole")
	assert.Empty(t, plan.Drugs)
}

func TestCalculate_CoverageFromSpectrum(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"ceftriaxone"}, "bacteremia", nil, 0, 40)
	require.Len(t, plan.Drugs, 1)
	assert.Equal(t, []string{"Gram-positive: Good", "Gram-negative: Excellent"}, plan.Drugs[0].Coverage)
}

func TestCalculate_CriticalNoteSurfaces(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"ceftriaxone"}, "bacterial_meningitis", nil, 0, 40)
	require.Len(t, plan.Drugs, 1)
	var found bool
	for _, w := range plan.Drugs[0].Warnings {
		if w == "Meningitis requires high-dose q12h therapy; standard q24h dosing is subtherapeutic in CSF" {
			found = true
		}
	}
	assert.True(t, found, "critical_note is never filtered")
}

func TestCalculate_MonitoringDedupedAcrossDrugs(t *testing.T) {
	snap := testSnapshot(t)

	plan := newTestCalculator().Calculate(snap, []string{"azithromycin", "levofloxacin"}, "cap", nil, 0, 40)
	require.Empty(t, plan.Errors)

	count := 0
	for _, m := range plan.Monitoring {
		if m == "QTc when combined with other QT-prolonging agents" {
			count++
		}
	}
	assert.Equal(t, 1, count, "shared monitoring items appear once")
}

func TestScoreConfidence(t *testing.T) {
	cfg := DefaultConfidenceConfig()

	assert.InDelta(t, 0.9, ScoreConfidence(cfg, domain.ConfidenceSignals{}), 1e-9)
	assert.InDelta(t, 0.8, ScoreConfidence(cfg, domain.ConfidenceSignals{SevereAllergy: true}), 1e-9)
	assert.InDelta(t, 0.65, ScoreConfidence(cfg, domain.ConfidenceSignals{SevereAllergy: true, PregnancyFiltered: true}), 1e-9)

	all := domain.ConfidenceSignals{
		SubcategoryFallback: true,
		PregnancyFiltered:   true,
		SevereAllergy:       true,
		AllergyInferred:     true,
		RenalEdgeTier:       true,
		WeightMissing:       true,
		ExtraWarnings:       true,
	}
	assert.InDelta(t, 0.3, ScoreConfidence(cfg, all), 1e-9)

	cfg.Floor = 0.5
	assert.InDelta(t, 0.5, ScoreConfidence(cfg, all), 1e-9)
}
