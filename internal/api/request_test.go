package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

func TestToPatientCase_NumericProjection(t *testing.T) {
	req := RecommendRequest{
		Age:           "72 years",
		WeightKg:      "88 kg",
		GFR:           "45 mL/min",
		InfectionType: "uti",
	}

	patient, err := req.ToPatientCase()
	require.NoError(t, err)
	assert.Equal(t, 72, patient.Age)
	assert.InDelta(t, 88.0, patient.WeightKg, 1e-9)
	require.NotNil(t, patient.CrCl)
	assert.InDelta(t, 45.0, *patient.CrCl, 1e-9)
}

func TestToPatientCase_CrClTakesPrecedenceOverGFR(t *testing.T) {
	req := RecommendRequest{Age: "50", GFR: "80", CrCl: "25", InfectionType: "uti"}

	patient, err := req.ToPatientCase()
	require.NoError(t, err)
	require.NotNil(t, patient.CrCl)
	assert.InDelta(t, 25.0, *patient.CrCl, 1e-9)
}

func TestToPatientCase_MissingRenalFunction(t *testing.T) {
	req := RecommendRequest{Age: "50", InfectionType: "uti"}

	patient, err := req.ToPatientCase()
	require.NoError(t, err)
	assert.Nil(t, patient.CrCl)
	assert.Zero(t, patient.WeightKg)
}

func TestToPatientCase_NonNumericAge(t *testing.T) {
	req := RecommendRequest{Age: "adult", InfectionType: "uti"}

	_, err := req.ToPatientCase()
	assert.Error(t, err)
}

func TestToPatientCase_RiskTextProjection(t *testing.T) {
	req := RecommendRequest{
		Age:           "34",
		InfectionType: "uti",
		InfRisks:      "febrile, pregnant 2nd trimester, severe presentation",
	}

	patient, err := req.ToPatientCase()
	require.NoError(t, err)
	assert.True(t, patient.Fever)
	assert.Equal(t, 2, patient.Pregnancy)
	assert.Equal(t, domain.SeveritySevere, patient.Severity)
}

func TestToPatientCase_PregnancyDefaultsToSecondTrimester(t *testing.T) {
	req := RecommendRequest{Age: "30", InfectionType: "uti", InfRisks: "pregnant"}

	patient, err := req.ToPatientCase()
	require.NoError(t, err)
	assert.Equal(t, 2, patient.Pregnancy)
}

func TestToPatientCase_MRSAFromSourceRisk(t *testing.T) {
	req := RecommendRequest{Age: "60", InfectionType: "bacteremia", SourceRisk: "known MRSA colonization"}

	patient, err := req.ToPatientCase()
	require.NoError(t, err)
	assert.True(t, patient.MRSARisk)
}

func TestNormalizeInfectionType(t *testing.T) {
	cases := []struct {
		raw       string
		wantType  string
		wantFever bool
	}{
		{"uti", "uti", false},
		{"cystitis", "uti", false},
		{"pyelonephritis", "uti", true},
		{"Pyelonephritis", "uti", true},
		{"cellulitis", "skin", false},
		{"ssti", "skin", false},
		{"cap", "pneumonia", false},
		{"sepsis", "sepsis", false},
		{"meningitis", "meningitis", false},
		{"endocarditis", "endocarditis", false},
	}

	for _, tc := range cases {
		patient := &domain.PatientCase{}
		normalizeInfectionType(patient, tc.raw)
		assert.Equal(t, tc.wantType, patient.InfectionType, tc.raw)
		assert.Equal(t, tc.wantFever, patient.Fever, tc.raw)
	}
}

func TestNormalizeInfectionType_HAPSetsLocationHint(t *testing.T) {
	patient := &domain.PatientCase{}
	normalizeInfectionType(patient, "hap")
	assert.Equal(t, "pneumonia", patient.InfectionType)
	assert.Equal(t, "hap", patient.Location)

	// An explicit location wins over the taxonomy hint
	patient = &domain.PatientCase{Location: "hospital ward 3"}
	normalizeInfectionType(patient, "vap")
	assert.Equal(t, "hospital ward 3", patient.Location)
}

func TestToPatientCase_FlankPainHint(t *testing.T) {
	req := RecommendRequest{Age: "40", InfectionType: "uti", InfRisks: "flank pain, fever"}

	patient, err := req.ToPatientCase()
	require.NoError(t, err)
	assert.Contains(t, patient.Presentation, "flank pain")
	assert.True(t, patient.Fever)
}
