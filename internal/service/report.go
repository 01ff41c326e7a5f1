package service

import (
	"fmt"
	"strings"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// renderReport builds the human-readable recommendation text. Section order
// is fixed so identical inputs always produce byte-identical output.
func renderReport(patient *domain.PatientCase, rec *domain.Recommendation) string {
	var b strings.Builder

	b.WriteString("EMPIRIC ANTIBIOTIC RECOMMENDATION\n")
	b.WriteString("=================================\n\n")

	b.WriteString("PATIENT CONTEXT\n")
	fmt.Fprintf(&b, "  Age: %d years\n", patient.Age)
	fmt.Fprintf(&b, "  Infection category: %s\n", rec.InfectionCategory)
	fmt.Fprintf(&b, "  Allergy status: %s\n", rec.AllergyClassification)
	fmt.Fprintf(&b, "  Route: %s\n", rec.Route)
	if patient.WeightKg > 0 {
		fmt.Fprintf(&b, "  Weight: %.1f kg\n", patient.WeightKg)
	}
	if patient.CrCl != nil {
		fmt.Fprintf(&b, "  CrCl: %.0f mL/min\n", *patient.CrCl)
	}
	if patient.Pregnancy > 0 {
		fmt.Fprintf(&b, "  Pregnancy: trimester %d\n", patient.Pregnancy)
	}
	b.WriteString("\n")

	b.WriteString("RECOMMENDED REGIMEN\n")
	for _, drug := range rec.Drugs {
		fmt.Fprintf(&b, "  %s (%s)\n", drug.DrugName, drug.Class)
		dose := drug.Dose
		if drug.Frequency != "" {
			dose += " " + drug.Frequency
		}
		fmt.Fprintf(&b, "    Dose: %s\n", dose)
		if drug.CalculatedDose != nil {
			if drug.CalculatedDose.MaintenanceDose != "" {
				fmt.Fprintf(&b, "    Calculated dose: %s\n", drug.CalculatedDose.MaintenanceDose)
			}
			if drug.CalculatedDose.LoadingDose != "" {
				fmt.Fprintf(&b, "    Calculated loading dose: %s\n", drug.CalculatedDose.LoadingDose)
			}
		}
		if drug.LoadingDose != "" {
			fmt.Fprintf(&b, "    Loading dose: %s\n", drug.LoadingDose)
		}
		if drug.Route != "" {
			fmt.Fprintf(&b, "    Route: %s\n", drug.Route)
		}
		if drug.Duration != "" {
			fmt.Fprintf(&b, "    Duration: %s\n", drug.Duration)
		}
		if drug.RenalAdjusted {
			fmt.Fprintf(&b, "    Renal adjusted (usual dose: %s)\n", drug.OriginalDose)
		}
		if len(drug.Coverage) > 0 {
			fmt.Fprintf(&b, "    Coverage: %s\n", strings.Join(drug.Coverage, "; "))
		}
		for _, note := range drug.Notes {
			fmt.Fprintf(&b, "    Note: %s\n", note)
		}
	}
	b.WriteString("\n")

	if len(rec.Rationale) > 0 {
		b.WriteString("RATIONALE\n")
		for _, r := range rec.Rationale {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
		b.WriteString("\n")
	}

	if len(rec.Monitoring) > 0 {
		b.WriteString("MONITORING\n")
		for _, m := range rec.Monitoring {
			fmt.Fprintf(&b, "  - %s\n", m)
		}
		b.WriteString("\n")
	}

	if len(rec.Warnings) > 0 {
		b.WriteString("WARNINGS\n")
		for _, w := range rec.Warnings {
			fmt.Fprintf(&b, "  ! %s\n", w)
		}
	}

	return b.String()
}
