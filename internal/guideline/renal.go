package guideline

import (
	"fmt"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
)

// applyRenalAdjustment overrides the dose in result when the drug is listed in
// renal_adjustment_rules and CrCl falls in an adjustment tier. The original
// dose is preserved and the rule's note and monitoring items are attached.
// When the matched tier has no override string, the dose stays unchanged and
// a warning is emitted instead.
func (s *Snapshot) applyRenalAdjustment(drugID string, crcl float64, result *DoseResult) {
	rules := s.corpus.Modifiers.Renal
	if rules == nil {
		return
	}
	rule, ok := rules.DrugsRequiringAdjustment[drugID]
	if !ok || !rule.AdjustmentRequired {
		return
	}

	override, tier := renalTierOverride(rule, crcl)
	if tier == "" {
		// CrCl >= 60, full dose.
		return
	}
	if override == "" {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"%s requires renal adjustment at CrCl %.0f mL/min but no %s dose is defined; verify dose manually",
			result.DrugName, crcl, tier))
		return
	}

	result.OriginalDose = result.Entry.EffectiveDose()
	result.Entry.Dose = override
	result.Entry.MaintenanceDose = ""
	result.RenalAdjusted = true
	result.RenalNote = rule.Note
	result.ExtraMonitoring = append(result.ExtraMonitoring, rule.Monitoring...)
}

// renalTierOverride picks the dose override for a CrCl. Returns the override
// string and the tier label; an empty label means no adjustment applies.
func renalTierOverride(rule domain.RenalDrugRule, crcl float64) (override, tier string) {
	switch {
	case crcl >= 60:
		return "", ""
	case crcl >= 30:
		return rule.CrCl3060, "crcl_30_60"
	case crcl >= 15:
		return rule.CrCl1529, "crcl_15_29"
	case crcl >= 10:
		return rule.CrCl1029, "crcl_10_29"
	default:
		if rule.CrClLt15 != "" {
			return rule.CrClLt15, "crcl_lt_15"
		}
		return rule.CrClLt10, "crcl_lt_10"
	}
}
