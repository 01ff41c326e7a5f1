package service

import "github.com/deesatzed/tuhs-abx-steward/internal/domain"

// DefaultConfidenceConfig mirrors the shipped configuration defaults. Used
// when a caller constructs the engine without a config manager.
func DefaultConfidenceConfig() domain.ConfidenceConfig {
	return domain.ConfidenceConfig{
		Base:                0.9,
		SubcategoryFallback: 0.10,
		PregnancyFiltered:   0.15,
		SevereAllergy:       0.10,
		AllergyInferred:     0.05,
		RenalEdgeTier:       0.10,
		WeightMissing:       0.05,
		ExtraWarnings:       0.05,
		Floor:               0.10,
	}
}

// ScoreConfidence derives a scalar confidence from structural selection
// signals. A rule engine has no free text to grade; confidence instead
// reflects how cleanly the case mapped onto the guidelines. Each signal
// deducts its configured weight from the base score.
func ScoreConfidence(cfg domain.ConfidenceConfig, sig domain.ConfidenceSignals) float64 {
	if cfg.Base == 0 {
		cfg = DefaultConfidenceConfig()
	}

	score := cfg.Base
	if sig.SubcategoryFallback {
		score -= cfg.SubcategoryFallback
	}
	if sig.PregnancyFiltered {
		score -= cfg.PregnancyFiltered
	}
	if sig.SevereAllergy {
		score -= cfg.SevereAllergy
	}
	if sig.AllergyInferred {
		score -= cfg.AllergyInferred
	}
	if sig.RenalEdgeTier {
		score -= cfg.RenalEdgeTier
	}
	if sig.WeightMissing {
		score -= cfg.WeightMissing
	}
	if sig.ExtraWarnings {
		score -= cfg.ExtraWarnings
	}
	if score < cfg.Floor {
		score = cfg.Floor
	}
	return score
}
