package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/deesatzed/tuhs-abx-steward/internal/domain"
	"github.com/deesatzed/tuhs-abx-steward/internal/guideline"
)

// EvidenceQuery is the context handed to the evidence coordinator.
type EvidenceQuery struct {
	InfectionCategory string
	DrugNames         []string
}

// EvidenceSearcher runs the tiered external evidence search. The engine is
// fully functional when no searcher is configured.
type EvidenceSearcher interface {
	Search(ctx context.Context, query EvidenceQuery, confidence float64) (*domain.SearchTrace, error)
}

// Engine orchestrates the recommendation pipeline: select drugs, price the
// regimen, merge output, and render the report.
type Engine struct {
	store      *guideline.Store
	selector   *Selector
	calculator *Calculator
	confidence domain.ConfidenceConfig
	evidence   EvidenceSearcher
	logger     *logrus.Logger
}

// NewEngine wires the pipeline. evidence may be nil.
func NewEngine(store *guideline.Store, selector *Selector, calculator *Calculator, confidence domain.ConfidenceConfig, evidence EvidenceSearcher, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		store:      store,
		selector:   selector,
		calculator: calculator,
		confidence: confidence,
		evidence:   evidence,
		logger:     logger,
	}
}

// Store exposes the guideline store for reload and diagnostics handlers.
func (e *Engine) Store() *guideline.Store {
	return e.store
}

// Recommend runs the full pipeline for one case. It never panics or returns
// an error value; structural failures set Success=false and populate Errors,
// and clinically important warnings are surfaced regardless of success.
func (e *Engine) Recommend(ctx context.Context, patient *domain.PatientCase) *domain.Recommendation {
	rec := &domain.Recommendation{
		Rationale:  []string{},
		Monitoring: []string{},
		Warnings:   []string{},
		Errors:     []string{},
	}

	snap := e.store.Snapshot()
	rec.Metadata.Version = snap.Version()
	rec.Metadata.GuidelineSource = "TUHS"

	if err := patient.Validate(); err != nil {
		rec.Errors = append(rec.Errors, err.Error())
		return rec
	}

	// Step 1: Drug selection
	sel := e.selector.Select(snap, patient)
	rec.InfectionCategory = sel.InfectionCategory
	rec.AllergyClassification = sel.AllergyClassification
	rec.Route = sel.Route
	rec.Rationale = append(rec.Rationale, sel.Rationale...)
	if len(sel.Errors) > 0 {
		rec.Errors = append(rec.Errors, sel.Errors...)
		rec.Warnings = mergeWarnings(sel.Warnings, nil)
		return rec
	}

	// Step 2: Guard against empty selection
	if len(sel.DrugIDs) == 0 {
		rec.Errors = append(rec.Errors, "no appropriate drugs found")
		rec.Warnings = mergeWarnings(sel.Warnings, nil)
		return rec
	}

	// Step 3: Dose calculation
	plan := e.calculator.Calculate(snap, sel.DrugIDs, sel.InfectionCategory, patient.CrCl, patient.WeightKg, patient.Age)
	if len(plan.Errors) > 0 {
		rec.Errors = append(rec.Errors, plan.Errors...)
		rec.Warnings = mergeWarnings(sel.Warnings, &plan)
		return rec
	}

	// Step 4: Merge stage output
	rec.Drugs = plan.Drugs
	rec.Monitoring = plan.Monitoring
	rec.Warnings = mergeWarnings(sel.Warnings, &plan)
	rec.Metadata.DrugCount = len(plan.Drugs)

	// Step 5: Structural confidence
	rec.Signals = domain.ConfidenceSignals{
		SubcategoryFallback: sel.SubcategoryFallback,
		PregnancyFiltered:   sel.PregnancyFiltered,
		SevereAllergy:       sel.AllergyClassification == domain.SeverePCNAllergy,
		AllergyInferred:     sel.AllergyInferred,
		RenalEdgeTier:       plan.RenalEdgeTier,
		WeightMissing:       plan.WeightCalcSkipped,
		ExtraWarnings:       plan.ManualDoseChecks,
	}
	confidence := ScoreConfidence(e.confidence, rec.Signals)

	// Step 6: Optional evidence search; failures keep the pre-search score
	if e.evidence != nil {
		query := EvidenceQuery{InfectionCategory: sel.InfectionCategory}
		for _, d := range plan.Drugs {
			query.DrugNames = append(query.DrugNames, d.DrugName)
		}
		trace, err := e.evidence.Search(ctx, query, confidence)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			rec.Errors = append(rec.Errors, "request cancelled")
			return rec
		case err != nil:
			e.logger.WithError(err).Warn("Evidence search failed, keeping structural confidence")
		case trace != nil:
			confidence = trace.FinalConfidence
		}
	}
	rec.Metadata.Confidence = confidence

	// Step 7: Deterministic report
	rec.Success = true
	rec.RecommendationText = renderReport(patient, rec)

	e.logger.WithFields(logrus.Fields{
		"infection":  rec.InfectionCategory,
		"allergy":    rec.AllergyClassification,
		"drugs":      len(rec.Drugs),
		"confidence": confidence,
	}).Info("Recommendation produced")

	return rec
}

// mergeWarnings concatenates selection and calculator warnings, deduplicating
// while preserving first-occurrence order. Critical safety warnings pass
// through untouched.
func mergeWarnings(selectionWarnings []string, plan *domain.RegimenPlan) []string {
	merged := []string{}
	seen := make(map[string]bool)
	add := func(w string) {
		if w != "" && !seen[w] {
			seen[w] = true
			merged = append(merged, w)
		}
	}
	for _, w := range selectionWarnings {
		add(w)
	}
	if plan != nil {
		for _, d := range plan.Drugs {
			for _, w := range d.Warnings {
				add(w)
			}
		}
		for _, w := range plan.Warnings {
			add(w)
		}
	}
	return merged
}
