package domain

// PatientCase is the typed input to the recommendation pipeline. It is built
// once per request from the API payload and never mutated afterwards.
type PatientCase struct {
	Age           int     `json:"age"`
	InfectionType string  `json:"infection_type"`
	Allergies     string  `json:"allergies,omitempty"`
	Pregnancy     int     `json:"pregnancy,omitempty"` // 0 = not pregnant, otherwise trimester 1..3
	WeightKg      float64 `json:"weight_kg,omitempty"` // 0 = unknown

	// CrCl is creatinine clearance in mL/min. A nil pointer means unknown;
	// zero is a valid (anuric) measurement.
	CrCl *float64 `json:"crcl_ml_min,omitempty"`

	Fever        bool     `json:"fever,omitempty"`
	Severity     Severity `json:"severity,omitempty"`
	Location     string   `json:"location,omitempty"`
	Presentation string   `json:"presentation,omitempty"`
	MRSARisk     bool     `json:"mrsa_risk,omitempty"`

	// Free-text context preserved for the audit trail; not consumed by the
	// core rules.
	PriorResistance    string `json:"prior_resistance,omitempty"`
	CultureResults     string `json:"culture_results,omitempty"`
	CurrentAntibiotics string `json:"current_antibiotics,omitempty"`
}

// Validate checks the required fields.
func (p *PatientCase) Validate() error {
	if p.Age < 0 {
		return NewValidationError("age", "must be non-negative", p.Age)
	}
	if p.InfectionType == "" {
		return NewValidationError("infection_type", "is required", p.InfectionType)
	}
	if p.Pregnancy < 0 || p.Pregnancy > 3 {
		return NewValidationError("pregnancy", "trimester must be 1, 2 or 3", p.Pregnancy)
	}
	if p.WeightKg < 0 {
		return NewValidationError("weight_kg", "must be positive", p.WeightKg)
	}
	if p.CrCl != nil && *p.CrCl < 0 {
		return NewValidationError("crcl_ml_min", "must be non-negative", *p.CrCl)
	}
	return nil
}

// Selection is the drug selector output: which drugs to give, and why.
type Selection struct {
	InfectionCategory     string        `json:"infection_category"`
	Route                 Route         `json:"route"`
	AllergyClassification AllergyStatus `json:"allergy_classification"`
	DrugIDs               []string      `json:"drug_ids"`
	Rationale             []string      `json:"rationale"`
	Warnings              []string      `json:"warnings"`
	Errors                []string      `json:"errors"`

	// Structural signals consumed by the confidence scorer.
	SubcategoryFallback bool `json:"-"`
	PregnancyFiltered   bool `json:"-"`
	AllergyInferred     bool `json:"-"`
}

// CalculatedDose holds weight-derived doses for weight-based drugs.
type CalculatedDose struct {
	LoadingDose     string `json:"loading_dose_calculated,omitempty"`
	MaintenanceDose string `json:"maintenance_dose_calculated,omitempty"`
}

// DosedDrug is one fully specified drug order within a regimen.
type DosedDrug struct {
	DrugID         string          `json:"drug_id"`
	DrugName       string          `json:"drug_name"`
	Class          string          `json:"class"`
	Dose           string          `json:"dose"`
	Frequency      string          `json:"frequency,omitempty"`
	Route          string          `json:"route,omitempty"`
	Duration       string          `json:"duration,omitempty"`
	LoadingDose    string          `json:"loading_dose,omitempty"`
	CalculatedDose *CalculatedDose `json:"calculated_dose,omitempty"`
	Coverage       []string        `json:"coverage,omitempty"`
	Notes          []string        `json:"notes,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Monitoring     []string        `json:"monitoring,omitempty"`
	RenalAdjusted  bool            `json:"renal_adjusted,omitempty"`
	OriginalDose   string          `json:"original_dose,omitempty"`
}

// RegimenPlan is the dose calculator output for a whole drug combination.
type RegimenPlan struct {
	Drugs      []DosedDrug `json:"drugs"`
	Monitoring []string    `json:"monitoring"`
	Warnings   []string    `json:"warnings"`
	Errors     []string    `json:"errors"`

	// Structural signals consumed by the confidence scorer.
	WeightCalcSkipped bool `json:"-"`
	RenalEdgeTier     bool `json:"-"`
	ManualDoseChecks  bool `json:"-"`
}

// Metadata carries versioning and confidence context on a recommendation.
type Metadata struct {
	Version         string  `json:"version"`
	GuidelineSource string  `json:"guideline_source,omitempty"`
	DrugCount       int     `json:"drug_count"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// Recommendation is the engine result. Errors never propagate as panics or
// returned error values across the Recommend boundary; structural failures
// set Success=false and populate Errors.
type Recommendation struct {
	Success               bool          `json:"success"`
	RecommendationText    string        `json:"recommendation_text,omitempty"`
	Drugs                 []DosedDrug   `json:"drugs,omitempty"`
	InfectionCategory     string        `json:"infection_category,omitempty"`
	AllergyClassification AllergyStatus `json:"allergy_classification,omitempty"`
	Route                 Route         `json:"route,omitempty"`
	Rationale             []string      `json:"rationale"`
	Monitoring            []string      `json:"monitoring"`
	Warnings              []string      `json:"warnings"`
	Errors                []string      `json:"errors"`
	Metadata              Metadata      `json:"metadata"`

	// Structural selection signals, exported for the confidence scorer.
	Signals ConfidenceSignals `json:"-"`
}

// ConfidenceSignals are the structural facts the confidence scorer consumes.
// A rule engine has no free text to grade, so confidence is derived from how
// cleanly the case mapped onto the guidelines.
type ConfidenceSignals struct {
	SubcategoryFallback bool
	PregnancyFiltered   bool
	SevereAllergy       bool
	AllergyInferred     bool
	RenalEdgeTier       bool
	WeightMissing       bool
	ExtraWarnings       bool
}

// EvidenceSource is a single external evidence hit.
type EvidenceSource struct {
	SourceName      string  `json:"source_name"`
	Title           string  `json:"title"`
	URL             string  `json:"url,omitempty"`
	RelevanceScore  float64 `json:"relevance_score"`
	KeyFinding      string  `json:"key_finding,omitempty"`
	PublicationDate string  `json:"publication_date,omitempty"`
}

// SearchTrace records which tier was entered and what it produced.
type SearchTrace struct {
	Tier              SearchTier       `json:"tier"`
	Reasoning         string           `json:"reasoning"`
	Searched          bool             `json:"searched"`
	ReputableSources  []EvidenceSource `json:"reputable_sources,omitempty"`
	BroaderSources    []EvidenceSource `json:"broader_sources,omitempty"`
	InitialConfidence float64          `json:"initial_confidence"`
	FinalConfidence   float64          `json:"final_confidence"`
	History           []string         `json:"search_history"`
}
