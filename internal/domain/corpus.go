package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IndexDoc is the root metadata document of a guideline corpus.
type IndexDoc struct {
	Version      string                    `json:"version"`
	Description  string                    `json:"description,omitempty"`
	LoadingOrder []string                  `json:"loading_order"`
	Infections   map[string]IndexInfection `json:"infections"`
}

// IndexInfection carries per-infection metadata from index.json.
type IndexInfection struct {
	// CriticalRules are fixed safety assertions that must surface in every
	// recommendation for this infection regardless of regimen selected.
	CriticalRules []string `json:"critical_rules"`
}

// InfectionDoc is one infection protocol file (infections/<id>.json).
type InfectionDoc struct {
	InfectionID string     `json:"infection_id"`
	Description string     `json:"description,omitempty"`
	Categories  []Category `json:"categories"`
}

// Category is an ordered treatment subcategory within an infection
// (e.g. cystitis vs pyelonephritis under uti).
type Category struct {
	Name     string    `json:"category"`
	Route    string    `json:"route,omitempty"`
	Duration string    `json:"duration,omitempty"`
	Regimens []Regimen `json:"regimens"`
}

// Regimen is one allergy-qualified drug combination. File order defines
// precedence: the first regimen whose drugs survive filtering wins.
type Regimen struct {
	AllergyStatus AllergyStatus `json:"allergy_status"`
	Drugs         []string      `json:"drugs"`
	Route         string        `json:"route,omitempty"`
	Duration      string        `json:"duration,omitempty"`
	Reasoning     string        `json:"reasoning,omitempty"`
	Note          string        `json:"note,omitempty"`
}

// RegimenMatch is a regimen enriched with its parent category context, as
// returned by repository queries.
type RegimenMatch struct {
	AllergyStatus AllergyStatus `json:"allergy_status"`
	Drugs         []string      `json:"drugs"`
	Category      string        `json:"category"`
	Route         string        `json:"route"`
	Duration      string        `json:"duration,omitempty"`
	Reasoning     string        `json:"reasoning,omitempty"`
	Note          string        `json:"note,omitempty"`
}

// DrugDoc is one drug monograph file (drugs/<id>.json).
type DrugDoc struct {
	DrugID          string        `json:"drug_id"`
	DrugName        string        `json:"drug_name"`
	Class           string        `json:"class"`
	Spectrum        Spectrum      `json:"spectrum,omitempty"`
	Dosing          Dosing        `json:"dosing"`
	Monitoring      MonitoringDoc `json:"monitoring,omitempty"`
	PregnancySafe   string        `json:"pregnancy_safe,omitempty"`
	PregnancyNotes  string        `json:"pregnancy_notes,omitempty"`
	RenalAdjustment RenalFlag     `json:"renal_adjustment,omitempty"`
}

// Spectrum holds qualitative coverage grades (e.g. "Excellent", "Good", "None").
type Spectrum struct {
	GramPositive string `json:"gram_positive,omitempty"`
	GramNegative string `json:"gram_negative,omitempty"`
	Anaerobes    string `json:"anaerobes,omitempty"`
	Atypicals    string `json:"atypicals,omitempty"`
}

// Dosing wraps the per-indication dose table.
type Dosing struct {
	ByIndication DoseMap `json:"by_indication"`
}

// MonitoringDoc lists monitoring items required whenever the drug is ordered.
// Required has no omitempty: an explicit empty list must survive re-encoding
// so a serialized corpus reloads equivalent.
type MonitoringDoc struct {
	Required []string `json:"required"`
}

// RenalFlag marks drugs where a missed renal adjustment is a safety event.
type RenalFlag struct {
	Critical bool `json:"critical,omitempty"`
}

// DoseEntry is one indication-specific dose specification.
type DoseEntry struct {
	Dose            string `json:"dose,omitempty"`
	MaintenanceDose string `json:"maintenance_dose,omitempty"`
	LoadingDose     string `json:"loading_dose,omitempty"`
	Frequency       string `json:"frequency,omitempty"`
	Route           string `json:"route,omitempty"`
	Duration        string `json:"duration,omitempty"`
	Note            string `json:"note,omitempty"`
	CriticalNote    string `json:"critical_note,omitempty"`
}

// EffectiveDose returns the dose string, preferring the maintenance field.
func (d DoseEntry) EffectiveDose() string {
	if d.Dose != "" {
		return d.Dose
	}
	return d.MaintenanceDose
}

// DoseMap is an insertion-ordered indication -> DoseEntry table. Order matters:
// the substring fallback in dose lookup must be deterministic, so the first
// matching key in file order wins.
type DoseMap struct {
	keys    []string
	entries map[string]DoseEntry
}

// Get returns the entry for an exact indication key.
func (m *DoseMap) Get(indication string) (DoseEntry, bool) {
	e, ok := m.entries[indication]
	return e, ok
}

// Keys returns indication keys in file order.
func (m *DoseMap) Keys() []string {
	return m.keys
}

// Len returns the number of indications.
func (m *DoseMap) Len() int {
	return len(m.keys)
}

// Set appends or replaces an entry, preserving insertion order.
func (m *DoseMap) Set(indication string, entry DoseEntry) {
	if m.entries == nil {
		m.entries = make(map[string]DoseEntry)
	}
	if _, exists := m.entries[indication]; !exists {
		m.keys = append(m.keys, indication)
	}
	m.entries[indication] = entry
}

// UnmarshalJSON decodes the object while recording key order.
func (m *DoseMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("by_indication: expected object, got %v", tok)
	}
	m.keys = nil
	m.entries = make(map[string]DoseEntry)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var entry DoseEntry
		if err := dec.Decode(&entry); err != nil {
			return fmt.Errorf("by_indication[%s]: %w", key, err)
		}
		m.Set(key, entry)
	}
	_, err = dec.Token() // closing brace
	return err
}

// MarshalJSON encodes entries in insertion order.
func (m DoseMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		entryJSON, err := json.Marshal(m.entries[key])
		if err != nil {
			return nil, err
		}
		buf.Write(entryJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AllergyRules is the modifiers/allergy_rules.json document.
type AllergyRules struct {
	Classification AllergyClassification `json:"allergy_classification"`
}

// AllergyClassification holds the severity keyword lists.
type AllergyClassification struct {
	Mild   KeywordSet `json:"mild"`
	Severe KeywordSet `json:"severe"`
}

// KeywordSet is a case-insensitive substring keyword list.
type KeywordSet struct {
	Keywords []string `json:"keywords"`
}

// PregnancyRules is the modifiers/pregnancy_rules.json document.
type PregnancyRules struct {
	Contraindicated   map[string]ContraindicatedClass `json:"contraindicated_antibiotics"`
	TrimesterGuidance TrimesterGuidance               `json:"trimester_specific_guidance,omitempty"`
}

// ContraindicatedClass groups drugs blocked in pregnancy with the clinical reason.
type ContraindicatedClass struct {
	Drugs    []string `json:"drugs"`
	Reason   string   `json:"reason"`
	Severity string   `json:"severity"`
}

// TrimesterGuidance carries trimester-scoped avoid lists.
type TrimesterGuidance struct {
	FirstTrimester       TrimesterAvoid `json:"first_trimester,omitempty"`
	SecondThirdTrimester TrimesterAvoid `json:"second_third_trimester,omitempty"`
}

// TrimesterAvoid lists drug ids to avoid in the trimester window.
type TrimesterAvoid struct {
	Avoid []string `json:"avoid,omitempty"`
}

// RenalRules is the modifiers/renal_adjustment_rules.json document.
type RenalRules struct {
	DrugsRequiringAdjustment map[string]RenalDrugRule `json:"drugs_requiring_adjustment"`
}

// RenalDrugRule holds the CrCl-tiered dose overrides for one drug.
type RenalDrugRule struct {
	AdjustmentRequired bool     `json:"adjustment_required"`
	CrCl3060           string   `json:"crcl_30_60,omitempty"`
	CrCl1529           string   `json:"crcl_15_29,omitempty"`
	CrCl1029           string   `json:"crcl_10_29,omitempty"`
	CrClLt15           string   `json:"crcl_lt_15,omitempty"`
	CrClLt10           string   `json:"crcl_lt_10,omitempty"`
	Note               string   `json:"note,omitempty"`
	Monitoring         []string `json:"monitoring,omitempty"`
}

// Modifiers groups the cross-cutting rule documents.
type Modifiers struct {
	Allergy   *AllergyRules
	Pregnancy *PregnancyRules
	Renal     *RenalRules
	// Raw keeps every loaded modifier by file stem for round-trip
	// serialization and diagnostics.
	Raw map[string]json.RawMessage
}

// Corpus is the fully loaded, immutable guideline snapshot. It is built once
// by the loader and only replaced wholesale on reload; all query methods are
// pure reads.
type Corpus struct {
	Index          IndexDoc
	Infections     map[string]*InfectionDoc
	InfectionOrder []string
	Drugs          map[string]*DrugDoc
	DrugOrder      []string
	Modifiers      Modifiers
	// Violations is the cross-reference validation report produced at load.
	// Non-empty is not fatal but must surface through diagnostics.
	Violations []string
}

// DrugIDs returns every known drug id in load order.
func (c *Corpus) DrugIDs() []string {
	return c.DrugOrder
}

// InfectionIDs returns every known infection id in load order.
func (c *Corpus) InfectionIDs() []string {
	return c.InfectionOrder
}
