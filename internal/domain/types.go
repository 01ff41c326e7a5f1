package domain

// Route of administration for an antibiotic regimen.
type Route string

const (
	RouteIV Route = "IV"
	RoutePO Route = "PO"
)

// AllergyStatus partitions penicillin allergy history. The partition controls
// which regimens a category offers: severe blocks all beta-lactams sharing the
// penicillin side chain, mild still permits cephalosporins.
type AllergyStatus string

const (
	NoAllergy        AllergyStatus = "no_allergy"
	MildPCNAllergy   AllergyStatus = "mild_pcn_allergy"
	SeverePCNAllergy AllergyStatus = "severe_pcn_allergy"
	OtherAllergy     AllergyStatus = "other"
)

// String implements fmt.Stringer.
func (a AllergyStatus) String() string {
	return string(a)
}

// RegimenStatus returns the allergy status used to query regimens. Non-PCN
// allergies have no dedicated regimens in the guideline files, so they fall
// back to the no-allergy arm while still being reported as "other".
func (a AllergyStatus) RegimenStatus() AllergyStatus {
	if a == OtherAllergy {
		return NoAllergy
	}
	return a
}

// Severity buckets used by infection subcategory rules.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// PregnancySafety grades from a drug monograph.
const (
	PregnancySafe            = "safe"
	PregnancyCaution         = "caution"
	PregnancyAvoid           = "avoid"
	PregnancyContraindicated = "contraindicated"
)

// SearchTier identifies which stage of the evidence search was entered.
type SearchTier string

const (
	TierGuidelineOnly SearchTier = "tuhs_only"
	TierReputable     SearchTier = "reputable_sites"
	TierBroader       SearchTier = "broader_search"
)
