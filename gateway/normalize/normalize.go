// Package normalize replaces vendor-specific FHIR codings with their
// standard-system equivalents (LOINC, MDC, SNOMED-CT), per spec.md §4.2
// Code normalization. The maps are compile-time tables, grounded on the
// internal/fhir decode types this package rewrites in place.
package normalize

import "github.com/yanniks/health-companion-prototype/internal/fhir"

// VendorSystem is the proprietary coding system identifier this gateway
// translates away. A prototype vendor literal stands in for the real
// device manufacturer's URI named in deployment configuration.
const VendorSystem = "https://vendor.example.com/fhir/CodeSystem/pghd-device"

// standardCoding is the standard-system equivalent of one vendor code.
type standardCoding struct {
	System  string
	Code    string
	Display string
}

// codeMap is the compile-time vendor-code → standard-system table of
// spec.md §4.2: ECG study, ECG impression, voltage-measurement count,
// sampling frequency, symptom finding.
var codeMap = map[string]standardCoding{
	"ecg-study":        {System: "http://loinc.org", Code: "34534-8", Display: "ECG study"},
	"ecg-impression":   {System: "http://loinc.org", Code: "34535-5", Display: "ECG impression"},
	"voltage-count":    {System: "urn:iso:std:iso:11073:10101", Code: "131329", Display: "MDC_ECG_AMPL_ST"},
	"sampling-freq":    {System: "urn:iso:std:iso:11073:10101", Code: "149546", Display: "MDC_ATTR_SAMP_RATE"},
	"symptom-finding":  {System: "http://snomed.info/sct", Code: "404684003", Display: "Clinical finding"},
}

// classificationLabels normalizes classification enum raw strings to
// human-readable labels (spec.md §4.2 second compile-time map).
var classificationLabels = map[string]string{
	"NORMAL":   "Normal",
	"ABNORMAL": "Abnormal",
	"BORDERLINE": "Borderline",
	"UNKNOWN":  "Unknown",
}

// Observation rewrites every code, category and component coding in obs
// whose system equals VendorSystem and whose code is in codeMap to its
// standard-system equivalent. A vendor coding whose code is a
// classificationLabels key keeps its system and code and gets the label as
// its display; non-vendor codings and other vendor codes pass through
// verbatim. Empty coding arrays become absent (nil).
func Observation(obs fhir.Observation) fhir.Observation {
	obs.Code = concept(obs.Code)
	for i, cat := range obs.Category {
		obs.Category[i] = concept(cat)
	}
	if len(obs.Category) == 0 {
		obs.Category = nil
	}
	for i, comp := range obs.Component {
		obs.Component[i].Code = concept(comp.Code)
	}
	return obs
}

func concept(c fhir.CodeableConcept) fhir.CodeableConcept {
	if len(c.Coding) == 0 {
		c.Coding = nil
		return c
	}
	out := make([]fhir.Coding, len(c.Coding))
	for i, coding := range c.Coding {
		out[i] = normalizeCoding(coding)
	}
	c.Coding = out
	return c
}

func normalizeCoding(c fhir.Coding) fhir.Coding {
	if c.System != VendorSystem {
		return c
	}
	if std, ok := codeMap[c.Code]; ok {
		return fhir.Coding{System: std.System, Code: std.Code, Display: std.Display}
	}
	if label, ok := classificationLabels[c.Code]; ok {
		c.Display = label
		return c
	}
	return c
}
