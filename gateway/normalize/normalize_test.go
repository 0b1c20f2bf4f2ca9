package normalize

import (
	"testing"

	"github.com/yanniks/health-companion-prototype/internal/fhir"
)

func TestObservationRewritesVendorCodeToStandardSystem(t *testing.T) {
	obs := fhir.Observation{
		Code: fhir.CodeableConcept{Coding: []fhir.Coding{
			{System: VendorSystem, Code: "ecg-study"},
		}},
	}
	got := Observation(obs)
	if len(got.Code.Coding) != 1 {
		t.Fatalf("expected 1 coding, got %d", len(got.Code.Coding))
	}
	coding := got.Code.Coding[0]
	if coding.System != "http://loinc.org" || coding.Code != "34534-8" {
		t.Errorf("coding = %+v, want LOINC 34534-8", coding)
	}
}

func TestObservationLeavesNonVendorSystemsUntouched(t *testing.T) {
	obs := fhir.Observation{
		Code: fhir.CodeableConcept{Coding: []fhir.Coding{
			{System: "http://loinc.org", Code: "8867-4", Display: "heart rate"},
		}},
	}
	got := Observation(obs)
	if got.Code.Coding[0].Code != "8867-4" {
		t.Errorf("non-vendor coding was rewritten: %+v", got.Code.Coding[0])
	}
}

func TestObservationRewritesCategoryAndComponentCodings(t *testing.T) {
	obs := fhir.Observation{
		Category: []fhir.CodeableConcept{{Coding: []fhir.Coding{{System: VendorSystem, Code: "symptom-finding"}}}},
		Component: []fhir.Component{
			{Code: fhir.CodeableConcept{Coding: []fhir.Coding{{System: VendorSystem, Code: "voltage-count"}}}},
		},
	}
	got := Observation(obs)
	if got.Category[0].Coding[0].System != "http://snomed.info/sct" {
		t.Errorf("category coding not rewritten: %+v", got.Category[0].Coding[0])
	}
	if got.Component[0].Code.Coding[0].System != "urn:iso:std:iso:11073:10101" {
		t.Errorf("component coding not rewritten: %+v", got.Component[0].Code.Coding[0])
	}
}

func TestObservationUnmappedVendorCodePassesThrough(t *testing.T) {
	obs := fhir.Observation{
		Code: fhir.CodeableConcept{Coding: []fhir.Coding{{System: VendorSystem, Code: "totally-unknown"}}},
	}
	got := Observation(obs)
	if got.Code.Coding[0].System != VendorSystem || got.Code.Coding[0].Code != "totally-unknown" {
		t.Errorf("unmapped vendor code should pass through verbatim, got %+v", got.Code.Coding[0])
	}
}

func TestObservationAppliesClassificationLabelFallback(t *testing.T) {
	obs := fhir.Observation{
		Code: fhir.CodeableConcept{Coding: []fhir.Coding{{System: VendorSystem, Code: "NORMAL"}}},
	}
	got := Observation(obs)
	if got.Code.Coding[0].Display != "Normal" {
		t.Errorf("Display = %q, want Normal", got.Code.Coding[0].Display)
	}
	if got.Code.Coding[0].System != VendorSystem {
		t.Errorf("classification fallback should not rewrite the system, got %q", got.Code.Coding[0].System)
	}
}

func TestObservationEmptyCategoryBecomesNil(t *testing.T) {
	obs := fhir.Observation{Category: []fhir.CodeableConcept{}}
	got := Observation(obs)
	if got.Category != nil {
		t.Errorf("expected empty Category to become nil, got %+v", got.Category)
	}
}

func TestNoVendorSystemSurvivesNormalization(t *testing.T) {
	obs := fhir.Observation{
		Code: fhir.CodeableConcept{Coding: []fhir.Coding{
			{System: VendorSystem, Code: "ecg-study"},
			{System: VendorSystem, Code: "ecg-impression"},
			{System: VendorSystem, Code: "voltage-count"},
			{System: VendorSystem, Code: "sampling-freq"},
			{System: VendorSystem, Code: "symptom-finding"},
		}},
	}
	got := Observation(obs)
	for _, coding := range got.Code.Coding {
		if coding.System == VendorSystem {
			t.Errorf("coding %+v still carries the vendor system after normalization", coding)
		}
	}
}
