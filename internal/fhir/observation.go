// Package fhir implements the minimal slice of FHIR R4 needed to decode
// and re-encode an Observation resource: code/value/subject/effective
// time plus the component and reference-range shapes the Clinical Emitter
// maps into GDT fields (spec.md §6).
//
// No FHIR client library appears anywhere in the retrieved example pack,
// so this type is grounded directly in spec.md's field-mapping table
// rather than copied from a reference implementation (see DESIGN.md).
package fhir

import "encoding/json"

// Coding is a single FHIR Coding element (system + code + display).
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a FHIR CodeableConcept: a list of Codings plus free text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Reference is a FHIR Reference element.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Quantity is a FHIR Quantity (measured value + unit).
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// Range is a FHIR Range (low/high Quantity bounds).
type Range struct {
	Low  *Quantity `json:"low,omitempty"`
	High *Quantity `json:"high,omitempty"`
}

// RatioValue is a FHIR Ratio (numerator/denominator Quantity).
type RatioValue struct {
	Numerator   *Quantity `json:"numerator,omitempty"`
	Denominator *Quantity `json:"denominator,omitempty"`
}

// Period is a FHIR Period (start/end instants, RFC3339 strings).
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Component is a FHIR Observation.component entry (used for ECG metrics
// such as heart rate, sampling frequency, and lead voltage counts).
type Component struct {
	Code            CodeableConcept  `json:"code"`
	ValueQuantity   *Quantity        `json:"valueQuantity,omitempty"`
	ValueString     string           `json:"valueString,omitempty"`
	ValueCodeable   *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueInteger    *int             `json:"valueInteger,omitempty"`
}

// Observation is a (deliberately partial) FHIR R4 Observation resource:
// only the elements spec.md §6's field-mapping table names are modeled.
// Structural decode only — no FHIR schema validation is performed,
// per spec.md's explicit Non-goal.
type Observation struct {
	ResourceType string `json:"resourceType,omitempty"`
	ID           string `json:"id,omitempty"`
	Status       string `json:"status,omitempty"`

	Category []CodeableConcept `json:"category,omitempty"`
	Code     CodeableConcept   `json:"code"`
	Subject  *Reference        `json:"subject,omitempty"`

	EffectiveDateTime string  `json:"effectiveDateTime,omitempty"`
	EffectivePeriod   *Period `json:"effectivePeriod,omitempty"`
	EffectiveInstant  string  `json:"effectiveInstant,omitempty"`

	ValueQuantity        *Quantity        `json:"valueQuantity,omitempty"`
	ValueString          string           `json:"valueString,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
	ValueInteger         *int             `json:"valueInteger,omitempty"`
	ValueRange           *Range           `json:"valueRange,omitempty"`
	ValueRatio           *RatioValue      `json:"valueRatio,omitempty"`
	ValuePeriod          *Period          `json:"valuePeriod,omitempty"`

	Interpretation []CodeableConcept `json:"interpretation,omitempty"`

	ReferenceRange []struct {
		Low  *Quantity `json:"low,omitempty"`
		High *Quantity `json:"high,omitempty"`
	} `json:"referenceRange,omitempty"`

	Component []Component `json:"component,omitempty"`
}

// Decode parses a single FHIR Observation from raw JSON.
func Decode(raw json.RawMessage) (Observation, error) {
	var o Observation
	if err := json.Unmarshal(raw, &o); err != nil {
		return Observation{}, err
	}
	return o, nil
}

// BundleEntry models one entry of a FHIR transaction Bundle.
type BundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

// Bundle models the minimal transaction Bundle shape the mobile client
// submits: a list of entries, each wrapping one Observation resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

// Observations decodes every entry of the bundle as an Observation,
// skipping (not failing) any entry whose resourceType is set to something
// other than Observation; an entry with no resourceType is decoded too.
func (b Bundle) Observations() ([]Observation, error) {
	var out []Observation
	for _, e := range b.Entry {
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(e.Resource, &probe); err != nil {
			return nil, err
		}
		if probe.ResourceType != "" && probe.ResourceType != "Observation" {
			continue
		}
		obs, err := Decode(e.Resource)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}
