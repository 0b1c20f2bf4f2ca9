// Field mapping from decoded FHIR Observations to GDT documents, per
// spec.md §4.3/§6's field-mapping table. Grounded on internal/fhir's
// decode types and clinical/gdt's Document builder; the German
// interpretation label set below mirrors normalize.classificationLabels'
// shape (a small compile-time lookup table) one layer over in the gateway.
package clinical

import (
	"strconv"
	"strings"
	"time"

	"github.com/yanniks/health-companion-prototype/clinical/gdt"
	"github.com/yanniks/health-companion-prototype/internal/fhir"
)

// loincECGHeartRate are the two LOINC codes spec.md §4.3 names for the
// ECG heart-rate component (8867-4 "heart rate", 76282-3 "QRS heart rate").
var loincECGHeartRate = map[string]bool{
	"8867-4":  true,
	"76282-3": true,
}

// interpretationLabels maps FHIR interpretation coded values to the German
// label set the GDT record expects in field 8480.
var interpretationLabels = map[string]string{
	"N": "Normal",
	"A": "Abnormal",
	"H": "Hoch",
	"L": "Niedrig",
	"POS": "Positiv",
	"NEG": "Negativ",
}

// synthesizeSubject fills obs.Subject from the caller-supplied patient
// identifier and demographics when the Observation carries none, per
// spec.md §4.3 step 2 (display = "family, given").
func synthesizeSubject(obs fhir.Observation, patientID, givenName, familyName string) fhir.Observation {
	if obs.Subject != nil && obs.Subject.Reference != "" {
		return obs
	}
	display := familyName
	if givenName != "" {
		display = strings.TrimSpace(familyName + ", " + givenName)
	}
	obs.Subject = &fhir.Reference{Reference: "Patient/" + patientID, Display: display}
	return obs
}

// toGDT converts a single (already subject-hydrated) Observation into a
// GDT document, following the field mapping of spec.md §4.3/§6. warnings
// reports fields the mapping could not populate from the source data;
// they do not prevent emission.
func toGDT(obs fhir.Observation, senderID, receiverID string) (*gdt.Document, []string) {
	doc := gdt.NewDocument(senderID, receiverID)
	var warnings []string

	if obs.Subject != nil {
		doc.AddField(gdt.FieldSubjectID, referenceTail(obs.Subject.Reference))
		family, given := splitDisplay(obs.Subject.Display)
		doc.AddField(gdt.FieldPatientFamily, family)
		doc.AddField(gdt.FieldPatientGiven, given)
	} else {
		warnings = append(warnings, "no subject reference available")
	}

	if t, ok := effectiveTime(obs); ok {
		doc.AddField(gdt.FieldObservationDate, t.Format("02012006"))
		doc.AddField(gdt.FieldObservationTime, t.Format("150405"))
	} else {
		warnings = append(warnings, "no effective time available")
	}

	if len(obs.Code.Coding) > 0 {
		first := obs.Code.Coding[0]
		doc.AddField(gdt.FieldTestCode, first.Code)
		doc.AddField(gdt.FieldTestShortName, truncate(first.Display, 20))
	}
	doc.AddField(gdt.FieldTestName, firstNonEmpty(primaryDisplay(obs.Code), obs.Code.Text))

	if obs.ValueQuantity != nil {
		doc.AddField(gdt.FieldTestValue, formatFixedPoint(obs.ValueQuantity.Value))
		doc.AddField(gdt.FieldTestUnit, firstNonEmpty(obs.ValueQuantity.Unit, obs.ValueQuantity.Code))
	}
	doc.AddField(gdt.FieldTestValueText, renderValueText(obs))

	if len(obs.ReferenceRange) > 0 {
		rr := obs.ReferenceRange[0]
		var low, high string
		if rr.Low != nil {
			low = formatFixedPoint(rr.Low.Value)
			doc.AddField(gdt.FieldReferenceLow, low)
		}
		if rr.High != nil {
			high = formatFixedPoint(rr.High.Value)
			doc.AddField(gdt.FieldReferenceHigh, high)
		}
		if low != "" || high != "" {
			doc.AddField(gdt.FieldReferenceRange, strings.TrimSpace(low+" - "+high))
		}
	}

	doc.AddField(gdt.FieldTestStatus, obs.Status)
	doc.AddField(gdt.FieldInterpretation, interpretation(obs))

	for _, comp := range obs.Component {
		addComponent(doc, comp)
	}

	doc.AddField(gdt.FieldECGClassification, classification(obs))

	return doc, warnings
}

func addComponent(doc *gdt.Document, comp fhir.Component) {
	for _, coding := range comp.Code.Coding {
		if loincECGHeartRate[coding.Code] {
			if comp.ValueQuantity != nil {
				doc.AddField(gdt.FieldECGHeartRate, formatFixedPoint(comp.ValueQuantity.Value))
			}
			return
		}
	}
	label := firstNonEmpty(primaryDisplay(comp.Code), comp.Code.Text)
	var value string
	switch {
	case comp.ValueQuantity != nil:
		value = strings.TrimSpace(formatFixedPoint(comp.ValueQuantity.Value) + " " + comp.ValueQuantity.Unit)
	case comp.ValueString != "":
		value = comp.ValueString
	case comp.ValueCodeable != nil:
		value = firstNonEmpty(primaryDisplay(*comp.ValueCodeable), comp.ValueCodeable.Text)
	case comp.ValueInteger != nil:
		value = strconv.Itoa(*comp.ValueInteger)
	}
	if label == "" && value == "" {
		return
	}
	doc.AddField(gdt.FieldECGMetadata, strings.TrimSpace(label+": "+value))
}

// ecgClassificationCodes are the standard codes (the gateway's
// normalization maps the vendor ECG-impression code to them) whose code or
// category coding this mapper treats as the document's overall ECG
// impression/classification (field 8520).
var ecgClassificationCodes = map[string]bool{
	"34535-5": true, // LOINC "ECG impression", see gateway/normalize
}

// classification extracts the ECG impression/classification text from
// obs.Code or obs.Category for field 8520, if present.
func classification(obs fhir.Observation) string {
	for _, coding := range obs.Code.Coding {
		if ecgClassificationCodes[coding.Code] {
			return firstNonEmpty(coding.Display, obs.Code.Text)
		}
	}
	for _, cat := range obs.Category {
		for _, coding := range cat.Coding {
			if ecgClassificationCodes[coding.Code] {
				return firstNonEmpty(coding.Display, cat.Text)
			}
		}
	}
	return ""
}

func interpretation(obs fhir.Observation) string {
	if len(obs.Interpretation) == 0 {
		return ""
	}
	first := obs.Interpretation[0]
	if first.Text != "" {
		return first.Text
	}
	for _, coding := range first.Coding {
		if label, ok := interpretationLabels[coding.Code]; ok {
			return label
		}
		if coding.Display != "" {
			return coding.Display
		}
	}
	return ""
}

func renderValueText(obs fhir.Observation) string {
	switch {
	case obs.ValueString != "":
		return obs.ValueString
	case obs.ValueCodeableConcept != nil:
		return firstNonEmpty(primaryDisplay(*obs.ValueCodeableConcept), obs.ValueCodeableConcept.Text)
	case obs.ValueBoolean != nil:
		if *obs.ValueBoolean {
			return "Positiv"
		}
		return "Negativ"
	case obs.ValueInteger != nil:
		return strconv.Itoa(*obs.ValueInteger)
	case obs.ValueRange != nil:
		var low, high string
		if obs.ValueRange.Low != nil {
			low = formatFixedPoint(obs.ValueRange.Low.Value)
		}
		if obs.ValueRange.High != nil {
			high = formatFixedPoint(obs.ValueRange.High.Value)
		}
		return strings.TrimSpace(low + " - " + high)
	case obs.ValueRatio != nil:
		var num, denom string
		if obs.ValueRatio.Numerator != nil {
			num = formatFixedPoint(obs.ValueRatio.Numerator.Value)
		}
		if obs.ValueRatio.Denominator != nil {
			denom = formatFixedPoint(obs.ValueRatio.Denominator.Value)
		}
		return strings.TrimSpace(num + "/" + denom)
	case obs.ValuePeriod != nil:
		return strings.TrimSpace(obs.ValuePeriod.Start + " - " + obs.ValuePeriod.End)
	}
	return ""
}

func effectiveTime(obs fhir.Observation) (time.Time, bool) {
	raw := obs.EffectiveDateTime
	if raw == "" && obs.EffectivePeriod != nil {
		raw = obs.EffectivePeriod.Start
	}
	if raw == "" {
		raw = obs.EffectiveInstant
	}
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func referenceTail(reference string) string {
	if i := strings.LastIndexByte(reference, '/'); i >= 0 {
		return reference[i+1:]
	}
	return reference
}

func splitDisplay(display string) (family, given string) {
	parts := strings.SplitN(display, ",", 2)
	family = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		given = strings.TrimSpace(parts[1])
	}
	return family, given
}

func primaryDisplay(c fhir.CodeableConcept) string {
	if len(c.Coding) == 0 {
		return ""
	}
	return c.Coding[0].Display
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// formatFixedPoint renders v without a trailing ".0" for whole numbers, as
// GDT's decimal fields expect plain fixed-point text rather than Go's
// default float formatting.
func formatFixedPoint(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
