// Package gdt builds GDT 2.1 exchange documents with byte-exact framing,
// per spec.md §4.3/§6. Encoding is ISO-8859-1; lines have the form
// `LLLFFFFContent\r\n` where LLL is the three-digit decimal length of the
// entire line (including the LLL prefix itself) and FFFF is the four-digit
// field identifier.
//
// No GDT or German medical exchange-format library appears anywhere in
// the retrieved example pack, so this package is grounded directly in
// spec.md §4.3/§6's framing rules and internal/filestore's
// write-temp-then-rename persistence discipline (DESIGN.md), rather than
// copied from a reference implementation.
package gdt

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/text/encoding/charmap"
)

// Field identifiers named in spec.md §4.3/§6.
const (
	FieldRecordType   = "8000"
	FieldRecordLength = "8100"
	FieldVersion      = "9218"
	FieldSenderID     = "9106"
	FieldReceiverID   = "9103"
	FieldCharset      = "9206"

	FieldSubjectID        = "3000"
	FieldPatientFamily    = "3101"
	FieldPatientGiven     = "3102"
	FieldObservationDate  = "6200"
	FieldObservationTime  = "6201"
	FieldTestCode         = "8402"
	FieldTestShortName    = "8410"
	FieldTestName         = "8411"
	FieldTestValue        = "8420"
	FieldTestUnit         = "8421"
	FieldTestValueText    = "8460"
	FieldReferenceLow     = "8431"
	FieldReferenceHigh    = "8432"
	FieldReferenceRange   = "8430"
	FieldTestStatus       = "8418"
	FieldInterpretation   = "8480"
	FieldECGHeartRate     = "8501"
	FieldECGMetadata      = "6228"
	FieldECGClassification = "8520"
)

// RecordTypeNewExamination is the record-type code of spec.md §6 "new
// examination data".
const RecordTypeNewExamination = "6310"

// GDTVersion is the protocol version this emitter writes.
const GDTVersion = "02.10"

// CharsetISO8859_1 is the GDT charset identifier for ISO-8859-1 (field 9206).
const CharsetISO8859_1 = "2"

// Field is one {identifier, content} pair added to a Document.
type Field struct {
	ID      string
	Content string
}

// Document accumulates content fields in the order they should appear in
// the serialized file, after the fixed header block.
type Document struct {
	senderID   string
	receiverID string
	fields     []Field
}

// NewDocument starts a document with the sender/receiver identifiers of
// spec.md §6 (`GDT_SENDER_ID`, `GDT_RECEIVER_ID`).
func NewDocument(senderID, receiverID string) *Document {
	return &Document{senderID: senderID, receiverID: receiverID}
}

// AddField appends a content field. Fields with empty content are skipped
// so optional mapped values never emit a dangling empty line.
func (d *Document) AddField(id, content string) {
	if content == "" {
		return
	}
	d.fields = append(d.fields, Field{ID: id, Content: content})
}

func encodeLine(id, content string) ([]byte, error) {
	enc, err := charmap.ISO8859_1.NewEncoder().String(content)
	if err != nil {
		return nil, fmt.Errorf("gdt: content for field %s is not representable in ISO-8859-1: %w", id, err)
	}
	body := id + enc
	total := 3 + len(body) + 2
	return []byte(fmt.Sprintf("%03d%s\r\n", total, body)), nil
}

// Encode serializes the document: record-type, record-length, version,
// sender, receiver, and charset header lines, followed by the content
// fields in insertion order. The record-length value is a fixed-point
// computation (its own digit count affects the total it declares), solved
// by iterating until the declared length stops changing.
func (d *Document) Encode() ([]byte, error) {
	headerLines := [][2]string{
		{FieldRecordType, RecordTypeNewExamination},
		{FieldVersion, GDTVersion},
		{FieldSenderID, d.senderID},
		{FieldReceiverID, d.receiverID},
		{FieldCharset, CharsetISO8859_1},
	}

	var fixedBuf bytes.Buffer
	for _, hl := range headerLines {
		line, err := encodeLine(hl[0], hl[1])
		if err != nil {
			return nil, err
		}
		fixedBuf.Write(line)
	}
	for _, f := range d.fields {
		line, err := encodeLine(f.ID, f.Content)
		if err != nil {
			return nil, err
		}
		fixedBuf.Write(line)
	}
	fixedTotal := fixedBuf.Len()

	// Fixed-point iteration: guess the record-length line's own byte
	// count, recompute the total it would declare, and repeat until the
	// guess stops changing. The value only ever grows when the digit
	// count of the total crosses a power of ten, so this always
	// converges in at most a couple of iterations.
	declared := fixedTotal
	for i := 0; i < 8; i++ {
		content := strconv.Itoa(declared)
		lineLen := 3 + len(FieldRecordLength) + len(content) + 2
		next := fixedTotal + lineLen
		if next == declared {
			break
		}
		declared = next
	}

	recordLengthLine, err := encodeLine(FieldRecordLength, strconv.Itoa(declared))
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	recordTypeLine, err := encodeLine(FieldRecordType, RecordTypeNewExamination)
	if err != nil {
		return nil, err
	}
	out.Write(recordTypeLine)
	out.Write(recordLengthLine)
	for _, hl := range headerLines[1:] {
		line, err := encodeLine(hl[0], hl[1])
		if err != nil {
			return nil, err
		}
		out.Write(line)
	}
	for _, f := range d.fields {
		line, err := encodeLine(f.ID, f.Content)
		if err != nil {
			return nil, err
		}
		out.Write(line)
	}

	if out.Len() != declared {
		return nil, fmt.Errorf("gdt: internal inconsistency: declared length %d does not match encoded length %d", declared, out.Len())
	}
	return out.Bytes(), nil
}
