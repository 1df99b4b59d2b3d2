// Package dicom implements the DICOM data-set codec and Part-10 file format:
// explicit/implicit VR, little/big endian, nested sequences, encapsulated
// pixel data, and the file-meta-information preamble that identifies a
// stand-alone DICOM file.
package dicom

import (
	"strconv"
	"strings"

	dicomerrors "github.com/pacsway/dicomstack/errors"
	"github.com/pacsway/dicomstack/tag"
	"github.com/pacsway/dicomstack/value"
)

// Tag is an alias for tag.Tag so callers that already import dicom don't
// also need to import tag for the common case of building/comparing tags.
type Tag = tag.Tag

// EncapsulatedPixelData holds the Basic Offset Table and per-frame
// fragments of a PixelData element encoded under an encapsulated transfer
// syntax (PS3.5 Annex A.4).
type EncapsulatedPixelData struct {
	BasicOffsetTable []uint32
	Fragments        [][]byte
}

// Element is one decoded data-set entry: a tag, its VR, and its value.
//
// Value holds one of: string (text VRs), []uint16/[]uint32/[]int16/[]int32/
// []float32/[]float64 (fixed-width numeric VRs, always a slice even for
// VM=1, since DICOM never limits VM to exactly one), []byte (OB/OW/OF/etc.
// binary blobs with a defined length), []*Dataset (SQ, one entry per item),
// or *EncapsulatedPixelData (PixelData under an encapsulated transfer syntax).
type Element struct {
	Tag   Tag
	VR    tag.VR
	Value interface{}
}

// Dataset is an unordered collection of elements keyed by tag. Encoding
// always emits elements in ascending tag order regardless of insertion
// order, per PS3.5 Section 7's ordering requirement.
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset returns an empty data set.
func NewDataset() *Dataset {
	return &Dataset{Elements: make(map[Tag]*Element)}
}

// Put inserts or replaces an element.
func (d *Dataset) Put(t Tag, vr tag.VR, value interface{}) {
	d.Elements[t] = &Element{Tag: t, VR: vr, Value: value}
}

// AddElement is the teacher-idiom alias for Put, taking a string VR mnemonic
// for callers still working with wire-form VR strings.
func (d *Dataset) AddElement(t Tag, vrName string, value interface{}) {
	vr, err := tag.ParseVR(vrName)
	if err != nil {
		vr = tag.UN
	}
	d.Put(t, vr, value)
}

// GetElement returns the element at t, if present.
func (d *Dataset) GetElement(t Tag) (*Element, bool) {
	e, ok := d.Elements[t]
	return e, ok
}

// Tags returns every tag present, sorted in ascending wire order.
func (d *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(d.Elements))
	for t := range d.Elements {
		tags = append(tags, t)
	}
	sortTags(tags)
	return tags
}

func sortTags(tags []Tag) {
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j].Before(tags[j-1]); j-- {
			tags[j], tags[j-1] = tags[j-1], tags[j]
		}
	}
}

// GetString returns the trimmed string value of a text element, or "" if
// absent or not a string.
func (d *Dataset) GetString(t Tag) string {
	e, ok := d.Elements[t]
	if !ok {
		return ""
	}
	s, _ := e.Value.(string)
	return strings.Trim(s, " \x00")
}

// GetStrings splits a multi-valued text element on its backslash separators.
func (d *Dataset) GetStrings(t Tag) []string {
	e, ok := d.Elements[t]
	if !ok {
		return nil
	}
	switch v := e.Value.(type) {
	case string:
		parts := strings.Split(v, "\\")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out
	case []string:
		return v
	}
	return nil
}

// GetInt returns the first value of an integer-valued element (US/UL/SS/SL/
// IS encoded as string, or a numeric slice), or ok=false if absent or empty.
func (d *Dataset) GetInt(t Tag) (int64, bool) {
	e, ok := d.Elements[t]
	if !ok {
		return 0, false
	}
	switch v := e.Value.(type) {
	case []uint16:
		if len(v) == 0 {
			return 0, false
		}
		return int64(v[0]), true
	case []uint32:
		if len(v) == 0 {
			return 0, false
		}
		return int64(v[0]), true
	case []int16:
		if len(v) == 0 {
			return 0, false
		}
		return int64(v[0]), true
	case []int32:
		if len(v) == 0 {
			return 0, false
		}
		return int64(v[0]), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(strings.SplitN(v, "\\", 2)[0]), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// GetFloat returns the first value of a floating/decimal-valued element.
func (d *Dataset) GetFloat(t Tag) (float64, bool) {
	e, ok := d.Elements[t]
	if !ok {
		return 0, false
	}
	switch v := e.Value.(type) {
	case []float32:
		if len(v) == 0 {
			return 0, false
		}
		return float64(v[0]), true
	case []float64:
		if len(v) == 0 {
			return 0, false
		}
		return v[0], true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.SplitN(v, "\\", 2)[0]), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// GetUID returns the UI value at t, validated per UID syntax (PS3.5
// Section 9), or a *dicomerrors.ValueError (ValueErrorUIDSyntax) if the
// stored text fails validation. Absent is not an error: it returns "",
// nil, matching GetString's treatment of a missing element.
func (d *Dataset) GetUID(t Tag) (string, error) {
	s := d.GetString(t)
	if s == "" {
		return "", nil
	}
	uid, err := value.ParseUID(s)
	if err != nil {
		return "", dicomerrors.NewValueError(dicomerrors.ValueErrorUIDSyntax, t.String(), "UI", err.Error())
	}
	return uid, nil
}

// GetCodeString returns the CS value at t, trimmed and validated against
// its restricted character repertoire.
func (d *Dataset) GetCodeString(t Tag) (string, error) {
	s := d.GetString(t)
	if s == "" {
		return "", nil
	}
	cs, err := value.ParseCodeString(s)
	if err != nil {
		return "", dicomerrors.NewValueError(dicomerrors.ValueErrorVRViolation, t.String(), "CS", err.Error())
	}
	return cs, nil
}

// GetApplicationEntity returns the AE value at t, trimmed and validated
// for length and character repertoire.
func (d *Dataset) GetApplicationEntity(t Tag) (string, error) {
	s := d.GetString(t)
	if s == "" {
		return "", nil
	}
	ae, err := value.ParseApplicationEntity(s)
	if err != nil {
		return "", dicomerrors.NewValueError(dicomerrors.ValueErrorVRViolation, t.String(), "AE", err.Error())
	}
	return ae, nil
}

// GetURI returns the UR value at t, validated for its mandatory scheme
// prefix and absence of spaces/control characters.
func (d *Dataset) GetURI(t Tag) (string, error) {
	s := d.GetString(t)
	if s == "" {
		return "", nil
	}
	u, err := value.ParseURI(s)
	if err != nil {
		return "", dicomerrors.NewValueError(dicomerrors.ValueErrorVRViolation, t.String(), "UR", err.Error())
	}
	return u, nil
}

// GetDate returns the DA value at t parsed into a value.Date, or a
// *dicomerrors.ValueError (ValueErrorMalformedDateTime) if malformed.
func (d *Dataset) GetDate(t Tag) (value.Date, error) {
	s := d.GetString(t)
	if s == "" {
		return value.Date{}, nil
	}
	date, err := value.ParseDate(s)
	if err != nil {
		return value.Date{}, dicomerrors.NewValueError(dicomerrors.ValueErrorMalformedDateTime, t.String(), "DA", err.Error())
	}
	return date, nil
}

// GetDecimalString returns the DS value at t as a float64, or a
// *dicomerrors.ValueError (ValueErrorMalformedNumeric) if malformed.
func (d *Dataset) GetDecimalString(t Tag) (float64, error) {
	s := d.GetString(t)
	if s == "" {
		return 0, nil
	}
	f, err := value.ParseDecimalString(s)
	if err != nil {
		return 0, dicomerrors.NewValueError(dicomerrors.ValueErrorMalformedNumeric, t.String(), "DS", err.Error())
	}
	return f, nil
}

// GetSequence returns the items of a Sequence of Items element.
func (d *Dataset) GetSequence(t Tag) ([]*Dataset, bool) {
	e, ok := d.Elements[t]
	if !ok {
		return nil, false
	}
	items, ok := e.Value.([]*Dataset)
	return items, ok
}

// GetEncapsulatedPixelData returns the fragment list of an encapsulated
// PixelData element.
func (d *Dataset) GetEncapsulatedPixelData() (*EncapsulatedPixelData, bool) {
	e, ok := d.Elements[tag.PixelData]
	if !ok {
		return nil, false
	}
	p, ok := e.Value.(*EncapsulatedPixelData)
	return p, ok
}
