package tag

import "fmt"

// VR is a DICOM Value Representation: the wire type of an element's value.
//
// See DICOM PS3.5 Section 6.2 for the closed set of 34 standard VRs.
type VR uint8

const (
	AE VR = iota + 1 // Application Entity
	AS                // Age String
	AT                // Attribute Tag
	CS                // Code String
	DA                // Date
	DS                // Decimal String
	DT                // Date Time
	FL                // Floating Point Single
	FD                // Floating Point Double
	IS                // Integer String
	LO                // Long String
	LT                // Long Text
	OB                // Other Byte
	OD                // Other Double
	OF                // Other Float
	OL                // Other Long
	OV                // Other Very Long
	OW                // Other Word
	PN                // Person Name
	SH                // Short String
	SL                // Signed Long
	SQ                // Sequence of Items
	SS                // Signed Short
	ST                // Short Text
	SV                // Signed Very Long
	TM                // Time
	UC                // Unlimited Characters
	UI                // Unique Identifier
	UL                // Unsigned Long
	UN                // Unknown
	UR                // Universal Resource Identifier
	US                // Unsigned Short
	UT                // Unlimited Text
	UV                // Unsigned Very Long
)

var vrNames = map[VR]string{
	AE: "AE", AS: "AS", AT: "AT", CS: "CS", DA: "DA", DS: "DS", DT: "DT",
	FL: "FL", FD: "FD", IS: "IS", LO: "LO", LT: "LT", OB: "OB", OD: "OD",
	OF: "OF", OL: "OL", OV: "OV", OW: "OW", PN: "PN", SH: "SH", SL: "SL",
	SQ: "SQ", SS: "SS", ST: "ST", SV: "SV", TM: "TM", UC: "UC", UI: "UI",
	UL: "UL", UN: "UN", UR: "UR", US: "US", UT: "UT", UV: "UV",
}

var namesToVR = func() map[string]VR {
	m := make(map[string]VR, len(vrNames))
	for v, s := range vrNames {
		m[s] = v
	}
	return m
}()

// String returns the two-character VR mnemonic.
func (v VR) String() string {
	if s, ok := vrNames[v]; ok {
		return s
	}
	return "UN"
}

// ParseVR parses a two-character VR mnemonic.
func ParseVR(s string) (VR, error) {
	if v, ok := namesToVR[s]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("tag: unknown VR %q", s)
}

// IsValidVR reports whether s is one of the 34 standard VR mnemonics.
func IsValidVR(s string) bool {
	_, ok := namesToVR[s]
	return ok
}

// UsesLongLengthField reports whether this VR is explicit-VR encoded with
// a 2-byte reserved field followed by a 4-byte length, as opposed to the
// short form's 2-byte length (PS3.5 Section 7.1.2).
func (v VR) UsesLongLengthField() bool {
	switch v {
	case OB, OD, OF, OL, OV, OW, SQ, UC, UN, UR, UT, UV:
		return true
	default:
		return false
	}
}

// PaddingByte returns the byte used to pad an odd-length value to an even
// length: space for character strings, null for UI and binary VRs.
func (v VR) PaddingByte() byte {
	switch v {
	case UI, OB, OD, OF, OL, OV, OW, UN:
		return 0x00
	default:
		return ' '
	}
}

// IsStringType reports whether the VR's value is textual.
func (v VR) IsStringType() bool {
	switch v {
	case AE, AS, CS, DA, DS, DT, IS, LO, LT, PN, SH, ST, TM, UC, UI, UR, UT:
		return true
	default:
		return false
	}
}

// IsBinaryType reports whether the VR's value is a raw binary payload not
// decomposed into fixed-width numeric elements (OB/OW/OF/etc. and UN).
func (v VR) IsBinaryType() bool {
	switch v {
	case OB, OD, OF, OL, OV, OW, UN:
		return true
	default:
		return false
	}
}

// FixedValueWidth returns the byte width of one value for fixed-width binary
// VRs (used to decode multi-valued numeric elements), or 0 if the VR has no
// fixed per-value width.
func (v VR) FixedValueWidth() int {
	switch v {
	case SS, US:
		return 2
	case SL, UL, FL, AT:
		return 4
	case SV, UV, FD:
		return 8
	default:
		return 0
	}
}
