// Package dictionary provides the read-only tag and UID tables the data-set
// codec consults when a transfer syntax doesn't carry an explicit VR
// (Implicit VR Little Endian) and when building human-readable diagnostics.
//
// This replaces the ad hoc, admittedly-incomplete tag-to-VR switch the
// original Implicit VR decoder used with a real lookup table covering the
// tags this module's services and pixel pipeline need: command-set and
// file-meta tags, the standard image/pixel description tags, and the
// query/retrieve return keys.
package dictionary

import "github.com/pacsway/dicomstack/tag"

// Entry describes one standard data dictionary entry.
type Entry struct {
	VR      tag.VR
	Keyword string
	VM      string // value multiplicity, e.g. "1", "1-n", "2-2n"
}

var entries = map[tag.Tag]Entry{
	tag.New(0x0002, 0x0000): {tag.UL, "FileMetaInformationGroupLength", "1"},
	tag.New(0x0002, 0x0001): {tag.OB, "FileMetaInformationVersion", "1"},
	tag.New(0x0002, 0x0002): {tag.UI, "MediaStorageSOPClassUID", "1"},
	tag.New(0x0002, 0x0003): {tag.UI, "MediaStorageSOPInstanceUID", "1"},
	tag.New(0x0002, 0x0010): {tag.UI, "TransferSyntaxUID", "1"},
	tag.New(0x0002, 0x0012): {tag.UI, "ImplementationClassUID", "1"},
	tag.New(0x0002, 0x0013): {tag.SH, "ImplementationVersionName", "1"},
	tag.New(0x0002, 0x0016): {tag.AE, "SourceApplicationEntityTitle", "1"},

	tag.New(0x0008, 0x0005): {tag.CS, "SpecificCharacterSet", "1-n"},
	tag.New(0x0008, 0x0016): {tag.UI, "SOPClassUID", "1"},
	tag.New(0x0008, 0x0018): {tag.UI, "SOPInstanceUID", "1"},
	tag.New(0x0008, 0x0020): {tag.DA, "StudyDate", "1"},
	tag.New(0x0008, 0x0030): {tag.TM, "StudyTime", "1"},
	tag.New(0x0008, 0x0050): {tag.SH, "AccessionNumber", "1"},
	tag.New(0x0008, 0x0060): {tag.CS, "Modality", "1"},
	tag.New(0x0008, 0x0090): {tag.PN, "ReferringPhysicianName", "1"},
	tag.New(0x0008, 0x1030): {tag.LO, "StudyDescription", "1"},
	tag.New(0x0008, 0x103E): {tag.LO, "SeriesDescription", "1"},

	tag.New(0x0010, 0x0010): {tag.PN, "PatientName", "1"},
	tag.New(0x0010, 0x0020): {tag.LO, "PatientID", "1"},
	tag.New(0x0010, 0x0030): {tag.DA, "PatientBirthDate", "1"},
	tag.New(0x0010, 0x0040): {tag.CS, "PatientSex", "1"},

	tag.New(0x0020, 0x000D): {tag.UI, "StudyInstanceUID", "1"},
	tag.New(0x0020, 0x000E): {tag.UI, "SeriesInstanceUID", "1"},
	tag.New(0x0020, 0x0010): {tag.SH, "StudyID", "1"},
	tag.New(0x0020, 0x0011): {tag.IS, "SeriesNumber", "1"},
	tag.New(0x0020, 0x0013): {tag.IS, "InstanceNumber", "1"},
	tag.New(0x0020, 0x0032): {tag.DS, "ImagePositionPatient", "3"},
	tag.New(0x0020, 0x0037): {tag.DS, "ImageOrientationPatient", "6"},

	tag.New(0x0028, 0x0002): {tag.US, "SamplesPerPixel", "1"},
	tag.New(0x0028, 0x0004): {tag.CS, "PhotometricInterpretation", "1"},
	tag.New(0x0028, 0x0006): {tag.US, "PlanarConfiguration", "1"},
	tag.New(0x0028, 0x0008): {tag.IS, "NumberOfFrames", "1"},
	tag.New(0x0028, 0x0010): {tag.US, "Rows", "1"},
	tag.New(0x0028, 0x0011): {tag.US, "Columns", "1"},
	tag.New(0x0028, 0x0030): {tag.DS, "PixelSpacing", "2"},
	tag.New(0x0028, 0x0100): {tag.US, "BitsAllocated", "1"},
	tag.New(0x0028, 0x0101): {tag.US, "BitsStored", "1"},
	tag.New(0x0028, 0x0102): {tag.US, "HighBit", "1"},
	tag.New(0x0028, 0x0103): {tag.US, "PixelRepresentation", "1"},
	tag.New(0x0028, 0x1050): {tag.DS, "WindowCenter", "1-n"},
	tag.New(0x0028, 0x1051): {tag.DS, "WindowWidth", "1-n"},
	tag.New(0x0028, 0x1052): {tag.DS, "RescaleIntercept", "1"},
	tag.New(0x0028, 0x1053): {tag.DS, "RescaleSlope", "1"},
	tag.New(0x0028, 0x1056): {tag.CS, "VOILUTFunction", "1"},
	tag.New(0x0028, 0x1101): {tag.US, "RedPaletteColorLookupTableDescriptor", "3"},
	tag.New(0x0028, 0x1102): {tag.US, "GreenPaletteColorLookupTableDescriptor", "3"},
	tag.New(0x0028, 0x1103): {tag.US, "BluePaletteColorLookupTableDescriptor", "3"},
	tag.New(0x0028, 0x1201): {tag.OW, "RedPaletteColorLookupTableData", "1"},
	tag.New(0x0028, 0x1202): {tag.OW, "GreenPaletteColorLookupTableData", "1"},
	tag.New(0x0028, 0x1203): {tag.OW, "BluePaletteColorLookupTableData", "1"},

	tag.New(0x7FE0, 0x0010): {tag.OW, "PixelData", "1"},

	tag.New(0x0000, 0x0000): {tag.UL, "CommandGroupLength", "1"},
	tag.New(0x0000, 0x0002): {tag.UI, "AffectedSOPClassUID", "1"},
	tag.New(0x0000, 0x0003): {tag.UI, "RequestedSOPClassUID", "1"},
	tag.New(0x0000, 0x0100): {tag.US, "CommandField", "1"},
	tag.New(0x0000, 0x0110): {tag.US, "MessageID", "1"},
	tag.New(0x0000, 0x0120): {tag.US, "MessageIDBeingRespondedTo", "1"},
	tag.New(0x0000, 0x0600): {tag.AE, "MoveDestination", "1"},
	tag.New(0x0000, 0x0700): {tag.US, "Priority", "1"},
	tag.New(0x0000, 0x0800): {tag.US, "CommandDataSetType", "1"},
	tag.New(0x0000, 0x0900): {tag.US, "Status", "1"},
	tag.New(0x0000, 0x1000): {tag.UI, "AffectedSOPInstanceUID", "1"},
	tag.New(0x0000, 0x1001): {tag.UI, "RequestedSOPInstanceUID", "1"},
	tag.New(0x0000, 0x1002): {tag.US, "EventTypeID", "1"},
	tag.New(0x0000, 0x1008): {tag.US, "ActionTypeID", "1"},
	tag.New(0x0000, 0x1020): {tag.US, "NumberOfRemainingSuboperations", "1"},
	tag.New(0x0000, 0x1021): {tag.US, "NumberOfCompletedSuboperations", "1"},
	tag.New(0x0000, 0x1022): {tag.US, "NumberOfFailedSuboperations", "1"},
	tag.New(0x0000, 0x1023): {tag.US, "NumberOfWarningSuboperations", "1"},
	tag.New(0x0000, 0x1031): {tag.UI, "TransactionUID", "1"},
}

// Lookup returns the dictionary entry for t and whether it was found.
func Lookup(t tag.Tag) (Entry, bool) {
	e, ok := entries[t]
	return e, ok
}

// VRFor returns the VR the standard data dictionary assigns to t. Any
// public group-length tag (gggg,0000) is UL. It falls back to UN when the
// tag is private or otherwise not in the table — the
// same fallback PS3.5 Section 6.2.2 mandates for unrecognized tags decoded
// under Implicit VR Little Endian.
func VRFor(t tag.Tag) tag.VR {
	if t.IsPrivate() {
		return tag.UN
	}
	if t.Element == 0x0000 {
		return tag.UL // group length
	}
	if e, ok := entries[t]; ok {
		return e.VR
	}
	return tag.UN
}
