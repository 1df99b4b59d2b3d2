package dicom

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pacsway/dicomstack/tag"
	"github.com/pacsway/dicomstack/types"
)

// FileMeta holds the File Meta Information group (0002), always encoded
// Explicit VR Little Endian regardless of the main data set's transfer
// syntax (PS3.10 Section 7.1).
type FileMeta struct {
	MediaStorageSOPClassUID    string
	MediaStorageSOPInstanceUID string
	TransferSyntaxUID          string
	ImplementationClassUID     string
	ImplementationVersionName  string
}

// File is a complete DICOM Part-10 file: file-meta plus the main data set.
type File struct {
	Meta    FileMeta
	Dataset *Dataset
}

const preambleLength = 128

// ReadFile parses a complete DICOM Part-10 file: the 128-byte preamble,
// the "DICM" magic, File Meta Information, and the main data set decoded
// under the transfer syntax File Meta names.
func ReadFile(data []byte) (*File, error) {
	if len(data) < preambleLength+4 {
		return nil, atOffset(0, fmt.Errorf("%w: need at least %d bytes for preamble+magic, got %d", ErrShortRead, preambleLength+4, len(data)))
	}
	if string(data[preambleLength:preambleLength+4]) != "DICM" {
		return nil, atOffset(preambleLength, fmt.Errorf("%w: expected DICM at offset %d", ErrBadMagic, preambleLength))
	}

	metaDataset, datasetStart, err := readFileMeta(data[preambleLength+4:])
	if err != nil {
		return nil, fmt.Errorf("dicom: reading file meta information: %w", err)
	}

	meta := FileMeta{
		MediaStorageSOPClassUID:    metaDataset.GetString(tag.MediaStorageSOPClassUID),
		MediaStorageSOPInstanceUID: metaDataset.GetString(tag.MediaStorageSOPInstanceUID),
		TransferSyntaxUID:          metaDataset.GetString(tag.TransferSyntaxUID),
		ImplementationClassUID:     metaDataset.GetString(tag.ImplementationClassUID),
		ImplementationVersionName:  metaDataset.GetString(tag.ImplementationVersionName),
	}
	if meta.TransferSyntaxUID == "" {
		meta.TransferSyntaxUID = types.ExplicitVRLittleEndian
	}

	logrus.WithFields(logrus.Fields{
		"transfer_syntax": meta.TransferSyntaxUID,
		"dataset_offset":  preambleLength + 4 + datasetStart,
	}).Debug("parsed file meta information")

	rest := data[preambleLength+4+datasetStart:]
	ds, err := ParseDatasetWithTransferSyntax(rest, meta.TransferSyntaxUID)
	if err != nil {
		return nil, fmt.Errorf("dicom: parsing main data set: %w", err)
	}

	return &File{Meta: meta, Dataset: ds}, nil
}

// readFileMeta decodes group-0002 elements (always Explicit VR Little
// Endian) starting at data[0], stopping at the first non-0002 tag; the
// declared group length is not consulted. It returns the
// elements as a Dataset and the offset of the main data set.
func readFileMeta(data []byte) (*Dataset, int, error) {
	meta := NewDataset()
	p := syntaxParams{explicitVR: true, bigEndian: false}
	order := byteOrder(false)
	offset := 0

	// Each group-0002 element is read in turn; the first tag outside group
	// 0002 marks the start of the main data set. (0002,0000)'s declared
	// length is informational only here — stopping at the group boundary
	// is sufficient and tolerates senders that get the count slightly wrong.
	for offset < len(data) {
		t, vr, length, headerLen, err := readElementHeader(data[offset:], p.explicitVR, order)
		if err != nil {
			break
		}
		if t.Group != 0x0002 {
			break
		}
		if length == undefinedLength || int(length) > len(data)-offset-headerLen {
			return nil, 0, atOffset(preambleLength+4+offset, fmt.Errorf("%w: malformed file meta element %s", ErrShortRead, t))
		}
		raw := data[offset+headerLen : offset+headerLen+int(length)]
		meta.Put(t, vr, decodeValue(vr, raw, order))
		offset += headerLen + int(length)
	}
	return meta, offset, nil
}

// WriteFile serializes a complete DICOM Part-10 file: a zero preamble, the
// "DICM" magic, File Meta Information, and the main data set.
func WriteFile(f *File) ([]byte, error) {
	if f.Dataset == nil {
		f.Dataset = NewDataset()
	}
	transferSyntaxUID := f.Meta.TransferSyntaxUID
	if transferSyntaxUID == "" {
		transferSyntaxUID = types.ExplicitVRLittleEndian
	}

	meta := NewDataset()
	meta.Put(tag.MediaStorageSOPClassUID, tag.UI, f.Meta.MediaStorageSOPClassUID)
	meta.Put(tag.MediaStorageSOPInstanceUID, tag.UI, f.Meta.MediaStorageSOPInstanceUID)
	meta.Put(tag.TransferSyntaxUID, tag.UI, transferSyntaxUID)
	implClass := f.Meta.ImplementationClassUID
	if implClass == "" {
		implClass = "1.2.826.0.1.3680043.10.1337" // this module's implementation class root
	}
	meta.Put(tag.ImplementationClassUID, tag.UI, implClass)
	implVersion := f.Meta.ImplementationVersionName
	if implVersion == "" {
		implVersion = "DICOMSTACK1"
	}
	meta.Put(tag.ImplementationVersionName, tag.SH, implVersion)

	metaBytes := encodeDataset(meta, syntaxParams{explicitVR: true, bigEndian: false})
	groupLengthDataset := NewDataset()
	groupLengthDataset.Put(tag.FileMetaInformationGroupLength, tag.UL, []uint32{uint32(len(metaBytes))})
	groupLengthBytes := encodeDataset(groupLengthDataset, syntaxParams{explicitVR: true, bigEndian: false})

	datasetBytes, err := EncodeDatasetWithTransferSyntax(f.Dataset, transferSyntaxUID)
	if err != nil {
		return nil, fmt.Errorf("dicom: encoding main data set: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, preambleLength))
	buf.WriteString("DICM")
	buf.Write(groupLengthBytes)
	buf.Write(metaBytes)
	buf.Write(datasetBytes)
	return buf.Bytes(), nil
}

// StripPart10Header removes the preamble and File Meta Information,
// returning only the main data set bytes — the form DIMSE C-STORE expects
// on the wire. Kept for callers migrating from the raw-strip style of
// access; new code should prefer ReadFile.
func StripPart10Header(data []byte) ([]byte, error) {
	f, err := ReadFile(data)
	if err != nil {
		return nil, err
	}
	encoded, err := EncodeDatasetWithTransferSyntax(f.Dataset, f.Meta.TransferSyntaxUID)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// HasPart10Header reports whether data begins with the 128-byte preamble
// and "DICM" magic of a DICOM Part-10 file.
func HasPart10Header(data []byte) bool {
	if len(data) < preambleLength+4 {
		return false
	}
	return string(data[preambleLength:preambleLength+4]) == "DICM"
}
