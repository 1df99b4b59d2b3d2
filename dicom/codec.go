package dicom

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/pacsway/dicomstack/dictionary"
	"github.com/pacsway/dicomstack/tag"
	"github.com/pacsway/dicomstack/types"
)

// Backward-compatible aliases the teacher's callers used directly.
const (
	TransferSyntaxImplicitVRLittleEndian = types.ImplicitVRLittleEndian
	TransferSyntaxExplicitVRLittleEndian = types.ExplicitVRLittleEndian
)

const undefinedLength = 0xFFFFFFFF

// syntaxParams describes how a transfer syntax's main data set is framed.
type syntaxParams struct {
	explicitVR bool
	bigEndian  bool
	deflated   bool
}

func paramsForSyntax(transferSyntaxUID string) syntaxParams {
	switch transferSyntaxUID {
	case types.ImplicitVRLittleEndian:
		return syntaxParams{explicitVR: false, bigEndian: false}
	case types.ExplicitVRBigEndian:
		return syntaxParams{explicitVR: true, bigEndian: true}
	case types.DeflatedExplicitVRLittleEndian:
		return syntaxParams{explicitVR: true, bigEndian: false, deflated: true}
	case "", types.ExplicitVRLittleEndian:
		return syntaxParams{explicitVR: true, bigEndian: false}
	default:
		// Encapsulated (compressed pixel data) transfer syntaxes all carry
		// an Explicit VR Little Endian data set outside of PixelData itself.
		return syntaxParams{explicitVR: true, bigEndian: false}
	}
}

func byteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ParseDataset parses a data set encoded Explicit VR Little Endian, the
// wire form of File Meta Information and the most common main data set
// encoding. Kept for callers that only ever see that one transfer syntax.
func ParseDataset(data []byte) (*Dataset, error) {
	return parseDataset(data, syntaxParams{explicitVR: true, bigEndian: false})
}

// ParseDatasetWithTransferSyntax parses a data set encoded under the named
// transfer syntax, inflating it first if the syntax is Deflated Explicit
// VR Little Endian.
func ParseDatasetWithTransferSyntax(data []byte, transferSyntaxUID string) (*Dataset, error) {
	p := paramsForSyntax(transferSyntaxUID)
	if p.deflated {
		inflated, err := inflate(data)
		if err != nil {
			return nil, fmt.Errorf("dicom: inflating deflated data set: %w", err)
		}
		data = inflated
	}
	return parseDataset(data, p)
}

func parseDataset(data []byte, p syntaxParams) (*Dataset, error) {
	ds := NewDataset()
	order := byteOrder(p.bigEndian)
	offset := 0
	for offset < len(data) {
		t, vr, length, headerLen, err := readElementHeader(data[offset:], p.explicitVR, order)
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}
		offset += headerLen

		if length == undefinedLength {
			if !p.explicitVR && t != tag.PixelData {
				// Only SQ may carry an undefined length; Implicit VR has no
				// VR byte to confirm it, but the length alone is conclusive.
				vr = tag.SQ
			}
			if vr == tag.SQ {
				items, consumed, err := parseUndefinedLengthItems(data[offset:], p)
				if err != nil {
					return nil, fmt.Errorf("dicom: sequence %s: %w", t, err)
				}
				ds.Put(t, vr, items)
				offset += consumed
				continue
			}
			if t == tag.PixelData {
				pix, consumed, err := parseEncapsulatedPixelData(data[offset:], order)
				if err != nil {
					return nil, fmt.Errorf("dicom: encapsulated pixel data: %w", err)
				}
				ds.Put(t, vr, pix)
				offset += consumed
				continue
			}
			return nil, atOffset(offset, fmt.Errorf("%w: undefined length on non-sequence tag %s", ErrDanglingSequence, t))
		}

		if int(length) > len(data)-offset {
			return nil, atOffset(offset, fmt.Errorf("%w: element %s declares %d bytes, only %d remain", ErrShortRead, t, length, len(data)-offset))
		}
		raw := data[offset : offset+int(length)]
		offset += int(length)

		if vr == tag.SQ {
			items, err := parseDefinedLengthSequence(raw, p)
			if err != nil {
				return nil, fmt.Errorf("dicom: sequence %s: %w", t, err)
			}
			ds.Put(t, vr, items)
			continue
		}

		ds.Put(t, vr, decodeValue(vr, raw, order))
	}
	return ds, nil
}

// readElementHeader reads one element's tag/VR/length, returning the number
// of header bytes consumed (not including the value).
func readElementHeader(data []byte, explicitVR bool, order binary.ByteOrder) (t Tag, vr tag.VR, length uint32, headerLen int, err error) {
	if len(data) < 8 {
		return Tag{}, 0, 0, 0, io.ErrUnexpectedEOF
	}
	group := order.Uint16(data[0:2])
	element := order.Uint16(data[2:4])
	t = tag.New(group, element)

	if t == tag.Item || t == tag.ItemDelimitationItem || t == tag.SequenceDelimitationItem {
		length = order.Uint32(data[4:8])
		return t, 0, length, 8, nil
	}

	if !explicitVR {
		vr = dictionary.VRFor(t)
		length = order.Uint32(data[4:8])
		return t, vr, length, 8, nil
	}

	vrBytes := data[4:6]
	parsed, verr := tag.ParseVR(strings.TrimRight(string(vrBytes), " "))
	if verr != nil {
		parsed = tag.UN
	}
	vr = parsed

	if vr.UsesLongLengthField() {
		if len(data) < 12 {
			return Tag{}, 0, 0, 0, io.ErrUnexpectedEOF
		}
		length = order.Uint32(data[8:12])
		return t, vr, length, 12, nil
	}
	length = uint32(order.Uint16(data[6:8]))
	return t, vr, length, 8, nil
}

// decodeValue converts a raw value payload into its Go representation based
// on VR, trimming the padding byte DICOM requires for odd-length values.
func decodeValue(vr tag.VR, raw []byte, order binary.ByteOrder) interface{} {
	switch vr {
	case tag.US:
		return decodeUint16s(raw, order)
	case tag.SS:
		return decodeInt16s(raw, order)
	case tag.UL, tag.AT:
		return decodeUint32s(raw, order)
	case tag.SL:
		return decodeInt32s(raw, order)
	case tag.FL:
		return decodeFloat32s(raw, order)
	case tag.FD:
		return decodeFloat64s(raw, order)
	case tag.OB, tag.OW, tag.OF, tag.OD, tag.OL, tag.OV, tag.UN:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out
	default:
		s := string(raw)
		s = strings.TrimRight(s, "\x00")
		s = strings.TrimRight(s, " ")
		return s
	}
}

func decodeUint16s(raw []byte, order binary.ByteOrder) []uint16 {
	n := len(raw) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = order.Uint16(raw[i*2:])
	}
	return out
}

func decodeInt16s(raw []byte, order binary.ByteOrder) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(order.Uint16(raw[i*2:]))
	}
	return out
}

func decodeUint32s(raw []byte, order binary.ByteOrder) []uint32 {
	n := len(raw) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = order.Uint32(raw[i*4:])
	}
	return out
}

func decodeInt32s(raw []byte, order binary.ByteOrder) []int32 {
	n := len(raw) / 4
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		out[i] = int32(order.Uint32(raw[i*4:]))
	}
	return out
}

func decodeFloat32s(raw []byte, order binary.ByteOrder) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(order.Uint32(raw[i*4:]))
	}
	return out
}

func decodeFloat64s(raw []byte, order binary.ByteOrder) []float64 {
	n := len(raw) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
	}
	return out
}

// EncodeDataset encodes the data set Explicit VR Little Endian.
func (d *Dataset) EncodeDataset() []byte {
	out, _ := EncodeDatasetWithTransferSyntax(d, types.ExplicitVRLittleEndian)
	return out
}

// EncodeDatasetWithTransferSyntax encodes the data set under the named
// transfer syntax, deflating the result if the syntax calls for it.
func EncodeDatasetWithTransferSyntax(dataset *Dataset, transferSyntaxUID string) ([]byte, error) {
	if dataset == nil {
		return nil, nil
	}
	p := paramsForSyntax(transferSyntaxUID)
	out := encodeDataset(dataset, p)
	if p.deflated {
		return deflate(out), nil
	}
	return out, nil
}

func encodeDataset(dataset *Dataset, p syntaxParams) []byte {
	order := byteOrder(p.bigEndian)
	var buf bytes.Buffer
	for _, t := range dataset.Tags() {
		el := dataset.Elements[t]
		encodeElement(&buf, el, p, order)
	}
	return buf.Bytes()
}

func encodeElement(buf *bytes.Buffer, el *Element, p syntaxParams, order binary.ByteOrder) {
	tagBytes := make([]byte, 4)
	order.PutUint16(tagBytes[0:2], el.Tag.Group)
	order.PutUint16(tagBytes[2:4], el.Tag.Element)
	buf.Write(tagBytes)

	if el.VR == tag.SQ {
		items, _ := el.Value.([]*Dataset)
		encodeSequence(buf, items, p, order, el.VR)
		return
	}

	if pix, ok := el.Value.(*EncapsulatedPixelData); ok {
		encodeEncapsulatedPixelData(buf, pix, p, order)
		return
	}

	valueBytes := encodeValue(el.VR, el.Value, order)
	if len(valueBytes)%2 == 1 {
		valueBytes = append(valueBytes, el.VR.PaddingByte())
	}

	if p.explicitVR {
		buf.WriteString(el.VR.String())
		if el.VR.UsesLongLengthField() {
			buf.Write([]byte{0, 0})
			lengthBytes := make([]byte, 4)
			order.PutUint32(lengthBytes, uint32(len(valueBytes)))
			buf.Write(lengthBytes)
		} else {
			lengthBytes := make([]byte, 2)
			order.PutUint16(lengthBytes, uint16(len(valueBytes)))
			buf.Write(lengthBytes)
		}
	} else {
		lengthBytes := make([]byte, 4)
		order.PutUint32(lengthBytes, uint32(len(valueBytes)))
		buf.Write(lengthBytes)
	}
	buf.Write(valueBytes)
}

func encodeValue(vr tag.VR, value interface{}, order binary.ByteOrder) []byte {
	switch v := value.(type) {
	case string:
		return []byte(v)
	case []string:
		return []byte(strings.Join(v, "\\"))
	case []byte:
		return v
	case []uint16:
		out := make([]byte, len(v)*2)
		for i, n := range v {
			order.PutUint16(out[i*2:], n)
		}
		return out
	case []int16:
		out := make([]byte, len(v)*2)
		for i, n := range v {
			order.PutUint16(out[i*2:], uint16(n))
		}
		return out
	case []uint32:
		out := make([]byte, len(v)*4)
		for i, n := range v {
			order.PutUint32(out[i*4:], n)
		}
		return out
	case []int32:
		out := make([]byte, len(v)*4)
		for i, n := range v {
			order.PutUint32(out[i*4:], uint32(n))
		}
		return out
	case []float32:
		out := make([]byte, len(v)*4)
		for i, n := range v {
			order.PutUint32(out[i*4:], math.Float32bits(n))
		}
		return out
	case []float64:
		out := make([]byte, len(v)*8)
		for i, n := range v {
			order.PutUint64(out[i*8:], math.Float64bits(n))
		}
		return out
	case uint16:
		out := make([]byte, 2)
		order.PutUint16(out, v)
		return out
	case uint32:
		out := make([]byte, 4)
		order.PutUint32(out, v)
		return out
	case int:
		return []byte(fmt.Sprintf("%d", v))
	case nil:
		return nil
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}
