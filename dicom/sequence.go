package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pacsway/dicomstack/tag"
)

// parseDefinedLengthSequence parses a Sequence of Items element whose own
// length is known, so its items may themselves be either defined- or
// undefined-length.
func parseDefinedLengthSequence(data []byte, p syntaxParams) ([]*Dataset, error) {
	order := byteOrder(p.bigEndian)
	var items []*Dataset
	offset := 0
	for offset < len(data) {
		item, consumed, err := parseOneItem(data[offset:], p, order)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		offset += consumed
	}
	return items, nil
}

// parseUndefinedLengthItems parses items until a Sequence Delimitation Item
// is reached, returning the items and the number of bytes consumed
// including the delimiter.
func parseUndefinedLengthItems(data []byte, p syntaxParams) ([]*Dataset, int, error) {
	order := byteOrder(p.bigEndian)
	var items []*Dataset
	offset := 0
	for {
		if offset+8 > len(data) {
			return nil, 0, fmt.Errorf("%w: sequence delimiter not found", ErrDanglingSequence)
		}
		group := order.Uint16(data[offset : offset+2])
		element := order.Uint16(data[offset+2 : offset+4])
		t := tag.New(group, element)
		if t == tag.SequenceDelimitationItem {
			return items, offset + 8, nil
		}
		item, consumed, err := parseOneItem(data[offset:], p, order)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
		offset += consumed
	}
}

func parseOneItem(data []byte, p syntaxParams, order binary.ByteOrder) (*Dataset, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("%w: truncated item header", ErrShortRead)
	}
	group := order.Uint16(data[0:2])
	element := order.Uint16(data[2:4])
	t := tag.New(group, element)
	if t != tag.Item {
		return nil, 0, fmt.Errorf("%w: expected item tag, got %s", ErrDanglingSequence, t)
	}
	length := order.Uint32(data[4:8])

	if length == undefinedLength {
		itemDataset, consumed, err := parseItemUntilDelimiter(data[8:], p, order)
		if err != nil {
			return nil, 0, err
		}
		return itemDataset, 8 + consumed, nil
	}

	if int(length) > len(data)-8 {
		return nil, 0, fmt.Errorf("%w: item declares %d bytes, only %d remain", ErrShortRead, length, len(data)-8)
	}
	itemDataset, err := parseDataset(data[8:8+int(length)], p)
	if err != nil {
		return nil, 0, err
	}
	return itemDataset, 8 + int(length), nil
}

func parseItemUntilDelimiter(data []byte, p syntaxParams, order binary.ByteOrder) (*Dataset, int, error) {
	ds := NewDataset()
	offset := 0
	for {
		if offset+8 > len(data) {
			return nil, 0, fmt.Errorf("%w: item delimiter not found", ErrDanglingSequence)
		}
		group := order.Uint16(data[offset : offset+2])
		element := order.Uint16(data[offset+2 : offset+4])
		t := tag.New(group, element)
		if t == tag.ItemDelimitationItem {
			return ds, offset + 8, nil
		}

		elTag, vr, length, headerLen, err := readElementHeader(data[offset:], p.explicitVR, order)
		if err != nil {
			return nil, 0, err
		}
		offset += headerLen

		if length == undefinedLength {
			if !p.explicitVR {
				vr = tag.SQ
			}
			if vr == tag.SQ {
				items, consumed, err := parseUndefinedLengthItems(data[offset:], p)
				if err != nil {
					return nil, 0, err
				}
				ds.Put(elTag, vr, items)
				offset += consumed
				continue
			}
			return nil, 0, fmt.Errorf("%w: nested undefined length on non-sequence tag %s", ErrDanglingSequence, elTag)
		}

		if int(length) > len(data)-offset {
			return nil, 0, fmt.Errorf("%w: element %s declares %d bytes, only %d remain", ErrShortRead, elTag, length, len(data)-offset)
		}
		raw := data[offset : offset+int(length)]
		offset += int(length)

		if vr == tag.SQ {
			items, err := parseDefinedLengthSequence(raw, p)
			if err != nil {
				return nil, 0, err
			}
			ds.Put(elTag, vr, items)
			continue
		}
		ds.Put(elTag, vr, decodeValue(vr, raw, order))
	}
}

// encodeSequence emits a Sequence of Items element using defined-length
// items (simplest, always round-trippable) regardless of how the sequence
// was originally framed on decode.
func encodeSequence(buf *bytes.Buffer, items []*Dataset, p syntaxParams, order binary.ByteOrder, vr tag.VR) {
	var body []byte
	for _, item := range items {
		encoded := encodeDataset(item, p)
		body = append(body, itemHeader(order, uint32(len(encoded)))...)
		body = append(body, encoded...)
	}

	if p.explicitVR {
		buf.WriteString(vr.String())
		buf.Write([]byte{0, 0})
		lengthBytes := make([]byte, 4)
		order.PutUint32(lengthBytes, uint32(len(body)))
		buf.Write(lengthBytes)
	} else {
		lengthBytes := make([]byte, 4)
		order.PutUint32(lengthBytes, uint32(len(body)))
		buf.Write(lengthBytes)
	}
	buf.Write(body)
}

func itemHeader(order binary.ByteOrder, length uint32) []byte {
	h := make([]byte, 8)
	order.PutUint16(h[0:2], tag.Item.Group)
	order.PutUint16(h[2:4], tag.Item.Element)
	order.PutUint32(h[4:8], length)
	return h
}

// parseEncapsulatedPixelData parses an encapsulated PixelData element: a
// first item holding the Basic Offset Table, followed by one item per
// fragment, terminated by a Sequence Delimitation Item (PS3.5 Annex A.4).
func parseEncapsulatedPixelData(data []byte, order binary.ByteOrder) (*EncapsulatedPixelData, int, error) {
	offset := 0
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("%w: truncated basic offset table item", ErrShortRead)
	}
	botLen := order.Uint32(data[4:8])
	if int(botLen) > len(data)-8 {
		return nil, 0, fmt.Errorf("%w: basic offset table declares %d bytes", ErrShortRead, botLen)
	}
	botRaw := data[8 : 8+int(botLen)]
	offset = 8 + int(botLen)

	bot := make([]uint32, len(botRaw)/4)
	for i := range bot {
		bot[i] = order.Uint32(botRaw[i*4:])
	}

	var fragments [][]byte
	for {
		if offset+8 > len(data) {
			return nil, 0, fmt.Errorf("%w: pixel data sequence delimiter not found", ErrDanglingSequence)
		}
		group := order.Uint16(data[offset : offset+2])
		element := order.Uint16(data[offset+2 : offset+4])
		t := tag.New(group, element)
		if t == tag.SequenceDelimitationItem {
			offset += 8
			break
		}
		if t != tag.Item {
			return nil, 0, fmt.Errorf("%w: expected fragment item, got %s", ErrDanglingSequence, t)
		}
		fragLen := order.Uint32(data[offset+4 : offset+8])
		if int(fragLen) > len(data)-offset-8 {
			return nil, 0, fmt.Errorf("%w: fragment declares %d bytes", ErrShortRead, fragLen)
		}
		frag := make([]byte, fragLen)
		copy(frag, data[offset+8:offset+8+int(fragLen)])
		fragments = append(fragments, frag)
		offset += 8 + int(fragLen)
	}

	if len(bot) > 0 && len(bot) != len(fragments) {
		// A Basic Offset Table with one entry per frame implies one
		// fragment per frame; a multi-fragment-per-frame encoding leaves
		// the table sparser than the fragment list, which is valid, so
		// only flag the case where it has MORE entries than fragments.
		if len(bot) > len(fragments) {
			return nil, 0, fmt.Errorf("%w: %d offsets but only %d fragments", ErrPixelBOTInconsistent, len(bot), len(fragments))
		}
	}

	return &EncapsulatedPixelData{BasicOffsetTable: bot, Fragments: fragments}, offset, nil
}

// encodeEncapsulatedPixelData emits the Basic Offset Table item followed by
// one item per fragment and a trailing Sequence Delimitation Item.
func encodeEncapsulatedPixelData(buf *bytes.Buffer, pix *EncapsulatedPixelData, p syntaxParams, order binary.ByteOrder) {
	if p.explicitVR {
		buf.WriteString(tag.OB.String())
		buf.Write([]byte{0, 0})
		lengthBytes := make([]byte, 4)
		order.PutUint32(lengthBytes, undefinedLength)
		buf.Write(lengthBytes)
	} else {
		lengthBytes := make([]byte, 4)
		order.PutUint32(lengthBytes, undefinedLength)
		buf.Write(lengthBytes)
	}

	botBytes := make([]byte, len(pix.BasicOffsetTable)*4)
	for i, off := range pix.BasicOffsetTable {
		order.PutUint32(botBytes[i*4:], off)
	}
	buf.Write(itemHeader(order, uint32(len(botBytes))))
	buf.Write(botBytes)

	for _, frag := range pix.Fragments {
		buf.Write(itemHeader(order, uint32(len(frag))))
		buf.Write(frag)
	}

	delim := make([]byte, 8)
	order.PutUint16(delim[0:2], tag.SequenceDelimitationItem.Group)
	order.PutUint16(delim[2:4], tag.SequenceDelimitationItem.Element)
	order.PutUint32(delim[4:8], 0)
	buf.Write(delim)
}
