package codec

import (
	"errors"
	"fmt"

	"github.com/pacsway/dicomstack/pixel"
	"github.com/pacsway/dicomstack/types"
)

// rleTransferSyntaxUID is RLE Lossless, PS3.5 Annex G.
const rleTransferSyntaxUID = types.RLELossless

func init() {
	c := &rleCodec{}
	RegisterDecoder(rleTransferSyntaxUID, c)
	RegisterEncoder(rleTransferSyntaxUID, c)
}

// rleCodec implements PS3.5 Annex G RLE Lossless: a 64-byte header (a
// segment count followed by up to 15 segment offsets) followed by
// PackBits-compressed segments, one per sample-plane byte position,
// byte-interleaved across samples.
//
// Grounded on codeninja55-go-radx/dicom/pixel/rle.go's RLEDecoder.
type rleCodec struct{}

const rleHeaderSize = 64
const rleMaxSegments = 15

var errRLEHeaderTooShort = errors.New("codec: rle fragment shorter than the 64-byte header")

// DecodeFrame reverses rleCodec.EncodeFrame: each segment is PackBits-
// decompressed and its bytes distributed back into byte position
// segmentIndex % bytesPerSample of the native sample stream.
func (c *rleCodec) DecodeFrame(compressed []byte, d pixel.Descriptor) ([]byte, error) {
	if len(compressed) < rleHeaderSize {
		return nil, errRLEHeaderTooShort
	}

	segmentCount := int(beUint32(compressed[0:4]))
	if segmentCount < 1 || segmentCount > rleMaxSegments {
		return nil, fmt.Errorf("codec: rle segment count %d out of range [1,%d]", segmentCount, rleMaxSegments)
	}
	offsets := make([]int, segmentCount)
	for i := 0; i < segmentCount; i++ {
		offsets[i] = int(beUint32(compressed[4+4*i : 8+4*i]))
	}

	bytesPerSample := d.BytesPerSample()
	samplesPerFrame := d.Rows * d.Columns * d.SamplesPerPixel
	expectedSegments := bytesPerSample * d.SamplesPerPixel
	if segmentCount != expectedSegments {
		return nil, fmt.Errorf("codec: rle segment count %d does not match %d bytes-per-sample x %d samples-per-pixel", segmentCount, bytesPerSample, d.SamplesPerPixel)
	}

	out := make([]byte, samplesPerFrame*bytesPerSample)
	for seg := 0; seg < segmentCount; seg++ {
		start := offsets[seg]
		var end int
		if seg+1 < segmentCount {
			end = offsets[seg+1]
		} else {
			end = len(compressed)
		}
		if start < 0 || end > len(compressed) || start > end {
			return nil, fmt.Errorf("codec: rle segment %d offset out of range", seg)
		}
		decoded, err := decodePackBits(compressed[start:end])
		if err != nil {
			return nil, fmt.Errorf("codec: rle segment %d: %w", seg, err)
		}
		sample := seg / bytesPerSample
		bytePos := seg % bytesPerSample
		// RLE stores the most-significant byte of each sample first, so
		// within a sample the segment for byte position 0 is the high byte.
		shift := bytesPerSample - 1 - bytePos
		for i, b := range decoded {
			idx := i*d.SamplesPerPixel + sample
			outIdx := idx*bytesPerSample + shift
			if outIdx < len(out) {
				out[outIdx] = b
			}
		}
	}
	return out, nil
}

// EncodeFrame splits native into one PackBits-compressed segment per byte
// position per sample and writes the Annex G 64-byte header.
func (c *rleCodec) EncodeFrame(native []byte, d pixel.Descriptor, _ interface{}) ([]byte, error) {
	bytesPerSample := d.BytesPerSample()
	samplesPerPixel := d.SamplesPerPixel
	pixelCount := d.Rows * d.Columns
	segmentCount := bytesPerSample * samplesPerPixel
	if segmentCount > rleMaxSegments {
		return nil, fmt.Errorf("codec: rle cannot encode %d segments, maximum is %d", segmentCount, rleMaxSegments)
	}
	if len(native) < pixelCount*samplesPerPixel*bytesPerSample {
		return nil, errors.New("codec: native frame shorter than descriptor implies")
	}

	segments := make([][]byte, segmentCount)
	for sample := 0; sample < samplesPerPixel; sample++ {
		for bytePos := 0; bytePos < bytesPerSample; bytePos++ {
			shift := bytesPerSample - 1 - bytePos
			plane := make([]byte, pixelCount)
			for i := 0; i < pixelCount; i++ {
				idx := i*samplesPerPixel + sample
				plane[i] = native[idx*bytesPerSample+shift]
			}
			segments[sample*bytesPerSample+bytePos] = encodePackBits(plane)
		}
	}

	header := make([]byte, rleHeaderSize)
	putBEUint32(header[0:4], uint32(segmentCount))
	offset := rleHeaderSize
	for i, seg := range segments {
		putBEUint32(header[4+4*i:8+4*i], uint32(offset))
		offset += len(seg)
	}

	out := make([]byte, 0, offset)
	out = append(out, header...)
	for _, seg := range segments {
		out = append(out, seg...)
	}
	return out, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBEUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// decodePackBits implements the Apple PackBits variant DICOM RLE uses: a
// control byte in [0,127] means "copy the next control+1 bytes literally",
// a control byte in [-127,-1] (as a signed int8) means "repeat the next
// byte (1-control) times", and -128 is a no-op padding byte.
func decodePackBits(data []byte) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(data) {
		control := int8(data[i])
		i++
		switch {
		case control >= 0:
			n := int(control) + 1
			if i+n > len(data) {
				return nil, errors.New("codec: packbits literal run exceeds segment bounds")
			}
			out = append(out, data[i:i+n]...)
			i += n
		case control != -128:
			if i >= len(data) {
				return nil, errors.New("codec: packbits repeat run missing its byte")
			}
			n := 1 - int(control)
			b := data[i]
			i++
			for k := 0; k < n; k++ {
				out = append(out, b)
			}
		default:
			// -128: no-op
		}
	}
	return out, nil
}

// encodePackBits produces a PackBits encoding of plane using runs of
// repeated bytes where they save space and literal runs otherwise. It does
// not attempt optimal compression, matching decodePackBits's straightforward
// decode/encode symmetry.
func encodePackBits(plane []byte) []byte {
	var out []byte
	i := 0
	for i < len(plane) {
		runLen := 1
		for i+runLen < len(plane) && runLen < 128 && plane[i+runLen] == plane[i] {
			runLen++
		}
		if runLen >= 2 {
			out = append(out, byte(int8(1-runLen)), plane[i])
			i += runLen
			continue
		}
		// Accumulate a literal run until a repeat of >=2 is found or the
		// 128-byte literal-run limit is hit.
		litStart := i
		i++
		for i < len(plane) && i-litStart < 128 {
			if i+1 < len(plane) && plane[i+1] == plane[i] {
				break
			}
			i++
		}
		lit := plane[litStart:i]
		out = append(out, byte(len(lit)-1))
		out = append(out, lit...)
	}
	return out
}
