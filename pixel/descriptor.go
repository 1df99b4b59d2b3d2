// Package pixel models decoded DICOM pixel data: the image description
// carried by a data set's group-0028 attributes, frame addressing for both
// native and encapsulated Pixel Data, and the window/level and color-space
// transforms applied before display.
//
// Grounded on codeninja55-go-radx/dicom/pixel's PixelData/Frame model and
// window/level and photometric-interpretation transforms, adapted to this
// module's dicom.Dataset rather than a separate DataSet type and to return a
// raw display buffer instead of an image.Image.
package pixel

import (
	"errors"
	"fmt"

	"github.com/pacsway/dicomstack/dicom"
	"github.com/pacsway/dicomstack/tag"
)

// ErrFrameOutOfRange is returned when a requested frame index is outside
// [0, NumberOfFrames).
var ErrFrameOutOfRange = errors.New("pixel: frame index out of range")

// ErrUnsupportedSampleSize is returned when BitsAllocated names a sample
// width this package doesn't decode.
var ErrUnsupportedSampleSize = errors.New("pixel: unsupported bits allocated")

// Descriptor carries the group-0028 attributes needed to address frames and
// interpret raw samples.
type Descriptor struct {
	Rows                      int
	Columns                   int
	BitsAllocated             int
	BitsStored                int
	HighBit                   int
	PixelRepresentation       int // 0 = unsigned, 1 = signed (2's complement)
	SamplesPerPixel           int
	PhotometricInterpretation string
	PlanarConfiguration       int // 0 = interleaved, 1 = planar
	NumberOfFrames            int
}

// BytesPerSample returns the storage width of one sample.
func (d Descriptor) BytesPerSample() int {
	return (d.BitsAllocated + 7) / 8
}

// FrameSizeBytes returns the byte length of one native (non-encapsulated) frame.
func (d Descriptor) FrameSizeBytes() int {
	return d.Rows * d.Columns * d.SamplesPerPixel * d.BytesPerSample()
}

// DescriptorFromDataset reads group-0028 attributes from ds into a Descriptor,
// defaulting NumberOfFrames to 1 and PlanarConfiguration to 0 when absent.
func DescriptorFromDataset(ds *dicom.Dataset) (Descriptor, error) {
	rows, _ := ds.GetInt(tag.Rows)
	cols, _ := ds.GetInt(tag.Columns)
	bitsAllocated, _ := ds.GetInt(tag.BitsAllocated)
	bitsStored, ok := ds.GetInt(tag.BitsStored)
	if !ok {
		bitsStored = bitsAllocated
	}
	highBit, ok := ds.GetInt(tag.HighBit)
	if !ok {
		highBit = bitsStored - 1
	}
	pixelRepresentation, _ := ds.GetInt(tag.PixelRepresentation)
	samplesPerPixel, ok := ds.GetInt(tag.SamplesPerPixel)
	if !ok {
		samplesPerPixel = 1
	}
	planarConfig, _ := ds.GetInt(tag.PlanarConfiguration)
	numberOfFrames, ok := ds.GetInt(tag.NumberOfFrames)
	if !ok || numberOfFrames == 0 {
		numberOfFrames = 1
	}
	photometric := ds.GetString(tag.PhotometricInterpretation)
	if photometric == "" {
		photometric = "MONOCHROME2"
	}

	if rows == 0 || cols == 0 || bitsAllocated == 0 {
		return Descriptor{}, fmt.Errorf("pixel: incomplete image description: rows=%d columns=%d bits_allocated=%d", rows, cols, bitsAllocated)
	}
	if bitsAllocated != 8 && bitsAllocated != 16 && bitsAllocated != 32 {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnsupportedSampleSize, bitsAllocated)
	}

	return Descriptor{
		Rows:                      int(rows),
		Columns:                   int(cols),
		BitsAllocated:             int(bitsAllocated),
		BitsStored:                int(bitsStored),
		HighBit:                   int(highBit),
		PixelRepresentation:       int(pixelRepresentation),
		SamplesPerPixel:           int(samplesPerPixel),
		PhotometricInterpretation: photometric,
		PlanarConfiguration:       int(planarConfig),
		NumberOfFrames:            int(numberOfFrames),
	}, nil
}

// NativeFrame returns the bytes for frame k of a native (non-encapsulated)
// Pixel Data value, which is the concatenation of all frames back to back.
func NativeFrame(data []byte, d Descriptor, frameIndex int) ([]byte, error) {
	if frameIndex < 0 || frameIndex >= d.NumberOfFrames {
		return nil, fmt.Errorf("%w: %d (have %d frames)", ErrFrameOutOfRange, frameIndex, d.NumberOfFrames)
	}
	frameSize := d.FrameSizeBytes()
	start := frameIndex * frameSize
	end := start + frameSize
	if end > len(data) {
		return nil, fmt.Errorf("pixel: native pixel data too short for frame %d: need %d bytes, have %d", frameIndex, end, len(data))
	}
	return data[start:end], nil
}

// EncapsulatedFrame addresses frame k within an encapsulated Pixel Data
// value's fragments, using the Basic Offset Table when it carries one entry
// per frame, falling back to a one-fragment-per-frame assumption, and
// finally to the codec's own demultiplexing of concatenated fragments (left
// to the caller, signaled by returning all fragments concatenated).
func EncapsulatedFrame(pix *dicom.EncapsulatedPixelData, d Descriptor, frameIndex int) ([]byte, error) {
	if frameIndex < 0 || frameIndex >= d.NumberOfFrames {
		return nil, fmt.Errorf("%w: %d (have %d frames)", ErrFrameOutOfRange, frameIndex, d.NumberOfFrames)
	}

	if len(pix.BasicOffsetTable) == d.NumberOfFrames {
		concatenated := concatFragments(pix.Fragments)
		start := int(pix.BasicOffsetTable[frameIndex])
		var end int
		if frameIndex+1 < len(pix.BasicOffsetTable) {
			end = int(pix.BasicOffsetTable[frameIndex+1])
		} else {
			end = len(concatenated)
		}
		if start < 0 || end > len(concatenated) || start > end {
			return nil, fmt.Errorf("pixel: basic offset table entry for frame %d out of range", frameIndex)
		}
		return concatenated[start:end], nil
	}

	if len(pix.Fragments) == d.NumberOfFrames {
		return pix.Fragments[frameIndex], nil
	}

	// Fragment count doesn't line up with frame count (common for some
	// JPEG 2000 tile layouts); hand the codec the whole concatenated blob
	// and let it demultiplex using its own container format.
	return concatFragments(pix.Fragments), nil
}

func concatFragments(fragments [][]byte) []byte {
	var total int
	for _, f := range fragments {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}

// Samples decodes frame into signed-extended, bits_stored-masked integer
// samples, one per pixel component, in storage order.
func Samples(frame []byte, d Descriptor) ([]int32, error) {
	bytesPerSample := d.BytesPerSample()
	count := len(frame) / bytesPerSample
	out := make([]int32, count)
	mask := int32(1)<<uint(d.BitsStored) - 1
	signBit := int32(1) << uint(d.BitsStored-1)

	for i := 0; i < count; i++ {
		var raw int32
		switch d.BitsAllocated {
		case 8:
			raw = int32(frame[i])
		case 16:
			raw = int32(frame[i*2]) | int32(frame[i*2+1])<<8
		case 32:
			raw = int32(frame[i*4]) | int32(frame[i*4+1])<<8 | int32(frame[i*4+2])<<16 | int32(frame[i*4+3])<<24
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedSampleSize, d.BitsAllocated)
		}
		raw &= mask
		if d.PixelRepresentation == 1 && raw&signBit != 0 {
			raw -= mask + 1
		}
		out[i] = raw
	}
	return out, nil
}
