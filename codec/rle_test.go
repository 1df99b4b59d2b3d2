package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacsway/dicomstack/pixel"
)

func TestRLERegisteredForRLELossless(t *testing.T) {
	_, ok := LookupDecoder("1.2.840.10008.1.2.5")
	assert.True(t, ok)
	_, ok = LookupEncoder("1.2.840.10008.1.2.5")
	assert.True(t, ok)
}

func TestDecodePackBitsLiteralAndRepeatRuns(t *testing.T) {
	// literal run of 2 bytes [1,2], then repeat byte 3 three times, then a
	// single-byte literal run of [5].
	encoded := []byte{0x01, 0x01, 0x02, 0xFE, 0x03, 0x00, 0x05}
	decoded, err := decodePackBits(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 3, 3, 5}, decoded)
}

func TestDecodePackBitsIgnoresNoOpByte(t *testing.T) {
	decoded, err := decodePackBits([]byte{0x80})
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestEncodeDecodePackBitsRoundTrip(t *testing.T) {
	plane := []byte{1, 1, 1, 1, 2, 3, 4, 4, 4, 4, 4, 4, 9}
	encoded := encodePackBits(plane)
	decoded, err := decodePackBits(encoded)
	require.NoError(t, err)
	assert.Equal(t, plane, decoded)
}

func TestRLECodecRoundTripGrayscale8Bit(t *testing.T) {
	d := pixel.Descriptor{
		Rows: 4, Columns: 4, BitsAllocated: 8, BitsStored: 8,
		SamplesPerPixel: 1, PhotometricInterpretation: "MONOCHROME2", NumberOfFrames: 1,
	}
	native := make([]byte, 16)
	for i := range native {
		native[i] = byte(i * 16)
	}

	c := &rleCodec{}
	encoded, err := c.EncodeFrame(native, d, nil)
	require.NoError(t, err)

	decoded, err := c.DecodeFrame(encoded, d)
	require.NoError(t, err)
	assert.Equal(t, native, decoded)
}

func TestRLECodecRoundTripGrayscale16Bit(t *testing.T) {
	d := pixel.Descriptor{
		Rows: 2, Columns: 2, BitsAllocated: 16, BitsStored: 16,
		SamplesPerPixel: 1, PhotometricInterpretation: "MONOCHROME2", NumberOfFrames: 1,
	}
	native := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	c := &rleCodec{}
	encoded, err := c.EncodeFrame(native, d, nil)
	require.NoError(t, err)

	decoded, err := c.DecodeFrame(encoded, d)
	require.NoError(t, err)
	assert.Equal(t, native, decoded)
}

func TestRLECodecRoundTripRGB(t *testing.T) {
	d := pixel.Descriptor{
		Rows: 2, Columns: 2, BitsAllocated: 8, BitsStored: 8,
		SamplesPerPixel: 3, PhotometricInterpretation: "RGB", NumberOfFrames: 1,
	}
	native := []byte{
		10, 20, 30, 40, 50, 60,
		70, 80, 90, 100, 110, 120,
	}

	c := &rleCodec{}
	encoded, err := c.EncodeFrame(native, d, nil)
	require.NoError(t, err)

	decoded, err := c.DecodeFrame(encoded, d)
	require.NoError(t, err)
	assert.Equal(t, native, decoded)
}

func TestRLECodecDecodeRejectsShortHeader(t *testing.T) {
	c := &rleCodec{}
	_, err := c.DecodeFrame([]byte{1, 2, 3}, pixel.Descriptor{BitsAllocated: 8, SamplesPerPixel: 1})
	assert.ErrorIs(t, err, errRLEHeaderTooShort)
}

func TestRLECodecEncodeRejectsTooManySegments(t *testing.T) {
	d := pixel.Descriptor{
		Rows: 1, Columns: 1, BitsAllocated: 32, BitsStored: 32, SamplesPerPixel: 4,
	}
	c := &rleCodec{}
	_, err := c.EncodeFrame(make([]byte, 16), d, nil)
	assert.Error(t, err)
}
