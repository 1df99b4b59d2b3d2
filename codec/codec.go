// Package codec is a transfer-syntax-keyed registry of pixel data decoders
// and encoders for the encapsulated (compressed) transfer syntaxes. Each
// codec self-registers from an init function, the same pattern
// codeninja55-go-radx/dicom/pixel/rle.go uses for its RLE decoder.
package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pacsway/dicomstack/dicom"
	"github.com/pacsway/dicomstack/pixel"
	"github.com/pacsway/dicomstack/tag"
	"github.com/pacsway/dicomstack/types"
)

// ErrCodecUnavailable is returned for a transfer syntax this module
// recognizes but has no pure-Go codec for.
var ErrCodecUnavailable = errors.New("codec: no codec available for transfer syntax")

// Decoder turns one compressed fragment (or, for codecs without a 1:1
// frame-to-fragment mapping, the concatenation EncapsulatedFrame returns)
// into native (uncompressed) pixel bytes for a single frame.
type Decoder interface {
	DecodeFrame(compressed []byte, d pixel.Descriptor) ([]byte, error)
}

// Encoder compresses one frame of native pixel bytes. opts is codec-specific
// and may be nil.
type Encoder interface {
	EncodeFrame(native []byte, d pixel.Descriptor, opts interface{}) ([]byte, error)
}

var (
	mu       sync.RWMutex
	decoders = map[string]Decoder{}
	encoders = map[string]Encoder{}
)

// RegisterDecoder associates a decoder with a transfer syntax UID. Intended
// to be called from a codec's init function.
func RegisterDecoder(transferSyntaxUID string, d Decoder) {
	mu.Lock()
	defer mu.Unlock()
	decoders[transferSyntaxUID] = d
}

// RegisterEncoder associates an encoder with a transfer syntax UID.
func RegisterEncoder(transferSyntaxUID string, e Encoder) {
	mu.Lock()
	defer mu.Unlock()
	encoders[transferSyntaxUID] = e
}

// LookupDecoder returns the decoder registered for transferSyntaxUID, if any.
func LookupDecoder(transferSyntaxUID string) (Decoder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := decoders[transferSyntaxUID]
	return d, ok
}

// LookupEncoder returns the encoder registered for transferSyntaxUID, if any.
func LookupEncoder(transferSyntaxUID string) (Encoder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := encoders[transferSyntaxUID]
	return e, ok
}

// DecodeFrame returns native pixel bytes for frame frameIndex of ds, which
// was parsed under sourceTransferSyntaxUID. For an uncompressed source this
// slices the native Pixel Data value directly; for an encapsulated source it
// addresses the frame's fragment(s) and runs them through the registered
// decoder.
func DecodeFrame(ds *dicom.Dataset, sourceTransferSyntaxUID string, d pixel.Descriptor, frameIndex int) ([]byte, error) {
	el, ok := ds.GetElement(tag.PixelData)
	if !ok {
		return nil, errors.New("codec: data set has no pixel data")
	}

	if raw, ok := el.Value.([]byte); ok {
		return pixel.NativeFrame(raw, d, frameIndex)
	}

	enc, ok := el.Value.(*dicom.EncapsulatedPixelData)
	if !ok {
		return nil, fmt.Errorf("codec: unrecognized pixel data representation %T", el.Value)
	}

	fragment, err := pixel.EncapsulatedFrame(enc, d, frameIndex)
	if err != nil {
		return nil, err
	}

	if sourceTransferSyntaxUID == types.ImplicitVRLittleEndian ||
		sourceTransferSyntaxUID == types.ExplicitVRLittleEndian ||
		sourceTransferSyntaxUID == types.ExplicitVRBigEndian ||
		sourceTransferSyntaxUID == types.DeflatedExplicitVRLittleEndian {
		return fragment, nil
	}

	dec, ok := LookupDecoder(sourceTransferSyntaxUID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCodecUnavailable, sourceTransferSyntaxUID)
	}
	return dec.DecodeFrame(fragment, d)
}
