package dicom

import (
	"errors"
	"fmt"
)

// Typed parse errors the codec can return, distinguishing malformed input
// from ordinary EOF so callers (and tests) can assert on the failure class
// instead of matching error text.
var (
	ErrShortRead           = errors.New("dicom: data too short")
	ErrBadMagic            = errors.New("dicom: missing DICM magic")
	ErrUnknownVR           = errors.New("dicom: unknown VR")
	ErrOddLengthValue      = errors.New("dicom: odd-length value")
	ErrDanglingSequence    = errors.New("dicom: sequence or item missing its delimiter")
	ErrPixelBOTInconsistent = errors.New("dicom: basic offset table inconsistent with fragment count")
)

// ParseError wraps a parse failure with the byte offset at which it was
// detected. For ReadFile's preamble, magic and File Meta checks the offset
// is relative to the start of the file; for an element of a data set it is
// relative to the start of the data set (or sequence item) being parsed. Offset identifies where to look in a
// hex dump of the offending file; Err is one of the sentinels above (or
// wraps one) and Unwrap exposes it for errors.Is.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dicom: parse error at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// atOffset wraps err with the byte offset at which it was detected,
// unless err is nil or already a *ParseError (wrapping twice would make
// the innermost, most useful offset harder to recover).
func atOffset(offset int, err error) error {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{Offset: int64(offset), Err: err}
}
