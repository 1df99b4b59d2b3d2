package dicom

import (
	"errors"
	"testing"
)

func TestReadFileReportsOffsetOfBadMagic(t *testing.T) {
	data := make([]byte, preambleLength+4)
	copy(data[preambleLength:], []byte("XXXX"))

	_, err := ReadFile(data)
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("errors.Is(err, ErrBadMagic) = false, err = %v", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *ParseError in the chain, got %v", err)
	}
	if pe.Offset != preambleLength {
		t.Errorf("Offset = %d, want %d", pe.Offset, preambleLength)
	}
}

func TestReadFileReportsOffsetOfShortPreamble(t *testing.T) {
	_, err := ReadFile([]byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected error for short data")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a *ParseError in the chain, got %v", err)
	}
	if pe.Offset != 0 {
		t.Errorf("Offset = %d, want 0", pe.Offset)
	}
}

func TestAtOffsetDoesNotDoubleWrap(t *testing.T) {
	inner := atOffset(5, ErrShortRead)
	outer := atOffset(9, inner)
	var pe *ParseError
	if !errors.As(outer, &pe) {
		t.Fatalf("expected a *ParseError, got %v", outer)
	}
	if pe.Offset != 5 {
		t.Errorf("Offset = %d, want the innermost offset 5", pe.Offset)
	}
}

func TestAtOffsetNilIsNil(t *testing.T) {
	if atOffset(3, nil) != nil {
		t.Error("expected atOffset(n, nil) to return nil")
	}
}
