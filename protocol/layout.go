package protocol

import (
	"fmt"
	"iter"
)

// Range is a half-open byte range [Start, End) within the image.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Piece is one MTU-sized slice of a part.
type Piece struct {
	// Index is the piece position within its part (sent as one byte)
	Index int

	Range
}

// Layout describes how an image of FileLen bytes is split into parts and pieces.
// It is immutable once built.
type Layout struct {
	fileLen   int
	partSize  int
	mtu       int
	partCount int
}

// NewLayout validates the sizes and computes the part count.
//
// Constraints:
//   - fileLen, partSize and mtu are positive
//   - partSize fits the 16-bit part length field
//   - mtu fits the 16-bit MTU field
//   - a part has at most MaxPiecesPerPart pieces (the piece index is one byte)
//   - the part count fits the 16-bit part count field
//   - fileLen fits the 32-bit file length field
func NewLayout(fileLen, partSize, mtu int) (Layout, error) {
	if fileLen <= 0 {
		return Layout{}, fmt.Errorf("file length must be positive, got %d", fileLen)
	}
	if int64(fileLen) > MaxFileLength {
		return Layout{}, &FieldRangeError{Field: "file length", Value: int64(fileLen), Max: MaxFileLength}
	}
	if partSize <= 0 || partSize > MaxPartSize {
		return Layout{}, &FieldRangeError{Field: "part size", Value: int64(partSize), Max: MaxPartSize}
	}
	if mtu <= 0 || mtu > MaxMTU {
		return Layout{}, &FieldRangeError{Field: "mtu", Value: int64(mtu), Max: MaxMTU}
	}
	if pieces := ceilDiv(partSize, mtu); pieces > MaxPiecesPerPart {
		return Layout{}, fmt.Errorf("part size %d needs %d pieces at mtu %d, maximum is %d",
			partSize, pieces, mtu, MaxPiecesPerPart)
	}

	parts := ceilDiv(fileLen, partSize)
	if parts > MaxParts {
		return Layout{}, &FieldRangeError{Field: "part count", Value: int64(parts), Max: MaxParts}
	}

	return Layout{
		fileLen:   fileLen,
		partSize:  partSize,
		mtu:       mtu,
		partCount: parts,
	}, nil
}

// FileLen returns the image length.
func (l Layout) FileLen() int { return l.fileLen }

// PartSize returns the nominal part size.
func (l Layout) PartSize() int { return l.partSize }

// MTU returns the maximum piece size.
func (l Layout) MTU() int { return l.mtu }

// PartCount returns ceil(FileLen / PartSize).
func (l Layout) PartCount() int { return l.partCount }

// Part returns the byte range of a part. Only the last part may be shorter than PartSize.
func (l Layout) Part(part int) (Range, error) {
	if part < 0 || part >= l.partCount {
		return Range{}, fmt.Errorf("part %d out of range: valid range is 0-%d", part, l.partCount-1)
	}

	start := part * l.partSize
	return Range{Start: start, End: min(start+l.partSize, l.fileLen)}, nil
}

// PieceCount returns the number of pieces in a part, 0 for an invalid part.
func (l Layout) PieceCount(part int) int {
	r, err := l.Part(part)
	if err != nil {
		return 0
	}
	return ceilDiv(r.Len(), l.mtu)
}

// Pieces returns the pieces of a part in order. The sequence is lazy and can
// be iterated any number of times; it is empty for an invalid part.
func (l Layout) Pieces(part int) iter.Seq[Piece] {
	return func(yield func(Piece) bool) {
		r, err := l.Part(part)
		if err != nil {
			return
		}

		for i := 0; r.Start+i*l.mtu < r.End; i++ {
			start := r.Start + i*l.mtu
			p := Piece{
				Index: i,
				Range: Range{Start: start, End: min(start+l.mtu, r.End)},
			}
			if !yield(p) {
				return
			}
		}
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
