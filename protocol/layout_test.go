package protocol

import (
	"slices"
	"testing"
)

func TestNewLayout(t *testing.T) {
	tests := []struct {
		name      string
		fileLen   int
		partSize  int
		mtu       int
		wantParts int
		wantErr   bool
	}{
		{name: "exact multiple", fileLen: 32768, partSize: 16384, mtu: 200, wantParts: 2},
		{name: "short last part", fileLen: 40000, partSize: 16384, mtu: 200, wantParts: 3},
		{name: "smaller than one part", fileLen: 10, partSize: 16384, mtu: 200, wantParts: 1},
		{name: "256 pieces allowed", fileLen: 1000, partSize: 256, mtu: 1, wantParts: 4},
		{name: "257 pieces rejected", fileLen: 1000, partSize: 257, mtu: 1, wantErr: true},
		{name: "zero file", fileLen: 0, partSize: 16384, mtu: 200, wantErr: true},
		{name: "zero part size", fileLen: 10, partSize: 0, mtu: 200, wantErr: true},
		{name: "zero mtu", fileLen: 10, partSize: 100, mtu: 0, wantErr: true},
		{name: "part size over 16 bits", fileLen: 10, partSize: 0x10000, mtu: 0x1000, wantErr: true},
		{name: "too many parts", fileLen: 0x10000, partSize: 1, mtu: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLayout(tt.fileLen, tt.partSize, tt.mtu)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got layout with %d parts", l.PartCount())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l.PartCount() != tt.wantParts {
				t.Errorf("PartCount() = %d, want %d", l.PartCount(), tt.wantParts)
			}
		})
	}
}

func TestLayoutPart(t *testing.T) {
	l, err := NewLayout(40000, 16384, 200)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}

	want := []Range{
		{Start: 0, End: 16384},
		{Start: 16384, End: 32768},
		{Start: 32768, End: 40000},
	}
	for i, w := range want {
		got, err := l.Part(i)
		if err != nil {
			t.Fatalf("Part(%d): %v", i, err)
		}
		if got != w {
			t.Errorf("Part(%d) = %+v, want %+v", i, got, w)
		}
	}

	if _, err := l.Part(3); err == nil {
		t.Error("Part(3) should fail")
	}
	if _, err := l.Part(-1); err == nil {
		t.Error("Part(-1) should fail")
	}
}

// Pieces of every part must tile [0, fileLen) with no gaps or overlaps.
func TestLayoutPiecesCoverImage(t *testing.T) {
	sizes := []struct {
		fileLen, partSize, mtu int
	}{
		{40000, 16384, 200},
		{16384, 16384, 200},
		{1, 16384, 200},
		{1001, 100, 7},
		{65536, 512, 512},
	}

	for _, s := range sizes {
		l, err := NewLayout(s.fileLen, s.partSize, s.mtu)
		if err != nil {
			t.Fatalf("NewLayout(%d, %d, %d): %v", s.fileLen, s.partSize, s.mtu, err)
		}

		next := 0
		for part := range l.PartCount() {
			partRange, _ := l.Part(part)
			count := 0
			for p := range l.Pieces(part) {
				if p.Index != count {
					t.Fatalf("part %d: piece index %d, want %d", part, p.Index, count)
				}
				if p.Start != next {
					t.Fatalf("part %d piece %d starts at %d, want %d", part, p.Index, p.Start, next)
				}
				if p.Len() <= 0 || p.Len() > s.mtu {
					t.Fatalf("part %d piece %d length %d outside (0, %d]", part, p.Index, p.Len(), s.mtu)
				}
				if p.End > partRange.End {
					t.Fatalf("part %d piece %d crosses part boundary", part, p.Index)
				}
				next = p.End
				count++
			}
			if count != l.PieceCount(part) {
				t.Errorf("part %d yielded %d pieces, PieceCount = %d", part, count, l.PieceCount(part))
			}
		}

		if next != s.fileLen {
			t.Errorf("pieces cover [0, %d), want [0, %d)", next, s.fileLen)
		}
	}
}

func TestLayoutPiecesRestartable(t *testing.T) {
	l, err := NewLayout(1000, 500, 200)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}

	seq := l.Pieces(1)
	collect := func() []Piece {
		var out []Piece
		for p := range seq {
			out = append(out, p)
		}
		return out
	}

	first, second := collect(), collect()
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("got %d and %d pieces, want 3 each", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("piece %d differs between iterations: %+v vs %+v", i, first[i], second[i])
		}
	}

	// Early break must not panic.
	for range seq {
		break
	}

	if n := len(slices.Collect(l.Pieces(9))); n != 0 {
		t.Errorf("invalid part yielded %d pieces", n)
	}
}
