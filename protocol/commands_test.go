package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  byte
		data []byte
		want []byte
	}{
		{name: "no payload", cmd: CmdDeleteImage, data: nil, want: []byte{0xFD}},
		{name: "empty payload", cmd: CmdInstalling, data: []byte{}, want: []byte{0xF2}},
		{name: "with payload", cmd: CmdRequestPart, data: []byte{0x00, 0x07}, want: []byte{0xF1, 0x00, 0x07}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.cmd, tt.data)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestEncodeDoesNotAliasPayload(t *testing.T) {
	data := []byte{1, 2, 3}
	frame := Encode(CmdWritePiece, data)
	data[0] = 0xEE

	if frame[1] != 1 {
		t.Errorf("frame changed with source payload: % X", frame)
	}
}

func TestBuildDeleteImageCmd(t *testing.T) {
	frame := BuildDeleteImageCmd()
	if !bytes.Equal(frame, []byte{0xFD}) {
		t.Errorf("BuildDeleteImageCmd() = % X, want FD", frame)
	}
}

func TestBuildFileLengthCmd(t *testing.T) {
	tests := []struct {
		name    string
		fileLen int
		want    []byte
		wantErr bool
	}{
		{name: "zero", fileLen: 0, want: []byte{0xFE, 0x00, 0x00, 0x00, 0x00}},
		{name: "65536", fileLen: 65536, want: []byte{0xFE, 0x00, 0x01, 0x00, 0x00}},
		{name: "typical image", fileLen: 0x0012D4A0, want: []byte{0xFE, 0x00, 0x12, 0xD4, 0xA0}},
		{name: "negative", fileLen: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildFileLengthCmd(tt.fileLen)

			if tt.wantErr {
				var fre *FieldRangeError
				if !errors.As(err, &fre) {
					t.Fatalf("error = %v, want *FieldRangeError", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame = % X, want % X", frame, tt.want)
			}
		})
	}
}

func TestBuildOTAParamsCmd(t *testing.T) {
	tests := []struct {
		name    string
		parts   int
		mtu     int
		want    []byte
		wantErr bool
	}{
		{name: "three parts default mtu", parts: 3, mtu: 200, want: []byte{0xFF, 0x00, 0x03, 0x00, 0xC8}},
		{name: "max values", parts: 0xFFFF, mtu: 0xFFFF, want: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{name: "too many parts", parts: 0x10000, mtu: 200, wantErr: true},
		{name: "mtu too large", parts: 1, mtu: 0x10000, wantErr: true},
		{name: "negative mtu", parts: 1, mtu: -5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildOTAParamsCmd(tt.parts, tt.mtu)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame = % X, want % X", frame, tt.want)
			}
		})
	}
}

func TestBuildPieceCmd(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		data    []byte
		want    []byte
		wantErr bool
	}{
		{name: "first piece", index: 0, data: []byte{0xE9, 0x03}, want: []byte{0xFB, 0x00, 0xE9, 0x03}},
		{name: "last index", index: 255, data: []byte{0x01}, want: []byte{0xFB, 0xFF, 0x01}},
		{name: "empty data", index: 4, data: nil, want: []byte{0xFB, 0x04}},
		{name: "index overflows byte", index: 256, data: []byte{0x01}, wantErr: true},
		{name: "negative index", index: -1, data: []byte{0x01}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildPieceCmd(tt.index, tt.data)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame = % X, want % X", frame, tt.want)
			}
		})
	}
}

func TestBuildPartCompleteCmd(t *testing.T) {
	tests := []struct {
		name    string
		partLen int
		part    int
		want    []byte
		wantErr bool
	}{
		{name: "full part", partLen: 16384, part: 0, want: []byte{0xFC, 0x40, 0x00, 0x00, 0x00}},
		{name: "short last part", partLen: 1234, part: 2, want: []byte{0xFC, 0x04, 0xD2, 0x00, 0x02}},
		{name: "part length too large", partLen: 0x10000, part: 0, wantErr: true},
		{name: "negative part", partLen: 10, part: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildPartCompleteCmd(tt.partLen, tt.part)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame = % X, want % X", frame, tt.want)
			}
		})
	}
}

func TestFrameString(t *testing.T) {
	f := Frame{Command: CmdFileLength, Payload: []byte{0x00, 0x01, 0x00, 0x00}}
	if got, want := f.String(), "fe 00 01 00 00"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !bytes.Equal(f.Bytes(), []byte{0xFE, 0x00, 0x01, 0x00, 0x00}) {
		t.Errorf("Bytes() = % X", f.Bytes())
	}
}
