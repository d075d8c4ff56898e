package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		wantCmd     byte
		wantPayload []byte
		wantErr     error
	}{
		{name: "empty", input: nil, wantErr: ErrEmptyFrame},
		{name: "command only", input: []byte{0xF2}, wantCmd: CmdInstalling, wantPayload: []byte{}},
		{name: "request part", input: []byte{0xF1, 0x00, 0x02}, wantCmd: CmdRequestPart, wantPayload: []byte{0x00, 0x02}},
		{name: "unknown command", input: []byte{0x42, 0x01}, wantCmd: 0x42, wantPayload: []byte{0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Command != tt.wantCmd {
				t.Errorf("Command = 0x%02X, want 0x%02X", f.Command, tt.wantCmd)
			}
			if !bytes.Equal(f.Payload, tt.wantPayload) {
				t.Errorf("Payload = % X, want % X", f.Payload, tt.wantPayload)
			}
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	frames := [][]byte{
		{0xFD},
		{0xFE, 0x00, 0x01, 0x00, 0x00},
		{0xFB, 0x03, 0xAA, 0xBB},
	}

	for _, want := range frames {
		f, err := Decode(want)
		if err != nil {
			t.Fatalf("Decode(% X): %v", want, err)
		}
		if got := Encode(f.Command, f.Payload); !bytes.Equal(got, want) {
			t.Errorf("round trip = % X, want % X", got, want)
		}
	}
}

func TestParseModeAnnouncement(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Mode
		wantErr bool
	}{
		{name: "normal", data: []byte{0x00}, want: ModeNormal},
		{name: "fast", data: []byte{0x01}, want: ModeFast},
		{name: "unknown passes through", data: []byte{0x07}, want: Mode(7)},
		{name: "trailing bytes ignored", data: []byte{0x01, 0xFF}, want: ModeFast},
		{name: "missing mode", data: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModeAnnouncement(tt.data)

			if tt.wantErr {
				if !IsPayloadError(err) {
					t.Fatalf("error = %v, want PayloadError", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("mode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePartRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    int
		wantErr bool
	}{
		{name: "part 2", data: []byte{0x00, 0x02}, want: 2},
		{name: "big endian", data: []byte{0x01, 0x00}, want: 256},
		{name: "max", data: []byte{0xFF, 0xFF}, want: 0xFFFF},
		{name: "one byte", data: []byte{0x02}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePartRequest(tt.data)

			if tt.wantErr {
				if !IsPayloadError(err) {
					t.Fatalf("error = %v, want PayloadError", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("part = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseResultText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "ascii", data: []byte("OTA Success"), want: "OTA Success"},
		{name: "empty", data: nil, want: ""},
		{name: "high byte maps to latin-1", data: []byte{0x41, 0xE9}, want: "Aé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseResultText(tt.data); got != tt.want {
				t.Errorf("ParseResultText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	if ModeNormal.String() != "normal" || ModeFast.String() != "fast" {
		t.Errorf("unexpected mode names %q %q", ModeNormal, ModeFast)
	}
	if got := Mode(9).String(); got != "mode(9)" {
		t.Errorf("Mode(9).String() = %q", got)
	}
}
