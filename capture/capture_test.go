package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf, "ESP32 OTA")
	require.NoError(t, err)

	w.Outbound([]byte{0xFD})
	w.Outbound([]byte{0xFE, 0x00, 0x00, 0x9C, 0x40})
	w.Inbound([]byte{0xAA, 0x01})
	require.NoError(t, w.Err())

	r, err := NewReader(&buf)
	require.NoError(t, err)

	h := r.Header()
	assert.Equal(t, FormatVersion, h.Version)
	assert.Equal(t, "ESP32 OTA", h.Device)
	assert.Equal(t, w.SessionID().String(), h.Session)

	want := []struct {
		dir   Direction
		frame []byte
	}{
		{Outbound, []byte{0xFD}},
		{Outbound, []byte{0xFE, 0x00, 0x00, 0x9C, 0x40}},
		{Inbound, []byte{0xAA, 0x01}},
	}
	for i, wr := range want {
		rec, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), rec.Seq)
		assert.Equal(t, wr.dir, rec.Direction)
		assert.Equal(t, wr.frame, rec.Frame)
		assert.False(t, rec.Time.IsZero())
	}

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.otacap")

	w, err := Create(path, "dev")
	require.NoError(t, err)
	w.Inbound([]byte{0xF2})
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF2}, rec.Frame)
}

func TestReaderErrors(t *testing.T) {
	var valid bytes.Buffer
	_, err := NewWriter(&valid, "dev")
	require.NoError(t, err)

	oversized := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(oversized, MaxRecordSize+1)

	tests := []struct {
		name     string
		input    []byte
		wantKind ErrorKind
	}{
		{name: "empty", input: nil, wantKind: ErrorPartial},
		{name: "short prefix", input: []byte{0x00, 0x01}, wantKind: ErrorPartial},
		{name: "truncated header", input: valid.Bytes()[:valid.Len()-2], wantKind: ErrorPartial},
		{name: "oversized", input: oversized, wantKind: ErrorTooLarge},
		{name: "garbage payload", input: []byte{0, 0, 0, 1, 0xC1}, wantKind: ErrorDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.input))

			var re *RecordError
			require.True(t, errors.As(err, &re), "error = %v", err)
			assert.Equal(t, tt.wantKind, re.Kind)
		})
	}
}

type failingWriter struct {
	n int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n == 0 {
		return 0, errors.New("disk full")
	}
	f.n--
	return len(p), nil
}

func TestWriterKeepsFirstError(t *testing.T) {
	w, err := NewWriter(&failingWriter{n: 1}, "dev")
	require.NoError(t, err)

	w.Outbound([]byte{0xFD})
	w.Outbound([]byte{0xFE})

	assert.EqualError(t, w.Err(), "disk full")
	assert.EqualError(t, w.Close(), "disk full")
}
