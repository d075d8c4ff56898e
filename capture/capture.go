// Package capture records the frames crossing an OTA link to a file and
// reads them back.
//
// A capture is a sequence of records, each a 4-byte big-endian length
// followed by a msgpack map. The first record is a Header; every other
// record is one frame in one direction.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Record size constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxRecordSize is the largest record payload accepted by the reader (1 MiB).
	MaxRecordSize = 1024 * 1024
)

// FormatVersion is written in every header.
const FormatVersion = 1

// Direction tells which side sent a frame.
type Direction string

const (
	// Outbound frames were written by the host.
	Outbound Direction = "out"
	// Inbound frames were notified by the device.
	Inbound Direction = "in"
)

// Header is the first record of a capture.
type Header struct {
	Version int       `msgpack:"version"`
	Session string    `msgpack:"session"`
	Device  string    `msgpack:"device"`
	Started time.Time `msgpack:"started"`
}

// Record is one captured frame.
type Record struct {
	Seq       uint64    `msgpack:"seq"`
	Time      time.Time `msgpack:"ts"`
	Direction Direction `msgpack:"dir"`
	Frame     []byte    `msgpack:"frame"`
}

// ErrorKind classifies record decoding errors.
type ErrorKind int

const (
	// ErrorPartial indicates a truncated record.
	ErrorPartial ErrorKind = iota
	// ErrorTooLarge indicates a record exceeding MaxRecordSize.
	ErrorTooLarge
	// ErrorDecode indicates a msgpack decoding error.
	ErrorDecode
)

// RecordError represents a record decoding error.
type RecordError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsRecordError returns true if the error is a RecordError.
func IsRecordError(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}

// Writer appends frames to a capture. It implements link.FrameTap and is
// safe for concurrent use. Write errors are kept and reported by Err and Close.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	seq     uint64
	err     error
	session uuid.UUID
	now     func() time.Time
}

// NewWriter writes a header for device to w and returns a Writer.
func NewWriter(w io.Writer, device string) (*Writer, error) {
	cw := &Writer{
		w:       w,
		session: uuid.New(),
		now:     time.Now,
	}

	h := Header{
		Version: FormatVersion,
		Session: cw.session.String(),
		Device:  device,
		Started: cw.now().UTC(),
	}
	if err := cw.writeRecord(h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return cw, nil
}

// Create creates (or truncates) the file at path and writes a header.
func Create(path, device string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}

	w, err := NewWriter(f, device)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// SessionID returns the id written in the header.
func (w *Writer) SessionID() uuid.UUID {
	return w.session
}

// Outbound records a frame written by the host.
func (w *Writer) Outbound(frame []byte) {
	w.record(Outbound, frame)
}

// Inbound records a frame notified by the device.
func (w *Writer) Inbound(frame []byte) {
	w.record(Inbound, frame)
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying file if the Writer was made by Create, and
// returns the first write error.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closer != nil {
		if err := w.closer.Close(); err != nil && w.err == nil {
			w.err = err
		}
		w.closer = nil
	}
	return w.err
}

func (w *Writer) record(dir Direction, frame []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return
	}

	w.seq++
	rec := Record{
		Seq:       w.seq,
		Time:      w.now().UTC(),
		Direction: dir,
		Frame:     frame,
	}
	w.err = w.writeRecord(rec)
}

func (w *Writer) writeRecord(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	_, err = w.w.Write(buf)
	return err
}

// Reader reads a capture written by Writer.
type Reader struct {
	r      io.Reader
	closer io.Closer
	header Header
}

// NewReader reads the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	cr := &Reader{r: r}

	payload, err := cr.readPayload()
	if err == io.EOF {
		return nil, &RecordError{Kind: ErrorPartial, Msg: "missing header"}
	}
	if err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(payload, &cr.header); err != nil {
		return nil, &RecordError{Kind: ErrorDecode, Msg: "failed to decode header", Err: err}
	}
	if cr.header.Version != FormatVersion {
		return nil, &RecordError{
			Kind: ErrorDecode,
			Msg:  fmt.Sprintf("unsupported capture version %d", cr.header.Version),
		}
	}

	return cr, nil
}

// Open opens the capture file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record.
//
// Errors:
//   - io.EOF: no more records
//   - *RecordError: truncated, oversized or undecodable record
func (r *Reader) Next() (Record, error) {
	payload, err := r.readPayload()
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return Record{}, &RecordError{Kind: ErrorDecode, Msg: "failed to decode record", Err: err}
	}
	return rec, nil
}

// Close closes the underlying file if the Reader was made by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func (r *Reader) readPayload() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r.r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &RecordError{Kind: ErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(lengthBuf[:])
	if size > MaxRecordSize {
		return nil, &RecordError{
			Kind: ErrorTooLarge,
			Msg:  fmt.Sprintf("record size %d exceeds maximum %d", size, MaxRecordSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, &RecordError{Kind: ErrorPartial, Msg: "failed to read record", Err: err}
	}
	return payload, nil
}
