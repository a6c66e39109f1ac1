package framer

import (
	"encoding/binary"
	"io"
	"math"
)

// Mode selects the wire framing algorithm.
//
//   - ModeVarint: ULEB128(length) ++ payload. The current, specified framing.
//   - ModeLegacy: a fixed 16-bit big-endian header; the high bit flags a
//     "transient" (non-sequenced) message, the low 15 bits carry the length.
//     Present only for compatibility with a historical server variant; new
//     code should use ModeVarint.
type Mode uint8

const (
	ModeVarint Mode = iota
	ModeLegacy
)

const (
	legacyTransientBit = 1 << 15
	legacyLengthMask   = legacyTransientBit - 1
)

// minFillDefault is the minimum number of bytes requested per underlying
// Read when the buffer needs topping up. Amortises read syscalls; any
// overshoot simply accumulates in the buffer for the next frame.
const minFillDefault = 4

// Options configures a Decoder or Encoder.
type Options struct {
	Mode Mode

	// ReadLimit caps the maximum allowed payload size in bytes. Zero means
	// no limit beyond what int64 admits.
	ReadLimit int64

	// MinFill is the minimum number of bytes requested per underlying Read
	// when refilling the decode buffer. Defaults to 4.
	MinFill int
}

var defaultOptions = Options{
	Mode:    ModeVarint,
	MinFill: minFillDefault,
}

// Option configures Options.
type Option func(*Options)

// WithMode selects the wire framing algorithm.
func WithMode(m Mode) Option {
	return func(o *Options) { o.Mode = m }
}

// WithReadLimit caps the maximum accepted payload size.
func WithReadLimit(n int64) Option {
	return func(o *Options) { o.ReadLimit = n }
}

// WithMinFill overrides the minimum per-Read fill size used by a Decoder.
func WithMinFill(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MinFill = n
		}
	}
}

func resolve(opts []Option) Options {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Frame is one decoded message.
type Frame struct {
	// Payload is the frame's declared payload bytes. Decoder.Next copies
	// them into a freshly allocated slice, so it stays valid after later
	// calls to Next.
	Payload []byte

	// Transient is set when the frame carries the legacy high-bit flag
	// (ModeLegacy only); it is always false in ModeVarint.
	Transient bool
}

// Encoder serialises payload bytes into wire frames.
type Encoder struct {
	mode Mode
}

// NewEncoder returns an Encoder using the given options.
func NewEncoder(opts ...Option) *Encoder {
	o := resolve(opts)
	return &Encoder{mode: o.Mode}
}

// Encode returns the framed bytes for payload: varint(len(payload)) ++
// payload in ModeVarint, or the fixed 16-bit header form in ModeLegacy.
func (e *Encoder) Encode(payload []byte) ([]byte, error) {
	return e.encode(payload, false)
}

// EncodeTransient returns a frame with the legacy transient bit set. Only
// valid in ModeLegacy; returns ErrTransientUnsupported otherwise.
func (e *Encoder) EncodeTransient(payload []byte) ([]byte, error) {
	return e.encode(payload, true)
}

func (e *Encoder) encode(payload []byte, transient bool) ([]byte, error) {
	switch e.mode {
	case ModeLegacy:
		if len(payload) > legacyLengthMask {
			return nil, ErrTooLong
		}
		header := uint16(len(payload))
		if transient {
			header |= legacyTransientBit
		}
		out := make([]byte, 2+len(payload))
		binary.BigEndian.PutUint16(out[:2], header)
		copy(out[2:], payload)
		return out, nil
	default:
		if transient {
			return nil, ErrTransientUnsupported
		}
		out := AppendVarint(make([]byte, 0, len(payload)+2), uint64(len(payload)))
		out = append(out, payload...)
		return out, nil
	}
}

// Decoder reads framed messages from an underlying io.Reader, buffering any
// bytes read past the current frame's boundary for the next call to Next.
//
// A Decoder is not safe for concurrent use; it owns a single unread-byte
// buffer for its underlying reader (spec invariant: the buffer never holds
// a partial frame after Next returns successfully).
type Decoder struct {
	r         io.Reader
	mode      Mode
	readLimit int64
	minFill   int

	buf []byte // unread bytes carried over from the underlying reader
}

// NewDecoder returns a Decoder reading frames from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	o := resolve(opts)
	return &Decoder{
		r:         r,
		mode:      o.Mode,
		readLimit: o.ReadLimit,
		minFill:   o.MinFill,
	}
}

// Next reads and returns the next frame. It blocks until a full frame is
// available or the underlying reader errors.
//
// Error semantics:
//   - io.EOF: the stream ended cleanly at a message boundary (no bytes of a
//     new frame had been read yet).
//   - io.ErrUnexpectedEOF: the stream ended after some but not all of a
//     frame's bytes were read (a mid-frame disconnect).
//   - ErrTooLong: the declared length exceeds the configured ReadLimit.
//   - ErrInvalidArgument: the declared varint length does not fit in an
//     int64 (ModeVarint only — a corrupted or adversarial length prefix).
//   - any other error returned by the underlying reader.
func (d *Decoder) Next() (Frame, error) {
	switch d.mode {
	case ModeLegacy:
		return d.nextLegacy()
	default:
		return d.nextVarint()
	}
}

func (d *Decoder) nextVarint() (Frame, error) {
	// 1) Ensure at least one buffered byte, then walk the buffer decoding
	// 7-bit groups until a byte with the high bit clear is consumed.
	pos := 0
	var value uint64
	var shift uint
	for {
		if pos >= len(d.buf) {
			if err := d.fill(pos + 1); err != nil {
				return Frame{}, err
			}
		}
		c := d.buf[pos]
		pos++
		value |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}

	if value > math.MaxInt64 {
		return Frame{}, ErrInvalidArgument
	}
	length := int64(value)
	if d.readLimit > 0 && length > d.readLimit {
		return Frame{}, ErrTooLong
	}

	// 2) Ensure the buffer holds the full payload, then slice it off.
	if err := d.fill(pos + int(length)); err != nil {
		return Frame{}, err
	}
	payload := d.buf[pos : pos+int(length)]
	out := make([]byte, length)
	copy(out, payload)
	d.buf = d.buf[pos+int(length):]
	return Frame{Payload: out}, nil
}

func (d *Decoder) nextLegacy() (Frame, error) {
	if err := d.fill(2); err != nil {
		return Frame{}, err
	}
	header := binary.BigEndian.Uint16(d.buf[:2])
	transient := header&legacyTransientBit != 0
	length := int64(header & legacyLengthMask)
	if d.readLimit > 0 && length > d.readLimit {
		return Frame{}, ErrTooLong
	}

	if err := d.fill(2 + int(length)); err != nil {
		return Frame{}, err
	}
	payload := d.buf[2 : 2+int(length)]
	out := make([]byte, length)
	copy(out, payload)
	d.buf = d.buf[2+int(length):]
	return Frame{Payload: out, Transient: transient}, nil
}

// fill ensures d.buf holds at least n bytes, issuing underlying Reads in
// chunks of at least minFill bytes until satisfied. Reaching need is
// success even if the requested chunk (padded up to minFill) is not fully
// read — minFill only amortises read syscalls, it is never a hard
// requirement (spec §4.1's "harmless overshoot").
func (d *Decoder) fill(n int) error {
	for len(d.buf) < n {
		hadAny := len(d.buf) > 0
		need := n - len(d.buf)
		readAmt := need
		if readAmt < d.minFill {
			readAmt = d.minFill
		}
		chunk := make([]byte, readAmt)
		got, err := io.ReadAtLeast(d.r, chunk, need)
		if got > 0 {
			d.buf = append(d.buf, chunk[:got]...)
		}
		if err != nil {
			if err == io.EOF && !hadAny && got == 0 {
				return io.EOF
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}
