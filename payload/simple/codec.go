// Package simple is a minimal, hand-written reference implementation of
// payload.Codec. It stands in for the codec a real deployment would get
// from the external Smarkets schema compiler (out of scope for this
// module, see spec §1) so that the session package's tests and the
// cmd/smkclient demo have something concrete to exercise.
//
// Its wire format is private to this package — two real Smarkets clients
// would use the actual piqi-derived protobuf-style codec, not this one.
package simple

import (
	"errors"

	"github.com/smarkets/streamapi/framer"
	"github.com/smarkets/streamapi/payload"
)

// ErrTruncated is returned by Unmarshal when b ends before a declared
// field's bytes are fully present.
var ErrTruncated = errors.New("simple: truncated payload")

// Frame is a concrete payload.Codec. The zero value is ready to use.
type Frame struct {
	typ     payload.Type
	etoType payload.EtoType
	etoSeq  uint64

	loginUsername string
	loginPassword string

	etoLoginSessionID string

	loginRespSessionID string
	loginRespReset     uint64

	replaySeq uint64

	// Body is caller-owned application bytes (orders, subscriptions, market
	// data, ...) that this module never inspects. Not part of payload.Codec;
	// accessed directly since it is opaque to the session layer.
	Body []byte
}

var _ payload.Codec = (*Frame)(nil)

func (f *Frame) Reset() { *f = Frame{} }

func (f *Frame) Type() payload.Type     { return f.typ }
func (f *Frame) SetType(t payload.Type) { f.typ = t }

func (f *Frame) EtoType() payload.EtoType     { return f.etoType }
func (f *Frame) SetEtoType(t payload.EtoType) { f.etoType = t }

func (f *Frame) EtoSeq() uint64       { return f.etoSeq }
func (f *Frame) SetEtoSeq(seq uint64) { f.etoSeq = seq }

func (f *Frame) Login() (username, password string) { return f.loginUsername, f.loginPassword }
func (f *Frame) SetLogin(username, password string) {
	f.loginUsername, f.loginPassword = username, password
}

func (f *Frame) EtoLoginSessionID() string             { return f.etoLoginSessionID }
func (f *Frame) SetEtoLoginSessionID(sessionID string) { f.etoLoginSessionID = sessionID }

func (f *Frame) LoginResponse() (sessionID string, reset uint64) {
	return f.loginRespSessionID, f.loginRespReset
}
func (f *Frame) SetLoginResponse(sessionID string, reset uint64) {
	f.loginRespSessionID, f.loginRespReset = sessionID, reset
}

func (f *Frame) ReplaySeq() uint64       { return f.replaySeq }
func (f *Frame) SetReplaySeq(seq uint64) { f.replaySeq = seq }

// Marshal encodes the frame as a flat sequence of fields, in declaration
// order above: integers as bare varints, strings and Body as
// varint-length-prefixed bytes.
func (f *Frame) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 64+len(f.Body))
	buf = framer.AppendVarint(buf, uint64(f.typ))
	buf = framer.AppendVarint(buf, uint64(f.etoType))
	buf = framer.AppendVarint(buf, f.etoSeq)
	buf = appendString(buf, f.loginUsername)
	buf = appendString(buf, f.loginPassword)
	buf = appendString(buf, f.etoLoginSessionID)
	buf = appendString(buf, f.loginRespSessionID)
	buf = framer.AppendVarint(buf, f.loginRespReset)
	buf = framer.AppendVarint(buf, f.replaySeq)
	buf = appendBytes(buf, f.Body)
	return buf, nil
}

// Unmarshal replaces the frame's fields by parsing b, previously produced
// by Marshal. On success every field, Body included, is overwritten; a
// zero-length Body decodes as an empty, non-nil slice. On error the frame
// is left unchanged.
func (f *Frame) Unmarshal(b []byte) error {
	r := reader{b: b}
	typ, ok := r.varint()
	if !ok {
		return ErrTruncated
	}
	etoType, ok := r.varint()
	if !ok {
		return ErrTruncated
	}
	etoSeq, ok := r.varint()
	if !ok {
		return ErrTruncated
	}
	username, ok := r.string()
	if !ok {
		return ErrTruncated
	}
	password, ok := r.string()
	if !ok {
		return ErrTruncated
	}
	loginSessionID, ok := r.string()
	if !ok {
		return ErrTruncated
	}
	respSessionID, ok := r.string()
	if !ok {
		return ErrTruncated
	}
	respReset, ok := r.varint()
	if !ok {
		return ErrTruncated
	}
	replaySeq, ok := r.varint()
	if !ok {
		return ErrTruncated
	}
	body, ok := r.bytes()
	if !ok {
		return ErrTruncated
	}

	f.typ = payload.Type(typ)
	f.etoType = payload.EtoType(etoType)
	f.etoSeq = etoSeq
	f.loginUsername = username
	f.loginPassword = password
	f.etoLoginSessionID = loginSessionID
	f.loginRespSessionID = respSessionID
	f.loginRespReset = respReset
	f.replaySeq = replaySeq
	f.Body = body
	return nil
}

func appendString(buf []byte, s string) []byte { return appendBytes(buf, []byte(s)) }

func appendBytes(buf []byte, b []byte) []byte {
	buf = framer.AppendVarint(buf, uint64(len(b)))
	return append(buf, b...)
}

type reader struct {
	b   []byte
	pos int
}

func (r *reader) varint() (uint64, bool) {
	v, n, ok := framer.DecodeVarint(r.b[r.pos:])
	if !ok {
		return 0, false
	}
	r.pos += n
	return v, true
}

func (r *reader) bytes() ([]byte, bool) {
	n, ok := r.varint()
	if !ok || uint64(len(r.b)-r.pos) < n {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.b[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, true
}

func (r *reader) string() (string, bool) {
	b, ok := r.bytes()
	if !ok {
		return "", false
	}
	return string(b), true
}
