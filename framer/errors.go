// Package framer implements the wire-level message framing used by the
// Smarkets streaming session: a ULEB128 length prefix followed by the raw
// payload bytes. It is the lowest layer of the stack (transport/session sit
// above it) and is stateless apart from the unread-byte buffer it keeps for
// a single underlying io.Reader.
package framer

import "errors"

var (
	// ErrInvalidArgument reports a decoded varint length prefix that does
	// not fit in an int64 (a corrupted or adversarial header).
	ErrInvalidArgument = errors.New("framer: invalid argument")

	// ErrTooLong reports that a frame length exceeds the configured read
	// limit, or (legacy mode) the 15-bit length field.
	ErrTooLong = errors.New("framer: message too long")

	// ErrTransientUnsupported reports an attempt to mark a frame as
	// transient while encoding in ModeVarint, which has no such concept.
	ErrTransientUnsupported = errors.New("framer: transient frames require ModeLegacy")
)
