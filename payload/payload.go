// Package payload declares the abstract Payload Codec consumed by the
// session state machine. The real message schema — the SETO application
// layer and the ETO transport/envelope layer — is produced by an external
// schema compiler from Smarkets' piqi definitions; this package never
// parses that schema. It only names the handful of fields the session
// layer must read or write to drive login, sequencing, replay, and
// heartbeats, as typed accessors rather than the dynamic name-probing the
// original implementation used (see spec §9, "Dynamic payload access").
package payload

// Type is the application-layer (SETO) payload discriminator. Beyond the
// two values the session cares about, its value space belongs entirely to
// the external schema and is opaque to this module.
type Type uint16

const (
	// TypeETO marks a payload whose meaning is carried entirely by its
	// eto_payload (heartbeat reply, replay request) with no application body.
	TypeETO Type = 1
	// TypeLogin marks the initial login payload, login{username,password}.
	TypeLogin Type = 2
)

// EtoType is the transport/envelope-layer (ETO) payload discriminator.
type EtoType uint16

const (
	EtoNone          EtoType = 0
	EtoLogin         EtoType = 1
	EtoLoginResponse EtoType = 2
	EtoHeartbeat     EtoType = 3
	EtoReplay        EtoType = 4
)

// Codec is one reusable, mutable Payload instance plus its wire codec. The
// session owns exactly two of these (an in-buffer and an out-buffer) and
// reuses them across messages to avoid per-message allocation (spec §3,
// "Rationale: avoid allocation per message").
//
// A concrete Codec is expected to be generated from the external schema
// compiler; this package only declares the contract. See payload/simple for
// a minimal hand-written reference implementation used by this module's own
// tests and its example client.
type Codec interface {
	// Marshal serialises the current field values to bytes.
	Marshal() ([]byte, error)
	// Unmarshal replaces the current field values by parsing b.
	Unmarshal(b []byte) error
	// Reset clears all fields back to their zero value.
	Reset()

	Type() Type
	SetType(Type)

	EtoType() EtoType
	SetEtoType(EtoType)

	// EtoSeq is the transport sequence number, eto_payload.seq.
	EtoSeq() uint64
	SetEtoSeq(uint64)

	// Login is the top-level login{username,password} used on the initial
	// login frame.
	Login() (username, password string)
	SetLogin(username, password string)

	// EtoLoginSessionID is eto_payload.login.session_id, set on resume.
	EtoLoginSessionID() string
	SetEtoLoginSessionID(sessionID string)

	// LoginResponse is eto_payload.login_response{session_id,reset},
	// populated by the server after a login/resume attempt.
	LoginResponse() (sessionID string, reset uint64)
	SetLoginResponse(sessionID string, reset uint64)

	// ReplaySeq is eto_payload.replay.seq.
	ReplaySeq() uint64
	SetReplaySeq(seq uint64)
}
