// Package session implements the sequenced-message state machine that sits
// above the TCP socket channel: the login/resume handshake, outgoing
// sequence assignment, incoming sequence validation and gap-driven replay,
// and heartbeat interception.
package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/smarkets/streamapi/framer"
	"github.com/smarkets/streamapi/payload"
	"github.com/smarkets/streamapi/transport"
)

const (
	defaultHost = "localhost"
	defaultPort = 3701
	defaultSeq  = 1
)

// socketChannel is the subset of *transport.Channel the session depends on.
// Declaring it as an interface here (rather than importing *transport.Channel
// directly into every method signature) lets tests substitute a fake
// transport without a real socket.
type socketChannel interface {
	Connect() (bool, error)
	Disconnect()
	Connected() bool
	Send([]byte) error
	Recv() (b []byte, transient bool, err error)
}

// Option configures a Session.
type Option func(*config)

type config struct {
	host          string
	port          int
	sessionID     string
	inSeq         uint64
	outSeq        uint64
	socketTimeout time.Duration
	logger        zerolog.Logger
	legacy        bool
	channel       socketChannel
}

// WithHost overrides the default host ("localhost").
func WithHost(host string) Option { return func(c *config) { c.host = host } }

// WithPort overrides the default port (3701).
func WithPort(port int) Option { return func(c *config) { c.port = port } }

// WithSessionToken supplies a previously issued session token; its presence
// triggers a resume (rather than fresh) login on Connect.
func WithSessionToken(sessionID string) Option {
	return func(c *config) { c.sessionID = sessionID }
}

// WithInSeq overrides the starting inbound sequence (default 1).
func WithInSeq(seq uint64) Option { return func(c *config) { c.inSeq = seq } }

// WithOutSeq overrides the starting outbound sequence (default 1).
func WithOutSeq(seq uint64) Option { return func(c *config) { c.outSeq = seq } }

// WithSocketTimeout sets the blocking I/O timeout applied to the underlying
// socket channel.
func WithSocketTimeout(d time.Duration) Option { return func(c *config) { c.socketTimeout = d } }

// WithLogger attaches a zerolog.Logger. Defaults to a no-op logger.
func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.logger = l } }

// WithLegacyFraming switches the underlying channel to the historical
// fixed-header framing (see spec §9) and enables the transient-frame bypass:
// an inbound frame with the legacy transient bit set skips sequence
// validation entirely and is returned to the caller untouched. Off by
// default; the specified wire format is ULEB128.
func WithLegacyFraming() Option { return func(c *config) { c.legacy = true } }

// withChannel injects a socketChannel directly, bypassing transport.Channel
// construction. Exported only within the package — used by tests.
func withChannel(ch socketChannel) Option {
	return func(c *config) { c.channel = ch }
}

// NewPayload constructs a fresh, empty payload.Codec. Callers supply one
// backed by whatever concrete codec their deployment's external schema
// compiler generated; see payload/simple for a minimal reference.
type NewPayload func() payload.Codec

// Session manages one sequenced, authenticated TCP session with the
// streaming API. It is not safe for concurrent use: sequence-number
// assignment and the shared in/out payload buffers are not internally
// synchronized (spec §5).
type Session struct {
	username string
	password string

	sessionID string
	inSeq     uint64
	outSeq    uint64

	inPayload  payload.Codec
	outPayload payload.Codec

	channel socketChannel
	log     zerolog.Logger
	legacy  bool
}

// New constructs a Session. newPayload is invoked twice to allocate the
// session's reusable in/out payload buffers.
func New(username, password string, newPayload NewPayload, opts ...Option) *Session {
	cfg := config{
		host:   defaultHost,
		port:   defaultPort,
		inSeq:  defaultSeq,
		outSeq: defaultSeq,
		logger: zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&cfg)
	}

	ch := cfg.channel
	if ch == nil {
		tcfg := []transport.Option{transport.WithLogger(cfg.logger)}
		if cfg.socketTimeout > 0 {
			tcfg = append(tcfg, transport.WithTimeout(cfg.socketTimeout))
		}
		if cfg.legacy {
			tcfg = append(tcfg, transport.WithFramerOptions(framer.WithMode(framer.ModeLegacy)))
		}
		ch = transport.NewChannel(cfg.host, cfg.port, tcfg...)
	}

	return &Session{
		username:   username,
		password:   password,
		sessionID:  cfg.sessionID,
		inSeq:      cfg.inSeq,
		outSeq:     cfg.outSeq,
		inPayload:  newPayload(),
		outPayload: newPayload(),
		channel:    ch,
		log:        cfg.logger,
		legacy:     cfg.legacy,
	}
}

// Connected reports whether the underlying socket channel is connected.
func (s *Session) Connected() bool { return s.channel.Connected() }

// SessionID returns the resume token last received from a login_response,
// or the one the Session was constructed with if none has been received
// yet.
func (s *Session) SessionID() string { return s.sessionID }

// InSeq returns the next expected inbound sequence number.
func (s *Session) InSeq() uint64 { return s.inSeq }

// OutSeq returns the next outbound sequence number that will be assigned.
func (s *Session) OutSeq() uint64 { return s.outSeq }

// OutPayload exposes the session's reusable outbound payload buffer so
// callers can populate message-specific fields before calling Send. The
// buffer is shared and overwritten by every Send and by internal control
// replies (heartbeat, replay); callers must populate-then-send without
// interleaving other session calls.
func (s *Session) OutPayload() payload.Codec { return s.outPayload }

// Connect establishes the TCP connection if not already connected, and
// performs the login (or resume, if a session token is set) handshake.
// If the channel is already connected, Connect does nothing.
func (s *Session) Connect() error {
	needed, err := s.channel.Connect()
	if err != nil {
		return err
	}
	if !needed {
		return nil
	}

	s.log.Info().Str("username", s.username).Msg("sending login payload")
	s.outPayload.Reset()
	s.outPayload.SetType(payload.TypeLogin)
	s.outPayload.SetLogin(s.username, s.password)
	if s.sessionID != "" {
		s.log.Info().Str("session_id", s.sessionID).Msg("attempting to resume session")
		s.outPayload.SetEtoType(payload.EtoLogin)
		s.outPayload.SetEtoLoginSessionID(s.sessionID)
	}
	return s.sendInternal()
}

// Disconnect closes the underlying socket channel.
func (s *Session) Disconnect() { s.channel.Disconnect() }

// Send transmits the currently populated OutPayload buffer: it stamps the
// outbound sequence number, serialises, and writes one frame. On success
// the outbound sequence counter advances by one (invariant I1).
func (s *Session) Send() error { return s.sendInternal() }

func (s *Session) sendInternal() error {
	s.outPayload.SetEtoSeq(s.outSeq)
	b, err := s.outPayload.Marshal()
	if err != nil {
		return err
	}
	s.log.Debug().Uint64("seq", s.outSeq).Msg("sending payload")
	if err := s.channel.Send(b); err != nil {
		return err
	}
	s.outSeq++
	return nil
}

// NextFrame blocks for the next inbound frame, decodes it, intercepts
// control messages (login_response, heartbeat), and classifies it by
// sequence number:
//
//   - seq == InSeq: InSeq advances by one, the payload is returned.
//   - legacy transient frame (WithLegacyFraming only): sequence validation
//     is bypassed entirely and the payload is returned unchanged.
//   - eto_type == REPLAY: no sequence change, returns (nil, nil).
//   - seq > InSeq: a replay request is sent for the current InSeq, returns
//     (nil, nil).
//   - seq < InSeq: a duplicate, dropped silently, returns (nil, nil).
func (s *Session) NextFrame() (payload.Codec, error) {
	b, transient, err := s.channel.Recv()
	if err != nil {
		return nil, err
	}

	s.inPayload.Reset()
	if err := s.inPayload.Unmarshal(b); err != nil {
		return nil, err
	}

	if s.legacy && transient {
		s.log.Debug().Msg("received transient frame, bypassing sequence check")
		return s.inPayload, nil
	}

	if err := s.handleInPayload(); err != nil {
		return nil, err
	}

	seq := s.inPayload.EtoSeq()
	switch {
	case seq == s.inSeq:
		s.log.Debug().Uint64("seq", s.inSeq).Msg("received in-order frame")
		s.inSeq++
		return s.inPayload, nil
	case s.inPayload.EtoType() == payload.EtoReplay:
		s.log.Debug().Uint64("seq", seq).Msg("received replay message")
		return nil, nil
	case seq > s.inSeq:
		s.log.Info().Uint64("got", seq).Uint64("want", s.inSeq).Msg("sequence gap, requesting replay")
		if err := s.sendReplayRequest(); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		s.log.Debug().Uint64("seq", seq).Uint64("in_seq", s.inSeq).Msg("dropping duplicate frame")
		return nil, nil
	}
}

// handleInPayload intercepts LOGIN_RESPONSE (captures the session token and
// resets the outbound sequence) and HEARTBEAT (replies in kind, consuming
// one outbound sequence number) before sequence classification runs.
func (s *Session) handleInPayload() error {
	switch s.inPayload.EtoType() {
	case payload.EtoLoginResponse:
		sessionID, reset := s.inPayload.LoginResponse()
		s.sessionID = sessionID
		s.outSeq = reset
		s.log.Info().Str("session_id", sessionID).Uint64("reset", reset).
			Msg("received login_response")
	case payload.EtoHeartbeat:
		s.log.Debug().Msg("received heartbeat, responding")
		s.outPayload.Reset()
		s.outPayload.SetType(payload.TypeETO)
		s.outPayload.SetEtoType(payload.EtoHeartbeat)
		if err := s.sendInternal(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) sendReplayRequest() error {
	s.outPayload.Reset()
	s.outPayload.SetType(payload.TypeETO)
	s.outPayload.SetEtoType(payload.EtoReplay)
	s.outPayload.SetReplaySeq(s.inSeq)
	return s.sendInternal()
}
