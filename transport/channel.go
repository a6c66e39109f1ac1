package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/smarkets/streamapi/framer"
)

// defaultReadLimit caps the payload size accepted from an unauthenticated
// or misbehaving peer absent an explicit WithFramerOptions(WithReadLimit)
// override — a corrupt or adversarial length prefix must not drive an
// unbounded allocation. Matches the teacher's conservative default cap for
// a zero ReadLimit.
const defaultReadLimit = 1 << 16 // 64KiB

// Option configures a Channel.
type Option func(*Channel)

// WithTimeout sets the socket timeout applied to connect and all subsequent
// blocking I/O on the connection.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

// WithLogger attaches a zerolog.Logger. Defaults to a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithFramerOptions forwards options to the underlying framer.Encoder and
// framer.Decoder, e.g. framer.WithMode(framer.ModeLegacy) or
// framer.WithReadLimit.
func WithFramerOptions(opts ...framer.Option) Option {
	return func(c *Channel) { c.framerOpts = append(c.framerOpts, opts...) }
}

// Channel owns one TCP connection and its framing. It is the "Socket
// Channel" of the session design: connect/disconnect lifecycle, lazy
// connect on Send, and translation of OS/transport errors into the
// ConnError / ErrDisconnected taxonomy.
//
// Channel is not safe for concurrent use without external synchronization.
type Channel struct {
	host string
	port int

	timeout    time.Duration
	log        zerolog.Logger
	framerOpts []framer.Option

	dial func(network, addr string, timeout time.Duration) (net.Conn, error)

	conn net.Conn
	dec  *framer.Decoder
	enc  *framer.Encoder
}

// NewChannel constructs a Channel for host:port. It does not connect.
func NewChannel(host string, port int, opts ...Option) *Channel {
	c := &Channel{
		host: host,
		port: port,
		log:  zerolog.Nop(),
		dial: dialTimeout,
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

func dialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, addr, timeout)
}

// Connected reports whether the channel currently owns a live socket.
func (c *Channel) Connected() bool { return c.conn != nil }

// Connect opens a TCP connection to host:port. It is idempotent: if already
// connected it returns (false, nil) without touching the socket. On OS-level
// failure it returns a *ConnError.
func (c *Channel) Connect() (bool, error) {
	if c.conn != nil {
		c.log.Debug().Msg("connect() called, but already connected")
		return false, nil
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	c.log.Info().Str("addr", addr).Msg("connecting with new socket")
	conn, err := c.dial("tcp4", addr, c.timeout)
	if err != nil {
		return false, &ConnError{Op: "connect", Addr: addr, Err: err}
	}
	if c.timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}

	// defaultReadLimit goes first so a caller-supplied WithReadLimit in
	// c.framerOpts (applied after) overrides it, per functional-options
	// last-wins convention.
	opts := append([]framer.Option{framer.WithReadLimit(defaultReadLimit)}, c.framerOpts...)
	c.conn = conn
	c.enc = framer.NewEncoder(opts...)
	c.dec = framer.NewDecoder(conn, opts...)
	return true, nil
}

// Disconnect closes the socket, swallowing OS close errors, and transitions
// to disconnected. It is idempotent.
func (c *Channel) Disconnect() {
	if c.conn == nil {
		c.log.Debug().Msg("disconnect() called with no socket, ignoring")
		return
	}
	c.log.Info().Msg("closing socket")
	_ = c.conn.Close()
	c.conn = nil
	c.dec = nil
	c.enc = nil
}

// Send serialises and frames payload, then writes it in a single blocking
// write. If the channel is disconnected it connects first (logging a
// warning — this indicates caller misuse but must not fail). On I/O error
// the socket is closed before the error is returned.
func (c *Channel) Send(payload []byte) error {
	if c.conn == nil {
		c.log.Warn().Msg("send called while disconnected, connecting...")
		if _, err := c.Connect(); err != nil {
			return err
		}
	}

	frame, err := c.enc.Encode(payload)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if err := c.deadline(); err != nil {
		c.Disconnect()
		return &ConnError{Op: "send", Addr: addr, Err: err}
	}

	if _, err := writeFull(c.conn, frame); err != nil {
		c.Disconnect()
		return &ConnError{Op: "send", Addr: addr, Err: err}
	}
	return nil
}

// Recv reads and returns exactly one frame's payload bytes, plus the
// framer's transient flag (meaningful only under ModeLegacy, see
// WithFramerOptions). If the underlying reader observes fewer bytes than
// required to complete a frame (the peer closed mid-frame), the socket is
// closed and ErrDisconnected is returned.
func (c *Channel) Recv() (payload []byte, transient bool, err error) {
	if c.conn == nil {
		return nil, false, ErrDisconnected
	}
	if err := c.deadline(); err != nil {
		return nil, false, err
	}

	f, err := c.dec.Next()
	if err != nil {
		c.Disconnect()
		return nil, false, ErrDisconnected
	}
	return f.Payload, f.Transient, nil
}

func (c *Channel) deadline() error {
	if c.timeout <= 0 || c.conn == nil {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(c.timeout))
}

func writeFull(w interface{ Write([]byte) (int, error) }, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
