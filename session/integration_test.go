package session

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/smarkets/streamapi/framer"
	"github.com/smarkets/streamapi/payload"
	"github.com/smarkets/streamapi/payload/simple"
	"github.com/smarkets/streamapi/transport"
)

// fakeServer plays the server side of a login handshake over a real TCP
// loopback connection, minting a short, human-readable session token the
// way a real endpoint would assign one on login. It exercises the Session
// and transport.Channel stack together, rather than socketChannel alone.
func fakeServer(t *testing.T, ln net.Listener, reset uint64) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		dec := newServerDecoder(conn)
		loginBytes, err := dec.next()
		if err != nil {
			return
		}
		var login simple.Frame
		if err := login.Unmarshal(loginBytes); err != nil {
			return
		}

		resp := simple.Frame{}
		resp.SetEtoType(payload.EtoLoginResponse)
		resp.SetEtoSeq(1)
		resp.SetLoginResponse(shortuuid.New(), reset)
		b, err := resp.Marshal()
		if err != nil {
			return
		}
		writeFrame(conn, b)
	}()
}

func TestSessionLoginOverRealSocket(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	fakeServer(t, ln, 42)

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	ch := transport.NewChannel(host, port, transport.WithTimeout(2*time.Second))
	newPayload := func() payload.Codec { return &simple.Frame{} }
	s := New("alice", "hunter2", newPayload, withChannel(ch))

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	got, err := s.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	if got == nil {
		t.Fatalf("NextFrame returned nil for login_response")
	}
	if s.SessionID() == "" {
		t.Fatalf("SessionID not captured from login_response")
	}
	if s.OutSeq() != 42 {
		t.Fatalf("OutSeq = %d, want 42", s.OutSeq())
	}
}

// --- minimal raw framing helpers for the fake server side, built directly
// on framer.Decoder and framer.EncodeVarint, independent of
// transport.Channel, so the server side has no Channel or Session state. ---

type serverDecoder struct {
	dec *framer.Decoder
}

func newServerDecoder(conn net.Conn) *serverDecoder { return &serverDecoder{dec: framer.NewDecoder(conn)} }

func (d *serverDecoder) next() ([]byte, error) {
	f, err := d.dec.Next()
	if err != nil {
		return nil, err
	}
	return f.Payload, nil
}

func writeFrame(conn net.Conn, body []byte) {
	conn.Write(framer.EncodeVarint(uint64(len(body))))
	conn.Write(body)
}
