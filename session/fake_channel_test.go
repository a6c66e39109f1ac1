package session

import "errors"

// errDisconnectedStub stands in for transport.ErrDisconnected in tests that
// don't want to import the transport package just to reference its sentinel.
var errDisconnectedStub = errors.New("fakeChannel: disconnected")

// fakeChannel is an in-memory stand-in for *transport.Channel used to drive
// the session state machine deterministically, without a real socket.
type fakeChannel struct {
	connected  bool
	connectErr error

	sent    [][]byte
	sendErr error

	recvQueue     [][]byte
	recvTransient []bool
	recvErrs      []error
	recvIdx       int
}

func (f *fakeChannel) Connect() (bool, error) {
	if f.connected {
		return false, nil
	}
	if f.connectErr != nil {
		return false, f.connectErr
	}
	f.connected = true
	return true, nil
}

func (f *fakeChannel) Disconnect() { f.connected = false }

func (f *fakeChannel) Connected() bool { return f.connected }

func (f *fakeChannel) Send(b []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), b...))
	return nil
}

func (f *fakeChannel) enqueue(b []byte, transient bool, err error) {
	f.recvQueue = append(f.recvQueue, b)
	f.recvTransient = append(f.recvTransient, transient)
	f.recvErrs = append(f.recvErrs, err)
}

func (f *fakeChannel) Recv() ([]byte, bool, error) {
	if f.recvIdx >= len(f.recvQueue) {
		return nil, false, errors.New("fakeChannel: no more frames queued")
	}
	i := f.recvIdx
	f.recvIdx++
	if f.recvErrs[i] != nil {
		f.connected = false
		return nil, false, f.recvErrs[i]
	}
	return f.recvQueue[i], f.recvTransient[i], nil
}
