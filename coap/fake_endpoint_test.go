package coap

import (
	"errors"
	"time"

	"github.com/lobaro/coap-engine/coapmsg"
)

// fakeEndpoint is an in-memory Endpoint standing in for a connected
// peer, grounded on the teacher's TestConnector/PacketBuffer pattern
// in transport_uart_test.go: a pair of buffered channels, one per
// direction, driven from a "server" goroutine the test controls
// directly instead of a real socket.
type fakeEndpoint struct {
	toClient chan []byte
	toServer chan []byte
	readable chan struct{}
	closed   chan struct{}
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{
		toClient: make(chan []byte, 32),
		toServer: make(chan []byte, 32),
		readable: make(chan struct{}, 32),
		closed:   make(chan struct{}),
	}
}

func (f *fakeEndpoint) Send(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	f.toServer <- cp
	return len(b), nil
}

func (f *fakeEndpoint) Recv(buf []byte) (int, error) {
	select {
	case pkt := <-f.toClient:
		return copy(buf, pkt), nil
	default:
		return 0, errors.New("fakeEndpoint: Recv called with nothing pending")
	}
}

func (f *fakeEndpoint) Readable() <-chan struct{} {
	return f.readable
}

func (f *fakeEndpoint) Close() error {
	close(f.closed)
	return nil
}

// ServerRecv waits for the next datagram the client sent, decoding it
// as the peer would.
func (f *fakeEndpoint) ServerRecv(timeout time.Duration) (*coapmsg.Message, error) {
	select {
	case raw := <-f.toServer:
		return coapmsg.Parse(raw)
	case <-time.After(timeout):
		return nil, errors.New("fakeEndpoint: timed out waiting for a client datagram")
	}
}

// ServerSend delivers msg to the client and signals Readable.
func (f *fakeEndpoint) ServerSend(msg *coapmsg.Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return err
	}
	f.toClient <- raw
	f.readable <- struct{}{}
	return nil
}

// ServerSendRaw delivers an already-serialized (possibly malformed)
// datagram, for format-error absorption tests.
func (f *fakeEndpoint) ServerSendRaw(raw []byte) {
	f.toClient <- raw
	f.readable <- struct{}{}
}
