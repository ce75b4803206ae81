// Package udpv6 is the reference coap.Endpoint: a connected IPv6 UDP
// peer, dialed once and driven by a background read-pump goroutine so
// the blocking net.Conn looks non-blocking to the engine's multiplex
// select (coap.Endpoint's contract, spec.md section 4.4).
package udpv6

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv6"
)

// defaultPort is the CoAP default UDP port (RFC 7252 section 12.8).
const defaultPort = 5683

// Endpoint dials a single IPv6 peer and exposes it as a coap.Endpoint.
// Unlike the teacher's udp6socket, which listens on a wildcard address
// and joins the all-nodes multicast group to serve many clients,
// Endpoint is a connected point-to-point peer — the client side of
// that same ipv6.PacketConn machinery.
type Endpoint struct {
	conn   *net.UDPConn
	ipConn *ipv6.Conn

	packets  chan []byte
	readable chan struct{}
	closed   chan struct{}
}

// Dial connects to a CoAP peer at addr (host or host:port; the default
// CoAP port is used if no port is given). trafficClass, if non-zero, is
// set on the socket with ipv6.Conn.SetTrafficClass; a failure to set it
// is ignored.
func Dial(addr string, trafficClass int) (*Endpoint, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(defaultPort))
	}

	udpAddr, err := net.ResolveUDPAddr("udp6", addr)
	if err != nil {
		return nil, errors.Wrap(err, "udpv6: resolve")
	}

	conn, err := net.DialUDP("udp6", nil, udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "udpv6: dial")
	}

	ipConn := ipv6.NewConn(conn)
	if trafficClass != 0 {
		_ = ipConn.SetTrafficClass(trafficClass)
	}

	ep := &Endpoint{
		conn:     conn,
		ipConn:   ipConn,
		packets:  make(chan []byte, 16),
		readable: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	go ep.pump()
	return ep, nil
}

// pump is the background goroutine that turns conn's blocking Read
// into the readable-channel signal coap.Endpoint requires.
func (e *Endpoint) pump() {
	buf := make([]byte, 65535)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			return
		}
		pkt := append([]byte(nil), buf[:n]...)
		select {
		case e.packets <- pkt:
		case <-e.closed:
			return
		}
		select {
		case e.readable <- struct{}{}:
		default:
		}
	}
}

// Send writes b as a single datagram.
func (e *Endpoint) Send(b []byte) (int, error) {
	return e.conn.Write(b)
}

// Recv dequeues the next datagram the pump has buffered. Only valid to
// call after Readable has fired; returns an error if called with
// nothing pending.
func (e *Endpoint) Recv(buf []byte) (int, error) {
	select {
	case pkt := <-e.packets:
		n := copy(buf, pkt)
		if len(e.packets) > 0 {
			select {
			case e.readable <- struct{}{}:
			default:
			}
		}
		return n, nil
	default:
		return 0, errors.New("udpv6: Recv called with no datagram pending")
	}
}

// Readable fires once a datagram is queued and ready for Recv.
func (e *Endpoint) Readable() <-chan struct{} {
	return e.readable
}

// Close stops the read pump and releases the socket.
func (e *Endpoint) Close() error {
	close(e.closed)
	return e.conn.Close()
}
