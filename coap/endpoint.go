package coap

import "context"

// Endpoint is the connected datagram peer contract spec.md section 4.4
// describes: atomic non-blocking send, non-blocking receive of one
// datagram, and a readiness signal compatible with multiplex. UDP/IPv6
// (udpv6.Endpoint) is the reference implementation; serialendpoint.Endpoint
// extends the same contract over a framed serial line.
type Endpoint interface {
	// Send transmits the whole datagram atomically. A short write is
	// reported as an error, never returned as a partial success.
	Send(b []byte) (int, error)

	// Recv returns one already-available datagram into buf, sized up
	// to len(buf). It must not block; callers only call it after
	// Readable() has fired.
	Recv(buf []byte) (int, error)

	// Readable fires once a datagram is available to Recv. Implementations
	// typically drive this from a background read-pump goroutine over a
	// blocking OS socket read, since Go has no portable non-blocking
	// socket read primitive — the channel is the non-blocking facade the
	// contract requires.
	Readable() <-chan struct{}

	// Close releases the underlying transport. A Client owns exactly one
	// Endpoint, acquired at construction and released on every exit path.
	Close() error
}

// wakeReason reports which of the multiplexed signals caused a wait to
// return.
type wakeReason int

const (
	wakeEndpoint wakeReason = iota
	wakeTimer
	wakeCancelled
)

// multiplex blocks until the endpoint is readable, the timer fires, or
// ctx is done — whichever happens first — with no spurious wakes. This
// is the engine's only suspension point (spec.md section 5); every
// other operation (send, parse, serialize, arm) is non-suspending.
func multiplex(ctx context.Context, tm *timer, ep Endpoint) wakeReason {
	select {
	case <-ep.Readable():
		return wakeEndpoint
	case <-tm.C():
		return wakeTimer
	case <-ctx.Done():
		return wakeCancelled
	}
}
