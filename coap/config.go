package coap

import "time"

// Config carries the timing and buffer constants that drive an
// exchange's retransmission and separate-response behavior. Values
// are construction-time, scoped to a single Client instead of shared
// package globals — keeping process-wide mutable state out of the
// engine.
type Config struct {
	// AckTimeout is the lower bound of the initial ACK timeout. The
	// actual initial timeout is drawn uniformly from
	// [AckTimeout, AckTimeout*AckRandomFactor).
	AckTimeout time.Duration

	// AckRandomFactor scales AckTimeout to get the upper bound of the
	// initial jitter range.
	AckRandomFactor float64

	// MaxRetransmit is the number of retransmissions attempted after
	// the first send before the exchange fails with Timeout.
	MaxRetransmit int

	// RespTimeout bounds how long the engine waits for a separate
	// response after an empty ACK.
	RespTimeout time.Duration

	// MaxBuffer is the largest datagram the engine will attempt to
	// send or parse.
	MaxBuffer int
}

// DefaultConfig returns the constants named in the wire/engine
// specification: 2s ACK timeout, 1.5x random factor, 4 retransmits,
// 30s separate-response timeout, 1024 byte buffer.
func DefaultConfig() Config {
	return Config{
		AckTimeout:      2 * time.Second,
		AckRandomFactor: 1.5,
		MaxRetransmit:   4,
		RespTimeout:     30 * time.Second,
		MaxBuffer:       1024,
	}
}
