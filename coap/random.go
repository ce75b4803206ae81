package coap

import (
	"math/rand"
	"sync"
	"time"
)

// randomSource produces the per-exchange message-id and token. It is
// scoped to a single Client instance (not a process-wide global) so
// concurrent Clients to different peers never share mutable random
// state — see DESIGN.md's note on the C source's process-wide random
// state.
type randomSource struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func newRandomSource() *randomSource {
	return &randomSource{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// nextMessageID returns a uniformly-distributed 16 bit message-id.
func (r *randomSource) nextMessageID() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b [2]byte
	r.rand.Read(b[:])
	return uint16(b[0])<<8 | uint16(b[1])
}

// nextToken returns a fresh 4 byte token. 4 bytes is short enough to
// stay well inside the [0,8] wire limit while keeping collision odds
// over one exchange's lifetime negligible.
func (r *randomSource) nextToken() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok := make([]byte, 4)
	r.rand.Read(tok)
	return tok
}

// jitteredAckTimeout draws the initial ACK timeout uniformly from
// [base, base*factor), per spec.md section 4.5.
func jitteredAckTimeout(r *randomSource, base time.Duration, factor float64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := float64(base) * (factor - 1)
	jitter := r.rand.Float64() * span
	return base + time.Duration(jitter)
}
