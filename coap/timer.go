package coap

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// timer is a one-shot, resettable deadline whose fire channel is read
// directly by the multiplex select alongside the endpoint's readable
// channel (spec.md section 4.3). Re-arming replaces any prior
// deadline; receiving from C drains the single pending fire event,
// which is this type's "acknowledge".
type timer struct {
	clock clockwork.Clock
	t     clockwork.Timer
}

func newTimer(clock clockwork.Clock) *timer {
	return &timer{clock: clock}
}

// arm sets the fire time to now + d, discarding any previous deadline.
func (tm *timer) arm(d time.Duration) {
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.t = tm.clock.NewTimer(d)
}

// C returns the channel that becomes readable once the armed deadline
// elapses. It must only be called after at least one arm call; before
// that there is no underlying timer and C panics.
func (tm *timer) C() <-chan time.Time {
	return tm.t.Chan()
}

// stop cancels any pending deadline, releasing the underlying
// clockwork timer.
func (tm *timer) stop() {
	if tm.t != nil {
		tm.t.Stop()
	}
}

// ackBackoff computes the ACK_WAIT retransmission sequence: an initial
// timeout jittered uniformly in [base, base*factor), then exact
// doublings for each retransmission. Only the initial draw carries
// randomization — RandomizationFactor is zero so every NextBackOff
// call after the first is a clean 2x of the previous value, preserving
// the initial jitter across doublings per spec.md section 4.5.
func ackBackoff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour // MaxRetransmit bounds the count; this just avoids the zero-value cap
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
