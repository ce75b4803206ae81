package coap

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFiresAfterArm(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := newTimer(clock)
	tm.arm(5 * time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Millisecond)

	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerRearmDiscardsPreviousDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := newTimer(clock)
	tm.arm(5 * time.Millisecond)
	tm.arm(50 * time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(5 * time.Millisecond)

	select {
	case <-tm.C():
		t.Fatal("timer fired against the discarded, shorter deadline")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAckBackoffDoublesExactly(t *testing.T) {
	b := ackBackoff(100 * time.Millisecond)
	require.Equal(t, 100*time.Millisecond, b.NextBackOff())
	require.Equal(t, 200*time.Millisecond, b.NextBackOff())
	require.Equal(t, 400*time.Millisecond, b.NextBackOff())
	require.Equal(t, 800*time.Millisecond, b.NextBackOff())
}

func TestJitteredAckTimeoutStaysInRange(t *testing.T) {
	r := newRandomSource()
	base := 2 * time.Second
	for i := 0; i < 100; i++ {
		d := jitteredAckTimeout(r, base, 1.5)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, time.Duration(float64(base)*1.5))
	}
}
