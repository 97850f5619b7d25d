package layer_swapper

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func swaps(effects []Effect) []Swap {
	var out []Swap
	for _, e := range effects {
		if s, ok := e.(Swap); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestFirstTickSwaps(t *testing.T) {
	s, effects := Update(State{}, Tick{At: start, Time: "2024-03-01T12:00:00Z"})

	assert.Equal(t, Tracking, s.Phase)
	assert.Equal(t, []Effect{
		CurrentTime{Time: "2024-03-01T12:00:00Z"},
		Swap{Time: "2024-03-01T12:00:00Z"},
	}, effects)
	assert.Equal(t, "2024-03-01T12:00:00Z", s.LastApplied)
	assert.True(t, s.HasApplied)
}

func TestStaticLayerSwapsOnce(t *testing.T) {
	s, effects := Update(State{}, Tick{At: start, Time: ""})
	require.Len(t, swaps(effects), 1)

	s, effects = Update(s, Tick{At: start.Add(2 * time.Second), Time: ""})
	assert.Empty(t, swaps(effects))
	assert.True(t, s.HasApplied)
}

func TestSameTimeStringNeverSwapsTwice(t *testing.T) {
	var s State
	total := 0
	at := start
	for i := 0; i < 20; i++ {
		var effects []Effect
		s, effects = Update(s, Tick{At: at, Time: "2024-03-01T12:00:00Z"})
		total += len(swaps(effects))
		at = at.Add(time.Duration(i*97) * time.Millisecond)
	}
	assert.Equal(t, 1, total)
}

func TestJumpDetection(t *testing.T) {
	s, _ := Update(State{}, Tick{At: start, Time: "t0"})
	require.Equal(t, Tracking, s.Phase)

	s, _ = Update(s, Tick{At: start.Add(50 * time.Millisecond), Time: "t1"})
	assert.Equal(t, Jumping, s.Phase)

	// Stays jumping while ticks keep coming quickly or at moderate pace.
	s, _ = Update(s, Tick{At: start.Add(250 * time.Millisecond), Time: "t2"})
	assert.Equal(t, Jumping, s.Phase)

	s, _ = Update(s, Tick{At: start.Add(900 * time.Millisecond), Time: "t3"})
	assert.Equal(t, Tracking, s.Phase)
}

func TestJumpingSuppressesFastSwaps(t *testing.T) {
	var s State
	var swapTimes []time.Time

	// A fast scrub: a new time string every 20ms for two seconds.
	for i := 0; i <= 100; i++ {
		at := start.Add(time.Duration(i) * 20 * time.Millisecond)
		var effects []Effect
		s, effects = Update(s, Tick{At: at, Time: fmt.Sprintf("t%d", i)})
		if len(swaps(effects)) > 0 {
			swapTimes = append(swapTimes, at)
		}
	}

	assert.Equal(t, Jumping, s.Phase)
	require.Greater(t, len(swapTimes), 1)
	for i := 1; i < len(swapTimes); i++ {
		assert.Greater(t, swapTimes[i].Sub(swapTimes[i-1]), JumpSwapInterval)
	}
	// 2s of scrubbing at one swap per 500ms at most.
	assert.LessOrEqual(t, len(swapTimes), 5)
}

func TestMinSwapInterval(t *testing.T) {
	s, _ := Update(State{}, Tick{At: start, Time: "a"})

	s, effects := Update(s, Tick{At: start.Add(400 * time.Millisecond), Time: "b"})
	assert.Empty(t, swaps(effects))
	assert.Equal(t, "a", s.LastApplied)

	s, effects = Update(s, Tick{At: start.Add(1000 * time.Millisecond), Time: "b"})
	assert.Equal(t, []Swap{{Time: "b"}}, swaps(effects))
	assert.Equal(t, "b", s.LastApplied)
}

func TestCurrentTimeReportedEvenWhenSuppressed(t *testing.T) {
	s, _ := Update(State{}, Tick{At: start, Time: "a"})
	_, effects := Update(s, Tick{At: start.Add(10 * time.Millisecond), Time: "b"})

	assert.Equal(t, []Effect{CurrentTime{Time: "b"}}, effects)
}

func TestHoldSuppressesTicksButNotForce(t *testing.T) {
	s, _ := Update(State{}, Hold{})

	s, effects := Update(s, Tick{At: start, Time: "a"})
	assert.Empty(t, swaps(effects))
	assert.False(t, s.HasApplied)

	s, effects = Update(s, Force{At: start.Add(time.Millisecond), Time: "a"})
	assert.Equal(t, []Swap{{Time: "a"}}, swaps(effects))

	s, _ = Update(s, Release{})
	_, effects = Update(s, Tick{At: start.Add(2 * time.Second), Time: "b"})
	assert.Equal(t, []Swap{{Time: "b"}}, swaps(effects))
}

func TestResetAllowsSameTimeAgain(t *testing.T) {
	s, _ := Update(State{}, Tick{At: start, Time: "a"})
	s, _ = Update(s, Reset{})
	assert.False(t, s.HasApplied)

	_, effects := Update(s, Tick{At: start.Add(time.Second), Time: "a"})
	assert.Equal(t, []Swap{{Time: "a"}}, swaps(effects))
}

func TestForceIgnoresThrottle(t *testing.T) {
	s, _ := Update(State{}, Tick{At: start, Time: "a"})
	s, effects := Update(s, Force{At: start.Add(time.Millisecond), Time: "a"})

	assert.Equal(t, []Swap{{Time: "a"}}, swaps(effects))
	assert.Equal(t, start.Add(time.Millisecond), s.LastSwap)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "tracking", Tracking.String())
	assert.Equal(t, "jumping", Jumping.String())
}
