// Package layer_swapper decides when the active imagery layer follows the
// globe clock. Update is pure: it takes the current state and one event and
// returns the next state plus the effects the caller must carry out.
package layer_swapper

import "time"

const (
	JumpThreshold    = 100 * time.Millisecond
	SettleThreshold  = 500 * time.Millisecond
	JumpSwapInterval = 300 * time.Millisecond
	MinSwapInterval  = 500 * time.Millisecond
)

type Phase int

const (
	Idle Phase = iota
	Tracking
	Jumping
)

func (p Phase) String() string {
	switch p {
	case Tracking:
		return "tracking"
	case Jumping:
		return "jumping"
	default:
		return "idle"
	}
}

type State struct {
	Phase    Phase
	LastTick time.Time
	LastSwap time.Time
	// Current is the most recent formatted clock time, swapped or not.
	Current     string
	LastApplied string
	// HasApplied separates "nothing applied" from a static layer's empty time.
	HasApplied bool
	// Held suppresses clock-driven swaps while a layer switch settles.
	Held bool
}

type Event interface {
	event()
}

// Tick is one globe clock tick: At is wall time, Time the formatted clock
// position.
type Tick struct {
	At   time.Time
	Time string
}

// Force swaps to Time right away, bypassing throttling and Held.
type Force struct {
	At   time.Time
	Time string
}

// Reset forgets the last applied time so the next eligible tick swaps.
type Reset struct{}

type Hold struct{}

type Release struct{}

func (Tick) event()    {}
func (Force) event()   {}
func (Reset) event()   {}
func (Hold) event()    {}
func (Release) event() {}

type Effect interface {
	effect()
}

// Swap replaces the active layer with the provider for Time.
type Swap struct {
	Time string
}

// CurrentTime reports a new formatted clock position for display.
type CurrentTime struct {
	Time string
}

func (Swap) effect()        {}
func (CurrentTime) effect() {}

func Update(s State, e Event) (State, []Effect) {
	switch e := e.(type) {
	case Tick:
		return tick(s, e)
	case Force:
		var effects []Effect
		if e.Time != s.Current {
			s.Current = e.Time
			effects = append(effects, CurrentTime{Time: e.Time})
		}
		if s.Phase == Idle {
			s.Phase = Tracking
		}
		return applied(s, e.At, e.Time), append(effects, Swap{Time: e.Time})
	case Reset:
		s.LastApplied = ""
		s.HasApplied = false
		return s, nil
	case Hold:
		s.Held = true
		return s, nil
	case Release:
		s.Held = false
		return s, nil
	}
	return s, nil
}

func tick(s State, e Tick) (State, []Effect) {
	var effects []Effect

	sinceTick := since(s.LastTick, e.At)
	switch {
	case sinceTick < JumpThreshold && s.Phase != Jumping:
		s.Phase = Jumping
	case sinceTick > SettleThreshold:
		s.Phase = Tracking
	case s.Phase == Idle:
		s.Phase = Tracking
	}
	s.LastTick = e.At

	if e.Time != s.Current {
		s.Current = e.Time
		effects = append(effects, CurrentTime{Time: e.Time})
	}

	if s.Held {
		return s, effects
	}

	sinceSwap := since(s.LastSwap, e.At)
	if s.Phase == Jumping && sinceSwap <= JumpSwapInterval {
		return s, effects
	}
	if s.HasApplied && e.Time == s.LastApplied {
		return s, effects
	}
	if sinceSwap < MinSwapInterval {
		return s, effects
	}

	return applied(s, e.At, e.Time), append(effects, Swap{Time: e.Time})
}

func applied(s State, at time.Time, timeString string) State {
	s.LastSwap = at
	s.LastApplied = timeString
	s.HasApplied = true
	return s
}

// since treats a zero start as long ago.
func since(from, to time.Time) time.Duration {
	if from.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return to.Sub(from)
}
