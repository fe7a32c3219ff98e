// Package audiomachine implements the three-state Audio Source Machine
// (spec.md §4.4): SRT, GRACE, BG. It only tracks the state and the edges
// between states — the audio-encode semantics for each state (draining
// which queue, zero-filling, etc.) live in internal/pacer, since that is
// where the queues the machine doesn't own are reachable.
package audiomachine

import "time"

// State is one of the three audio source states.
type State int

const (
	// BG is the initial state: audio is drawn from the background file.
	BG State = iota
	// GRACE is silence, entered on inbound loss, held for the grace period.
	GRACE
	// SRT is audio drawn from the inbound feed.
	SRT
)

func (s State) String() string {
	switch s {
	case BG:
		return "bg"
	case GRACE:
		return "grace"
	case SRT:
		return "srt"
	default:
		return "unknown"
	}
}

// Edge names the kind of transition that just occurred, so the caller
// knows which side effect to apply (it owns the queues and the status
// logger; the machine owns only the state).
type Edge int

const (
	// NoEdge means the state did not change this tick.
	NoEdge Edge = iota
	// EnteredSRT: BG or GRACE -> SRT. Side effect: reset Background Audio Queue.
	EnteredSRT
	// EnteredGrace: SRT -> GRACE. Side effect: emit srt_grace.
	EnteredGrace
	// EnteredBG: GRACE -> BG. Side effect: emit bg_audio_on.
	EnteredBG
)

// Machine is the three-state controller. Zero value starts in BG, which
// matches the spec's initial state, so New is a convenience rather than
// a requirement.
type Machine struct {
	state    State
	dropTime time.Time
	grace    time.Duration
}

// New returns a Machine starting in BG with the given grace period.
func New(grace time.Duration) *Machine {
	return &Machine{state: BG, grace: grace}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Advance drives the machine for one tick given whether the Shared Slot
// sample succeeded this tick, and returns the edge that occurred (if
// any).
func (m *Machine) Advance(useSRTVideo bool, now time.Time) Edge {
	switch m.state {
	case BG:
		if useSRTVideo {
			m.state = SRT
			return EnteredSRT
		}
	case GRACE:
		if useSRTVideo {
			m.state = SRT
			return EnteredSRT
		}
		if now.Sub(m.dropTime) > m.grace {
			m.state = BG
			return EnteredBG
		}
	case SRT:
		if !useSRTVideo {
			m.state = GRACE
			m.dropTime = now
			return EnteredGrace
		}
	}
	return NoEdge
}
