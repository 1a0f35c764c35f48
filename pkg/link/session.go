// ABOUTME: In-process Link session timeline
// ABOUTME: Implements Oracle with tempo, beat origin and quantum on one host
package link

import (
	"log"
	"math"
	"sync"
)

const (
	// MinTempo and MaxTempo bound proposed tempos, same range as Link
	MinTempo = 20.0
	MaxTempo = 999.0

	microsPerMinute = 60e6
)

// Session is a local tempo timeline that satisfies Oracle.
type Session struct {
	mu sync.RWMutex

	// Timeline: beat at time t is beatOrigin + (t - timeOrigin) * tempo / 1min
	tempo      float64
	beatOrigin float64
	timeOrigin uint64

	quantum float64
	enabled bool
	peers   int

	onTempo func(bpm float64)
}

var _ Oracle = (*Session)(nil)

// NewSession creates a session at the given tempo and quantum.
// The timeline starts at beat 0 at host time 0.
func NewSession(tempo, quantum float64) *Session {
	if quantum <= 0 {
		quantum = 4
	}
	return &Session{
		tempo:   clampTempo(tempo),
		quantum: quantum,
		enabled: true,
	}
}

// OnTempoChange registers a callback fired after the tempo changes
func (s *Session) OnTempoChange(fn func(bpm float64)) {
	s.mu.Lock()
	s.onTempo = fn
	s.mu.Unlock()
}

// SetEnabled turns peer participation on or off
func (s *Session) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// IsEnabled reports whether peer participation is on
func (s *Session) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetPeerCount records how many other hosts share this session
func (s *Session) SetPeerCount(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	changed := s.peers != n
	s.peers = n
	s.mu.Unlock()

	if changed {
		log.Printf("Link peers: %d", n)
	}
}

// NumPeers returns the current peer count
func (s *Session) NumPeers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peers
}

// IsConnected reports whether the session is enabled and has peers
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && s.peers > 0
}

// ProposeTempo changes the tempo at atTime, keeping the beat at that time
func (s *Session) ProposeTempo(bpm float64, atTime uint64) {
	bpm = clampTempo(bpm)

	s.mu.Lock()
	if bpm == s.tempo {
		s.mu.Unlock()
		return
	}
	s.beatOrigin = s.beatAtTimeLocked(atTime)
	s.timeOrigin = atTime
	s.tempo = bpm
	cb := s.onTempo
	s.mu.Unlock()

	if cb != nil {
		cb(bpm)
	}
}

// Quantum returns the session quantum
func (s *Session) Quantum() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quantum
}

// SetQuantum sets the quantum; non-positive values are ignored
func (s *Session) SetQuantum(quantum float64) {
	if quantum <= 0 {
		log.Printf("Ignoring non-positive quantum: %v", quantum)
		return
	}
	s.mu.Lock()
	s.quantum = quantum
	s.mu.Unlock()
}

// ResetBeatTime re-anchors the timeline at atTime.
//
// When not connected the beat is forced: BeatAtTime(atTime) == beat.
// When connected the session phase wins, and the timeline lands on the
// largest beat <= the requested one whose phase matches the session.
func (s *Session) ResetBeatTime(beat float64, atTime uint64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := beat
	if s.enabled && s.peers > 0 {
		q := s.quantum
		sessionPhase := phase(s.beatAtTimeLocked(atTime), q)
		delta := phase(phase(beat, q)-sessionPhase, q)
		result = beat - delta
	}

	s.beatOrigin = result
	s.timeOrigin = atTime
	return result
}

// BeatAtTime returns the beat time at hostTime
func (s *Session) BeatAtTime(hostTime uint64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.beatAtTimeLocked(hostTime)
}

// TimeAtBeat returns the host time at which the timeline reaches beat.
// Beats before the timeline origin clamp to host time 0.
func (s *Session) TimeAtBeat(beat float64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dt := (beat - s.beatOrigin) * microsPerMinute / s.tempo
	t := float64(s.timeOrigin) + dt
	if t < 0 {
		return 0
	}
	return uint64(math.Round(t))
}

// Phase folds beat into [0, quantum)
func (s *Session) Phase(beat, quantum float64) float64 {
	return phase(beat, quantum)
}

// SessionTempo returns the current tempo
func (s *Session) SessionTempo() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tempo
}

func (s *Session) beatAtTimeLocked(t uint64) float64 {
	dt := float64(int64(t) - int64(s.timeOrigin))
	return s.beatOrigin + dt*s.tempo/microsPerMinute
}

func phase(beat, quantum float64) float64 {
	if quantum <= 0 {
		return 0
	}
	p := math.Mod(beat, quantum)
	if p < 0 {
		p += quantum
	}
	// -tiny + quantum rounds up to quantum
	if p >= quantum {
		p = 0
	}
	return p
}

func clampTempo(bpm float64) float64 {
	if math.IsNaN(bpm) || bpm < MinTempo {
		return MinTempo
	}
	if bpm > MaxTempo {
		return MaxTempo
	}
	return bpm
}
