// ABOUTME: Oracle interface consumed by the beat clock engine
// ABOUTME: Mirrors the Link calls used for tempo, quantum and beat time
package link

// Oracle is the tempo/phase authority shared with other peers.
// All calls are synchronous and assumed to succeed.
type Oracle interface {
	// IsConnected reports whether the session has peers.
	IsConnected() bool

	// ProposeTempo asks the session to change tempo at the given host time.
	ProposeTempo(bpm float64, atTime uint64)

	// Quantum returns the current quantum in beats.
	Quantum() float64

	// SetQuantum changes the quantum used for phase alignment.
	SetQuantum(quantum float64)

	// ResetBeatTime re-anchors the timeline so that atTime maps to beat
	// (or the nearest phase-compatible beat when connected) and returns
	// the resulting beat time.
	ResetBeatTime(beat float64, atTime uint64) float64

	// BeatAtTime returns the beat time at the given host time.
	BeatAtTime(hostTime uint64) float64

	// Phase returns beat folded into [0, quantum).
	Phase(beat, quantum float64) float64

	// SessionTempo returns the session tempo in beats per minute.
	SessionTempo() float64
}
