// ABOUTME: Link session package
// ABOUTME: Tempo/phase oracle interface and an in-process session timeline
// Package link provides the tempo and phase oracle consumed by the beat clock.
//
// Oracle is the small slice of the Ableton Link API the engine needs:
// tempo proposals, quantum, beat-at-time queries and phase. Session is an
// in-process implementation backed by a single local timeline.
//
// Host time is always an opaque count of microseconds from a monotonic
// Clock.
//
// Example:
//
//	clock := link.NewSystemClock()
//	session := link.NewSession(120, 4)
//	beat := session.BeatAtTime(clock.Now())
//	phase := session.Phase(beat, session.Quantum())
package link
