// ABOUTME: Beat clock package
// ABOUTME: Quantizes Link beat time into beat, phase and step events
// Package beatclock turns the beat time reported by a link.Oracle into
// three event streams: beat position, phase within the quantum, and step
// boundaries at a configurable resolution.
//
// Engine holds the session state and applies queued tempo and quantum
// changes exactly once on the next Tick. Runner drives Tick from a host
// clock and serializes control calls with it. StateQuery reports the
// session tempo and quantum on demand.
//
// Example:
//
//	session := link.NewSession(120, 4)
//	engine := beatclock.New(session, outputs, []float64{4})
//	runner := beatclock.NewRunner(engine, link.NewSystemClock(), beatclock.RunnerConfig{})
//	runner.Start()
//	defer runner.Stop()
//	runner.Do(func(e *beatclock.Engine) { e.SetTempo(128) })
package beatclock
