// ABOUTME: Beat/phase/step quantization engine
// ABOUTME: Applies queued tempo and quantum changes and detects step boundaries
package beatclock

import (
	"log"
	"math"

	"github.com/Resonate-Protocol/linkclock-go/pkg/link"
)

const (
	// resetEpsilon places the baseline just behind a re-anchored beat so the
	// first comparison after a reset always reports a step
	resetEpsilon = 1e-6

	// noPendingQuantum marks that no quantum change is queued
	noPendingQuantum = -1
)

// Engine converts oracle beat time into beat, phase and step outputs.
// It is not safe for concurrent use; drive it from a single goroutine
// (see Runner).
type Engine struct {
	oracle link.Oracle
	out    Outputs
	logger *log.Logger

	stepsPerBeat    float64
	currentBeatTime float64
	pendingQuantum  float64 // negative = none
	pendingTempo    float64 // 0 = none
}

// State is a snapshot of the engine's session state.
type State struct {
	StepsPerBeat    float64
	CurrentBeatTime float64
	PendingQuantum  float64
	PendingTempo    float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sends diagnostics to logger instead of the standard logger
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine. args are the optional creation arguments in order:
// steps per beat, initial beat time, initial quantum, initial tempo. The
// tempo is dropped with a warning when the oracle is already connected.
func New(oracle link.Oracle, out Outputs, args []float64, opts ...Option) *Engine {
	if out == nil {
		out = Discard
	}

	e := &Engine{
		oracle:          oracle,
		out:             out,
		logger:          log.Default(),
		stepsPerBeat:    1,
		currentBeatTime: 0,
		pendingQuantum:  oracle.Quantum(),
		pendingTempo:    0,
	}

	for _, opt := range opts {
		opt(e)
	}

	applyArgs(e.logger, "beatclock: Unexpected number of creation args: %d", args, []param{
		{name: "resolution", apply: func(v float64) { e.stepsPerBeat = v }},
		{name: "beat", apply: func(v float64) { e.currentBeatTime = v }},
		{name: "quantum", apply: func(v float64) { e.pendingQuantum = v }},
		{name: "tempo", apply: func(v float64) {
			if e.oracle.IsConnected() {
				e.logger.Printf("beatclock: Ignoring tempo parameter because Link is connected.")
				return
			}
			e.pendingTempo = v
		}},
	})

	return e
}

// SetTempo queues a tempo proposal for the next tick
func (e *Engine) SetTempo(bpm float64) {
	e.pendingTempo = bpm
}

// SetResolution sets the number of steps per beat
func (e *Engine) SetResolution(stepsPerBeat float64) {
	e.stepsPerBeat = stepsPerBeat
}

// Reset sets the beat time and queues a quantum change. With no args the
// beat time is 0 and the quantum is the oracle's current one; args[0]
// overrides the beat time, args[1] the quantum. Extra args are reported
// and ignored.
func (e *Engine) Reset(args ...float64) {
	e.currentBeatTime = 0
	e.pendingQuantum = e.oracle.Quantum()

	applyArgs(e.logger, "beatclock reset: Unexpected number of parameters: %d", args, []param{
		{name: "beat", apply: func(v float64) { e.currentBeatTime = v }},
		{name: "quantum", apply: func(v float64) { e.pendingQuantum = v }},
	})
}

// Tick samples the oracle at hostTime and emits beat, phase and, on a step
// boundary, step.
func (e *Engine) Tick(hostTime uint64) {
	if e.pendingTempo != 0 {
		e.oracle.ProposeTempo(e.pendingTempo, hostTime)
		e.pendingTempo = 0
	}

	prevBeatTime := e.currentBeatTime
	var currBeatTime float64
	if e.pendingQuantum >= 0 {
		e.oracle.SetQuantum(e.pendingQuantum)
		e.pendingQuantum = noPendingQuantum
		currBeatTime = e.oracle.ResetBeatTime(e.currentBeatTime, hostTime)
		prevBeatTime = currBeatTime - resetEpsilon
	} else {
		currBeatTime = e.oracle.BeatAtTime(hostTime)
	}
	e.out.Beat(currBeatTime)

	quantum := e.oracle.Quantum()
	currPhase := e.oracle.Phase(currBeatTime, quantum)
	e.out.Phase(currPhase)

	// Retrograde or stalled beat time: no state update, no step
	if !(currBeatTime > prevBeatTime) {
		return
	}

	e.currentBeatTime = currBeatTime
	prevPhase := e.oracle.Phase(prevBeatTime, quantum)
	prevStep := math.Floor(prevPhase * e.stepsPerBeat)
	currStep := math.Floor(currPhase * e.stepsPerBeat)
	if prevPhase-currPhase > quantum/2 || prevStep != currStep {
		e.out.Step(currStep)
	}
}

// State returns a snapshot of the session state
func (e *Engine) State() State {
	return State{
		StepsPerBeat:    e.stepsPerBeat,
		CurrentBeatTime: e.currentBeatTime,
		PendingQuantum:  e.pendingQuantum,
		PendingTempo:    e.pendingTempo,
	}
}

