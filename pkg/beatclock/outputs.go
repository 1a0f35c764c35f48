// ABOUTME: Output channels for beat clock events
// ABOUTME: Outputs and StateOutputs interfaces plus func adapters and fan-out
package beatclock

// Outputs receives the three engine event streams.
type Outputs interface {
	Beat(beat float64)
	Phase(phase float64)
	Step(step float64)
}

// StateOutputs receives the session tempo and quantum from a StateQuery.
type StateOutputs interface {
	Tempo(bpm float64)
	Quantum(quantum float64)
}

// OutputFuncs adapts plain functions to Outputs. Nil funcs are skipped.
type OutputFuncs struct {
	BeatFunc  func(float64)
	PhaseFunc func(float64)
	StepFunc  func(float64)
}

func (o OutputFuncs) Beat(beat float64) {
	if o.BeatFunc != nil {
		o.BeatFunc(beat)
	}
}

func (o OutputFuncs) Phase(phase float64) {
	if o.PhaseFunc != nil {
		o.PhaseFunc(phase)
	}
}

func (o OutputFuncs) Step(step float64) {
	if o.StepFunc != nil {
		o.StepFunc(step)
	}
}

// StateFuncs adapts plain functions to StateOutputs. Nil funcs are skipped.
type StateFuncs struct {
	TempoFunc   func(float64)
	QuantumFunc func(float64)
}

func (s StateFuncs) Tempo(bpm float64) {
	if s.TempoFunc != nil {
		s.TempoFunc(bpm)
	}
}

func (s StateFuncs) Quantum(quantum float64) {
	if s.QuantumFunc != nil {
		s.QuantumFunc(quantum)
	}
}

// Fanout forwards every event to each Outputs in order.
type Fanout []Outputs

func (f Fanout) Beat(beat float64) {
	for _, o := range f {
		o.Beat(beat)
	}
}

func (f Fanout) Phase(phase float64) {
	for _, o := range f {
		o.Phase(phase)
	}
}

func (f Fanout) Step(step float64) {
	for _, o := range f {
		o.Step(step)
	}
}

// Discard drops all events.
var Discard Outputs = OutputFuncs{}
