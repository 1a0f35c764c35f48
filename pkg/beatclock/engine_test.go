// ABOUTME: Tests for the beat clock engine
// ABOUTME: Tests tick ordering, step detection, pending changes and arg handling
package beatclock

import (
	"bytes"
	"log"
	"math"
	"strings"
	"testing"

	"github.com/Resonate-Protocol/linkclock-go/pkg/link"
)

// fakeOracle serves scripted beat times and records every write
type fakeOracle struct {
	connected bool
	quantum   float64
	tempo     float64
	beats     map[uint64]float64

	proposals   []proposal
	quanta      []float64
	resets      []reset
	beatQueries int
}

type proposal struct {
	bpm float64
	at  uint64
}

type reset struct {
	beat float64
	at   uint64
}

func newFakeOracle(quantum float64) *fakeOracle {
	return &fakeOracle{
		quantum: quantum,
		tempo:   120,
		beats:   make(map[uint64]float64),
	}
}

func (f *fakeOracle) IsConnected() bool { return f.connected }

func (f *fakeOracle) ProposeTempo(bpm float64, atTime uint64) {
	f.proposals = append(f.proposals, proposal{bpm, atTime})
	f.tempo = bpm
}

func (f *fakeOracle) Quantum() float64 { return f.quantum }

func (f *fakeOracle) SetQuantum(q float64) {
	f.quanta = append(f.quanta, q)
	f.quantum = q
}

func (f *fakeOracle) ResetBeatTime(beat float64, atTime uint64) float64 {
	f.resets = append(f.resets, reset{beat, atTime})
	return beat
}

func (f *fakeOracle) BeatAtTime(hostTime uint64) float64 {
	f.beatQueries++
	return f.beats[hostTime]
}

func (f *fakeOracle) Phase(beat, quantum float64) float64 {
	if quantum <= 0 {
		return 0
	}
	p := math.Mod(beat, quantum)
	if p < 0 {
		p += quantum
	}
	if p >= quantum {
		p = 0
	}
	return p
}

func (f *fakeOracle) SessionTempo() float64 { return f.tempo }

// recorder captures engine outputs
type recorder struct {
	beats  []float64
	phases []float64
	steps  []float64
}

func (r *recorder) Beat(v float64)  { r.beats = append(r.beats, v) }
func (r *recorder) Phase(v float64) { r.phases = append(r.phases, v) }
func (r *recorder) Step(v float64)  { r.steps = append(r.steps, v) }

func quietLogger(buf *bytes.Buffer) Option {
	return WithLogger(log.New(buf, "", 0))
}

func TestNewDefaults(t *testing.T) {
	oracle := newFakeOracle(4)
	e := New(oracle, nil, nil)

	st := e.State()
	if st.StepsPerBeat != 1 {
		t.Errorf("expected default resolution 1, got %v", st.StepsPerBeat)
	}
	if st.CurrentBeatTime != 0 {
		t.Errorf("expected beat time 0, got %v", st.CurrentBeatTime)
	}
	if st.PendingQuantum != 4 {
		t.Errorf("expected pending quantum from oracle (4), got %v", st.PendingQuantum)
	}
	if st.PendingTempo != 0 {
		t.Errorf("expected no pending tempo, got %v", st.PendingTempo)
	}
}

func TestNewCreationArgs(t *testing.T) {
	tests := []struct {
		name string
		args []float64
		want State
		warn bool
	}{
		{"none", nil, State{1, 0, 4, 0}, false},
		{"resolution", []float64{4}, State{4, 0, 4, 0}, false},
		{"beat", []float64{4, 2.5}, State{4, 2.5, 4, 0}, false},
		{"quantum", []float64{4, 2.5, 3}, State{4, 2.5, 3, 0}, false},
		{"tempo", []float64{4, 2.5, 3, 140}, State{4, 2.5, 3, 140}, false},
		{"extra", []float64{4, 2.5, 3, 140, 9}, State{4, 2.5, 3, 140}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := New(newFakeOracle(4), nil, tt.args, quietLogger(&buf))

			if got := e.State(); got != tt.want {
				t.Errorf("expected state %+v, got %+v", tt.want, got)
			}

			warned := strings.Contains(buf.String(), "Unexpected number of creation args: 5")
			if warned != tt.warn {
				t.Errorf("expected warning=%v, log was %q", tt.warn, buf.String())
			}
		})
	}
}

func TestNewIgnoresTempoWhenConnected(t *testing.T) {
	oracle := newFakeOracle(4)
	oracle.connected = true

	var buf bytes.Buffer
	e := New(oracle, nil, []float64{2, 1, 4, 150}, quietLogger(&buf))

	if e.State().PendingTempo != 0 {
		t.Errorf("expected tempo arg ignored while connected, got %v", e.State().PendingTempo)
	}
	if !strings.Contains(buf.String(), "Ignoring tempo parameter") {
		t.Errorf("expected warning about ignored tempo, got %q", buf.String())
	}
	if e.State().StepsPerBeat != 2 || e.State().CurrentBeatTime != 1 {
		t.Errorf("expected earlier args still applied, got %+v", e.State())
	}
}

func TestSetTempoProposesOnce(t *testing.T) {
	oracle := newFakeOracle(4)
	e := New(oracle, nil, nil)

	e.SetTempo(120)
	e.Tick(1000)

	if len(oracle.proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(oracle.proposals))
	}
	if oracle.proposals[0] != (proposal{120, 1000}) {
		t.Errorf("expected proposal {120 1000}, got %+v", oracle.proposals[0])
	}
	if e.State().PendingTempo != 0 {
		t.Errorf("expected pending tempo cleared, got %v", e.State().PendingTempo)
	}

	e.Tick(2000)
	if len(oracle.proposals) != 1 {
		t.Errorf("expected no further proposal, got %d", len(oracle.proposals))
	}
}

func TestSetTempoOverwritesPending(t *testing.T) {
	oracle := newFakeOracle(4)
	e := New(oracle, nil, nil)

	e.SetTempo(100)
	e.SetTempo(90)
	e.Tick(10)

	if len(oracle.proposals) != 1 || oracle.proposals[0].bpm != 90 {
		t.Errorf("expected single proposal of 90, got %+v", oracle.proposals)
	}
}

func TestFirstTickAppliesQuantumAndReanchors(t *testing.T) {
	oracle := newFakeOracle(4)
	rec := &recorder{}
	e := New(oracle, rec, nil)

	e.Tick(500)

	if len(oracle.quanta) != 1 || oracle.quanta[0] != 4 {
		t.Errorf("expected quantum 4 pushed once, got %v", oracle.quanta)
	}
	if len(oracle.resets) != 1 || oracle.resets[0] != (reset{0, 500}) {
		t.Errorf("expected reset to beat 0 at 500, got %+v", oracle.resets)
	}
	if oracle.beatQueries != 0 {
		t.Errorf("expected no beat query on reset tick, got %d", oracle.beatQueries)
	}
	if e.State().PendingQuantum >= 0 {
		t.Errorf("expected pending quantum cleared, got %v", e.State().PendingQuantum)
	}
	if len(rec.beats) != 1 || len(rec.phases) != 1 {
		t.Errorf("expected one beat and one phase, got %d/%d", len(rec.beats), len(rec.phases))
	}
	// phase 0 vs phase 4-1e-6: a wrap, so a step fires
	if len(rec.steps) != 1 || rec.steps[0] != 0 {
		t.Errorf("expected step 0 after reset, got %v", rec.steps)
	}
}

func TestResetThenTick(t *testing.T) {
	oracle := newFakeOracle(4)
	rec := &recorder{}
	e := New(oracle, rec, nil)
	e.Tick(0)
	oracle.quanta = nil
	oracle.resets = nil
	rec.steps = nil

	e.Reset(5.0, 2.0)
	e.Tick(100)

	if len(oracle.quanta) != 1 || oracle.quanta[0] != 2.0 {
		t.Errorf("expected quantum 2 pushed, got %v", oracle.quanta)
	}
	if len(oracle.resets) != 1 || oracle.resets[0] != (reset{5.0, 100}) {
		t.Errorf("expected reset to beat 5 at 100, got %+v", oracle.resets)
	}
	if got := rec.beats[len(rec.beats)-1]; got != 5.0 {
		t.Errorf("expected beat 5 emitted, got %v", got)
	}
	// prev = 5 - 1e-6: phase 0.999999 -> step 0, phase 1.0 -> step 1
	if len(rec.steps) != 1 || rec.steps[0] != 1 {
		t.Errorf("expected forced step 1, got %v", rec.steps)
	}
	if e.State().CurrentBeatTime != 5.0 {
		t.Errorf("expected current beat 5, got %v", e.State().CurrentBeatTime)
	}
}

func TestResetArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []float64
		wantBeat    float64
		wantQuantum float64
		warn        bool
	}{
		{"none", nil, 0, 4, false},
		{"beat", []float64{3}, 3, 4, false},
		{"both", []float64{3, 2}, 3, 2, false},
		{"extra", []float64{3, 2, 7}, 3, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := New(newFakeOracle(4), nil, []float64{1, 9, 6}, quietLogger(&buf))

			e.Reset(tt.args...)

			st := e.State()
			if st.CurrentBeatTime != tt.wantBeat {
				t.Errorf("expected beat %v, got %v", tt.wantBeat, st.CurrentBeatTime)
			}
			if st.PendingQuantum != tt.wantQuantum {
				t.Errorf("expected quantum %v, got %v", tt.wantQuantum, st.PendingQuantum)
			}
			warned := strings.Contains(buf.String(), "reset: Unexpected number of parameters: 3")
			if warned != tt.warn {
				t.Errorf("expected warning=%v, log was %q", tt.warn, buf.String())
			}
		})
	}
}

func TestStepEmission(t *testing.T) {
	oracle := newFakeOracle(4)
	rec := &recorder{}
	e := New(oracle, rec, []float64{4})
	e.Tick(0) // reset tick at beat 0
	rec.steps = nil

	// quarter-beat steps
	script := []struct {
		at   uint64
		beat float64
		step bool
	}{
		{1, 0.1, false},
		{2, 0.2, false},
		{3, 0.26, true},  // step 1
		{4, 0.3, false},
		{5, 0.3, false},  // stalled
		{6, 0.29, false}, // retrograde
		{7, 0.51, true},  // step 2
		{8, 1.0, true},   // phase 1.0 -> step 4
	}

	for _, s := range script {
		oracle.beats[s.at] = s.beat
	}

	for _, s := range script {
		before := len(rec.steps)
		e.Tick(s.at)
		got := len(rec.steps) > before
		if got != s.step {
			t.Errorf("tick at beat %v: expected step=%v, got %v", s.beat, s.step, got)
		}
	}

	want := []float64{1, 2, 4}
	if len(rec.steps) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, rec.steps)
	}
	for i := range want {
		if rec.steps[i] != want[i] {
			t.Errorf("step %d: expected %v, got %v", i, want[i], rec.steps[i])
		}
	}

	// beat and phase are emitted every tick
	if len(rec.beats) != len(script)+1 || len(rec.phases) != len(script)+1 {
		t.Errorf("expected beat/phase every tick, got %d/%d", len(rec.beats), len(rec.phases))
	}
}

func TestRetrogradeDoesNotUpdateState(t *testing.T) {
	oracle := newFakeOracle(4)
	e := New(oracle, nil, nil)
	e.Tick(0)

	oracle.beats[1] = 2.0
	oracle.beats[2] = 1.5
	e.Tick(1)
	e.Tick(2)

	if e.State().CurrentBeatTime != 2.0 {
		t.Errorf("expected beat time to stay at 2.0, got %v", e.State().CurrentBeatTime)
	}
}

func TestPhaseWrapEmitsStep(t *testing.T) {
	oracle := newFakeOracle(4)
	rec := &recorder{}
	// step index stays 0 for the whole cycle, only the wrap can fire
	e := New(oracle, rec, []float64{0.1})
	e.Tick(0)
	rec.steps = nil

	oracle.beats[1] = 3.9
	oracle.beats[2] = 4.1
	e.Tick(1)
	e.Tick(2)

	if len(rec.steps) != 1 || rec.steps[0] != 0 {
		t.Errorf("expected one step at the cycle wrap, got %v", rec.steps)
	}
}

func TestBeatsNonDecreasingWhenStored(t *testing.T) {
	session := link.NewSession(120, 4)
	clock := link.NewManualClock(0)
	var stored []float64
	e := New(session, nil, []float64{4})

	for i := 0; i < 200; i++ {
		e.Tick(clock.Now())
		stored = append(stored, e.State().CurrentBeatTime)
		clock.Set(clock.Now() + 7919)
	}

	for i := 1; i < len(stored); i++ {
		if stored[i] < stored[i-1] {
			t.Fatalf("beat time went backwards at %d: %v -> %v", i, stored[i-1], stored[i])
		}
	}
}

func TestPhaseOutputInRange(t *testing.T) {
	session := link.NewSession(133, 3)
	clock := link.NewManualClock(0)
	rec := &recorder{}
	e := New(session, rec, []float64{4, -2.5})

	for i := 0; i < 500; i++ {
		e.Tick(clock.Now())
		clock.Set(clock.Now() + 12345)
	}

	for _, p := range rec.phases {
		if p < 0 || p >= 3 || math.IsNaN(p) {
			t.Fatalf("phase %v outside [0, 3)", p)
		}
	}
}

func TestStepCountMatchesResolution(t *testing.T) {
	session := link.NewSession(120, 4)
	clock := link.NewManualClock(0)
	rec := &recorder{}
	e := New(session, rec, []float64{4})

	// 2 beats at 1ms ticks; 120 bpm = 500ms per beat
	for i := 0; i <= 1000; i++ {
		e.Tick(clock.Now())
		clock.Set(clock.Now() + 1000)
	}

	// initial reset step plus 8 boundaries over 2 beats
	if len(rec.steps) != 9 {
		t.Errorf("expected 9 steps, got %d: %v", len(rec.steps), rec.steps)
	}
}

func TestStateQueryOrder(t *testing.T) {
	oracle := newFakeOracle(3)
	oracle.tempo = 97

	var order []string
	var tempo, quantum float64
	q := NewStateQuery(oracle, StateFuncs{
		TempoFunc: func(v float64) {
			order = append(order, "tempo")
			tempo = v
		},
		QuantumFunc: func(v float64) {
			order = append(order, "quantum")
			quantum = v
		},
	})

	q.Bang()

	if len(order) != 2 || order[0] != "tempo" || order[1] != "quantum" {
		t.Errorf("expected tempo then quantum, got %v", order)
	}
	if tempo != 97 || quantum != 3 {
		t.Errorf("expected 97/3, got %v/%v", tempo, quantum)
	}
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := Fanout{a, b}

	f.Beat(1)
	f.Phase(2)
	f.Step(3)

	for _, r := range []*recorder{a, b} {
		if len(r.beats) != 1 || len(r.phases) != 1 || len(r.steps) != 1 {
			t.Errorf("expected one of each event, got %+v", r)
		}
	}
}
