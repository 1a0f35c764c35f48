// ABOUTME: Tests for the MIDI step output
// ABOUTME: Records sent messages instead of opening a port
package midiout

import (
	"bytes"
	"sync"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

type recorder struct {
	mu   sync.Mutex
	msgs []gomidi.Message
}

func (r *recorder) send(msg gomidi.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []gomidi.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gomidi.Message(nil), r.msgs...)
}

func TestMatchPort(t *testing.T) {
	names := []string{"Midi Through Port-0", "IAC Driver Bus 1", "IAC Driver Bus 10"}

	tests := []struct {
		want string
		idx  int
	}{
		{"IAC Driver Bus 10", 2},
		{"iac driver", 1},
		{"through", 0},
		{"", 0},
		{"missing", -1},
	}

	for _, tt := range tests {
		if got := matchPort(names, tt.want); got != tt.idx {
			t.Errorf("matchPort(%q) = %d, want %d", tt.want, got, tt.idx)
		}
	}

	if got := matchPort(nil, ""); got != -1 {
		t.Errorf("expected -1 with no ports, got %d", got)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	c := normalize(Config{Note: 60})

	if c.Channel != 10 {
		t.Errorf("expected channel 10, got %d", c.Channel)
	}
	if c.AccentNote != 60 {
		t.Errorf("expected accent note to follow note, got %d", c.AccentNote)
	}
	if c.Gate != 50*time.Millisecond {
		t.Errorf("expected default gate, got %v", c.Gate)
	}
}

func TestStepSendsGatedNotes(t *testing.T) {
	rec := &recorder{}
	out := newOutput(Config{Channel: 1, Note: 60, AccentNote: 72, Velocity: 80, AccentVelocity: 120, Gate: time.Millisecond}, rec.send)

	out.Beat(0.5)
	out.Phase(0.5)
	out.Step(0)
	out.Step(3)

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	msgs := rec.snapshot()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if !bytes.Equal(msgs[0], gomidi.NoteOn(0, 72, 120)) {
		t.Errorf("expected accent note on first, got % X", []byte(msgs[0]))
	}
	if !bytes.Equal(msgs[1], gomidi.NoteOn(0, 60, 80)) {
		t.Errorf("expected normal note on second, got % X", []byte(msgs[1]))
	}

	offs := 0
	for _, m := range msgs[2:] {
		if bytes.Equal(m, gomidi.NoteOff(0, 72)) || bytes.Equal(m, gomidi.NoteOff(0, 60)) {
			offs++
		}
	}
	if offs != 2 {
		t.Errorf("expected two note offs, got % X", msgs[2:])
	}
}

func TestCloseReleasesNotes(t *testing.T) {
	rec := &recorder{}
	out := newOutput(Config{Channel: 2, Note: 60, AccentNote: 72, Gate: time.Hour}, rec.send)

	out.Step(1)
	out.Close()
	out.Close()
	out.Step(0)

	msgs := rec.snapshot()
	if len(msgs) != 3 {
		t.Fatalf("expected note on plus two releases, got %d messages", len(msgs))
	}
	if !bytes.Equal(msgs[1], gomidi.NoteOff(1, 60)) || !bytes.Equal(msgs[2], gomidi.NoteOff(1, 72)) {
		t.Errorf("unexpected release messages: % X", msgs[1:])
	}
}
