// ABOUTME: MIDI sink for step outputs using gomidi
// ABOUTME: Sends a gated note per step on a named port, accented on step 0
package midiout

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/pkg/beatclock"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// Config holds MIDI output configuration
type Config struct {
	// Port is matched against output port names, exact first, then by
	// case-insensitive substring
	Port string

	// Channel 1-16
	Channel uint8

	Note           uint8
	AccentNote     uint8
	Velocity       uint8
	AccentVelocity uint8

	// Gate is how long each note is held
	Gate time.Duration
}

// DefaultConfig sends GM rim shot and side stick on channel 10
func DefaultConfig() Config {
	return Config{
		Channel:        10,
		Note:           37,
		AccentNote:     76,
		Velocity:       90,
		AccentVelocity: 127,
		Gate:           50 * time.Millisecond,
	}
}

// Output sends notes on step outputs. Beat and phase are ignored.
type Output struct {
	config Config
	send   func(gomidi.Message) error

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

var _ beatclock.Outputs = (*Output)(nil)

// Open finds the configured port and returns an output sending to it
func Open(config Config) (*Output, error) {
	ports := gomidi.GetOutPorts()

	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}

	idx := matchPort(names, config.Port)
	if idx < 0 {
		return nil, fmt.Errorf("no MIDI output matching %q (available: %s)", config.Port, strings.Join(names, ", "))
	}

	send, err := gomidi.SendTo(ports[idx])
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI port %s: %w", names[idx], err)
	}

	log.Printf("MIDI output: %s (channel %d)", names[idx], normalize(config).Channel)
	return newOutput(config, send), nil
}

// Ports lists the available output port names
func Ports() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

// CloseDriver releases the MIDI driver
func CloseDriver() {
	gomidi.CloseDriver()
}

func newOutput(config Config, send func(gomidi.Message) error) *Output {
	return &Output{
		config: normalize(config),
		send:   send,
		timers: make(map[*time.Timer]struct{}),
	}
}

// normalize fills zero fields from DefaultConfig
func normalize(c Config) Config {
	d := DefaultConfig()
	if c.Channel < 1 || c.Channel > 16 {
		c.Channel = d.Channel
	}
	if c.Note == 0 {
		c.Note = d.Note
	}
	if c.AccentNote == 0 {
		c.AccentNote = c.Note
	}
	if c.Velocity == 0 {
		c.Velocity = d.Velocity
	}
	if c.AccentVelocity == 0 {
		c.AccentVelocity = d.AccentVelocity
	}
	if c.Gate <= 0 {
		c.Gate = d.Gate
	}
	return c
}

// Beat implements beatclock.Outputs
func (o *Output) Beat(float64) {}

// Phase implements beatclock.Outputs
func (o *Output) Phase(float64) {}

// Step sends note on now and note off after the gate
func (o *Output) Step(step float64) {
	note, velocity := o.noteFor(step)
	ch := o.config.Channel - 1

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	if err := o.send(gomidi.NoteOn(ch, note, velocity)); err != nil {
		log.Printf("MIDI send failed: %v", err)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(o.config.Gate, func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		delete(o.timers, timer)
		if !o.closed {
			o.send(gomidi.NoteOff(ch, note))
		}
	})
	o.timers[timer] = struct{}{}
}

func (o *Output) noteFor(step float64) (note, velocity uint8) {
	if step == 0 {
		return o.config.AccentNote, o.config.AccentVelocity
	}
	return o.config.Note, o.config.Velocity
}

// Close releases held notes and stops sending
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true

	for t := range o.timers {
		t.Stop()
	}
	o.timers = nil

	ch := o.config.Channel - 1
	o.send(gomidi.NoteOff(ch, o.config.Note))
	if o.config.AccentNote != o.config.Note {
		o.send(gomidi.NoteOff(ch, o.config.AccentNote))
	}
}

// matchPort returns the index of the port matching want, or -1
func matchPort(names []string, want string) int {
	if want == "" {
		if len(names) > 0 {
			return 0
		}
		return -1
	}

	for i, n := range names {
		if n == want {
			return i
		}
	}

	lower := strings.ToLower(want)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), lower) {
			return i
		}
	}
	return -1
}
