// ABOUTME: YAML presets for the host daemon
// ABOUTME: Loads session, engine creation args and sink settings from a file
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Preset is a saved host setup
type Preset struct {
	Session Session `yaml:"session"`
	Engine  Engine  `yaml:"engine"`
	Click   Click   `yaml:"click"`
	MIDI    MIDI    `yaml:"midi"`
}

// Session seeds the local link session
type Session struct {
	Tempo   float64 `yaml:"tempo"`
	Quantum float64 `yaml:"quantum"`
}

// Engine holds the positional creation arguments by name
type Engine struct {
	Resolution *float64 `yaml:"resolution"`
	Beat       *float64 `yaml:"beat"`
	Quantum    *float64 `yaml:"quantum"`
	Tempo      *float64 `yaml:"tempo"`
}

// Click configures the audible click sink
type Click struct {
	Enabled bool   `yaml:"enabled"`
	Sample  string `yaml:"sample"`
	Volume  int    `yaml:"volume"`
}

// MIDI configures the MIDI sink
type MIDI struct {
	Enabled    bool          `yaml:"enabled"`
	Port       string        `yaml:"port"`
	Channel    uint8         `yaml:"channel"`
	Note       uint8         `yaml:"note"`
	AccentNote uint8         `yaml:"accent_note"`
	Gate       time.Duration `yaml:"gate"`
}

// CreationArgs returns the engine arguments in positional order. Fields are
// taken until the first missing one, the same way trailing arguments are
// simply left off.
func (e Engine) CreationArgs() []float64 {
	var args []float64
	for _, v := range []*float64{e.Resolution, e.Beat, e.Quantum, e.Tempo} {
		if v == nil {
			break
		}
		args = append(args, *v)
	}
	return args
}

// LoadPreset reads and validates a preset file. Unknown fields are errors.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset: %w", err)
	}

	var preset Preset
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&preset); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := preset.validate(); err != nil {
		return nil, fmt.Errorf("invalid preset: %w", err)
	}
	return &preset, nil
}

func (p *Preset) validate() error {
	if p.Session.Tempo < 0 {
		return fmt.Errorf("session tempo must not be negative")
	}
	if p.Session.Quantum < 0 {
		return fmt.Errorf("session quantum must not be negative")
	}
	if p.Click.Volume < 0 || p.Click.Volume > 100 {
		return fmt.Errorf("click volume must be 0-100, got %d", p.Click.Volume)
	}
	if p.MIDI.Channel > 16 {
		return fmt.Errorf("midi channel must be 1-16, got %d", p.MIDI.Channel)
	}
	if p.MIDI.Note > 127 || p.MIDI.AccentNote > 127 {
		return fmt.Errorf("midi notes must be 0-127")
	}

	// a gap means later fields would be silently dropped
	e := p.Engine
	fields := []*float64{e.Resolution, e.Beat, e.Quantum, e.Tempo}
	names := []string{"resolution", "beat", "quantum", "tempo"}
	for i := 1; i < len(fields); i++ {
		if fields[i] != nil && fields[i-1] == nil {
			return fmt.Errorf("engine %s needs %s to be set", names[i], names[i-1])
		}
	}
	return nil
}

// Startup is the session and engine setup the host starts with
type Startup struct {
	Tempo   float64
	Quantum float64
	Args    []float64
}

// ResolveStartup merges env defaults, an optional preset and the command
// line. set names the flags given explicitly; those beat the preset, which
// beats the env defaults. argsFlag is the raw -args value.
func ResolveStartup(host Host, preset *Preset, argsFlag string, set map[string]bool) (Startup, error) {
	s := Startup{Tempo: host.Tempo, Quantum: host.Quantum}

	if preset != nil {
		if preset.Session.Tempo > 0 && !set["tempo"] {
			s.Tempo = preset.Session.Tempo
		}
		if preset.Session.Quantum > 0 && !set["quantum"] {
			s.Quantum = preset.Session.Quantum
		}
		s.Args = preset.Engine.CreationArgs()
	}

	if argsFlag != "" {
		args, err := ParseArgs(argsFlag)
		if err != nil {
			return Startup{}, err
		}
		s.Args = args
	}

	return s, nil
}
