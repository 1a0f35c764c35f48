// ABOUTME: Audible click sink for step outputs using oto
// ABOUTME: Plays a synthesized or MP3-loaded click per step, accented on step 0
package click

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sync"

	"github.com/Resonate-Protocol/linkclock-go/pkg/beatclock"
	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

const (
	// DefaultSampleRate is used for synthesized clicks
	DefaultSampleRate = 48000

	channels       = 2
	bytesPerSample = 2

	clickFreq  = 1000.0
	accentFreq = 1500.0
	clickLen   = 0.03
)

// Config holds click configuration
type Config struct {
	// SamplePath is an optional MP3 file used instead of the synthesized click
	SamplePath string

	// Volume 0-100
	Volume int
}

// Player plays clicks on step outputs. Beat and phase are ignored.
type Player struct {
	normal []byte
	accent []byte
	play   func(pcm []byte)

	otoCtx *oto.Context
	mu     sync.Mutex
	active []*oto.Player
}

var _ beatclock.Outputs = (*Player)(nil)

// New opens the audio device and prepares the click sounds
func New(config Config) (*Player, error) {
	sampleRate := DefaultSampleRate
	var sample []byte

	if config.SamplePath != "" {
		f, err := os.Open(config.SamplePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open click sample: %w", err)
		}
		defer f.Close()

		sample, sampleRate, err = DecodeMP3(f)
		if err != nil {
			return nil, err
		}
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p := &Player{otoCtx: ctx}
	p.play = p.playOto

	gain := volumeGain(config.Volume)
	if sample != nil {
		p.normal = Scale(sample, gain*0.6)
		p.accent = Scale(sample, gain)
	} else {
		p.normal = Synthesize(clickFreq, clickLen, sampleRate, gain*0.6)
		p.accent = Synthesize(accentFreq, clickLen, sampleRate, gain)
	}

	log.Printf("Click output initialized: %dHz", sampleRate)
	return p, nil
}

// Beat implements beatclock.Outputs
func (p *Player) Beat(float64) {}

// Phase implements beatclock.Outputs
func (p *Player) Phase(float64) {}

// Step plays the accent on step 0 and the normal click otherwise
func (p *Player) Step(step float64) {
	if step == 0 {
		p.play(p.accent)
		return
	}
	p.play(p.normal)
}

// playOto starts a voice without blocking the tick
func (p *Player) playOto(pcm []byte) {
	player := p.otoCtx.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	p.mu.Lock()
	defer p.mu.Unlock()

	// keep voices referenced until they finish
	live := p.active[:0]
	for _, v := range p.active {
		if v.IsPlaying() {
			live = append(live, v)
		} else {
			v.Close()
		}
	}
	p.active = append(live, player)
}

// Close stops all voices and suspends the device
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range p.active {
		v.Close()
	}
	p.active = nil

	if p.otoCtx != nil {
		p.otoCtx.Suspend()
	}
}

// Synthesize renders a decaying sine burst as interleaved stereo int16 LE
func Synthesize(freq, seconds float64, sampleRate int, gain float64) []byte {
	frames := int(seconds * float64(sampleRate))
	out := make([]byte, frames*channels*bytesPerSample)

	// decays to about 1% by the end
	decay := math.Log(100) / float64(frames)
	for i := 0; i < frames; i++ {
		env := math.Exp(-decay * float64(i))
		v := math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)) * env * gain
		s := uint16(int16(v * math.MaxInt16))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(out[(i*channels+c)*bytesPerSample:], s)
		}
	}
	return out
}

// DecodeMP3 reads a whole MP3 stream into stereo int16 LE PCM
func DecodeMP3(r io.Reader) ([]byte, int, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode error: %w", err)
	}
	return pcm, decoder.SampleRate(), nil
}

// Scale applies gain to int16 LE PCM, returning a new buffer
func Scale(pcm []byte, gain float64) []byte {
	out := make([]byte, len(pcm)-len(pcm)%bytesPerSample)
	for i := 0; i+1 < len(pcm); i += bytesPerSample {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) * gain
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(v)))
	}
	return out
}

// volumeGain maps 0-100 to a linear gain; out of range means full volume
func volumeGain(volume int) float64 {
	if volume <= 0 || volume > 100 {
		return 1.0
	}
	return float64(volume) / 100.0
}
