// ABOUTME: Fans engine outputs out to connected websocket clients
// ABOUTME: Coalesces beat/phase, sends every step, reports session state
package server

import (
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/internal/protocol"
	"github.com/Resonate-Protocol/linkclock-go/pkg/beatclock"
	"github.com/Resonate-Protocol/linkclock-go/pkg/link"
)

// PeerSource reports link connection state for session/state messages
type PeerSource interface {
	NumPeers() int
	IsConnected() bool
}

// Snapshot is the latest value of every output, for display
type Snapshot struct {
	Beat    float64
	Phase   float64
	Step    float64
	Tempo   float64
	Quantum float64
	Steps   int64
	Clients int
}

// Broadcaster implements beatclock.Outputs and beatclock.StateOutputs
type Broadcaster struct {
	clock        link.Clock
	peers        PeerSource
	beatInterval time.Duration

	mu        sync.RWMutex
	clients   map[string]*Client
	beat      float64
	phase     float64
	step      float64
	tempo     float64
	quantum   float64
	steps     int64
	lastBeat  uint64
	beatsSent bool
	dropped   int64
}

var (
	_ beatclock.Outputs      = (*Broadcaster)(nil)
	_ beatclock.StateOutputs = (*Broadcaster)(nil)
)

// NewBroadcaster creates a broadcaster. Beat messages go out at most once
// per beatInterval; zero sends one per tick.
func NewBroadcaster(clock link.Clock, peers PeerSource, beatInterval time.Duration) *Broadcaster {
	return &Broadcaster{
		clock:        clock,
		peers:        peers,
		beatInterval: beatInterval,
		clients:      make(map[string]*Client),
	}
}

// Add registers a client; it returns false if the ID is taken
func (b *Broadcaster) Add(c *Client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.clients[c.ID]; exists {
		return false
	}
	b.clients[c.ID] = c
	return true
}

// Remove unregisters a client
func (b *Broadcaster) Remove(id string) {
	b.mu.Lock()
	delete(b.clients, id)
	b.mu.Unlock()
}

// Clients returns the registered clients
func (b *Broadcaster) Clients() []*Client {
	b.mu.RLock()
	defer b.mu.RUnlock()

	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	return clients
}

// Beat records the beat output; it is sent together with the phase
func (b *Broadcaster) Beat(beat float64) {
	b.mu.Lock()
	b.beat = beat
	b.mu.Unlock()
}

// Phase records the phase output and sends clock/beat when due
func (b *Broadcaster) Phase(phase float64) {
	now := b.clock.Now()

	b.mu.Lock()
	b.phase = phase
	due := !b.beatsSent || b.beatInterval <= 0 ||
		now-b.lastBeat >= uint64(b.beatInterval.Microseconds())
	if due {
		b.lastBeat = now
		b.beatsSent = true
	}
	msg := protocol.Beat{Beat: b.beat, Phase: phase, HostTime: int64(now)}
	b.mu.Unlock()

	if due {
		b.broadcast(protocol.TypeBeat, msg)
	}
}

// Step sends clock/step to every client
func (b *Broadcaster) Step(step float64) {
	now := b.clock.Now()

	b.mu.Lock()
	b.step = step
	b.steps++
	b.mu.Unlock()

	b.broadcast(protocol.TypeStep, protocol.Step{Step: step, HostTime: int64(now)})
}

// Tempo records the session tempo; it is sent with the quantum
func (b *Broadcaster) Tempo(bpm float64) {
	b.mu.Lock()
	b.tempo = bpm
	b.mu.Unlock()
}

// Quantum records the quantum and sends session/state
func (b *Broadcaster) Quantum(quantum float64) {
	b.mu.Lock()
	b.quantum = quantum
	state := protocol.SessionState{Tempo: b.tempo, Quantum: quantum}
	b.mu.Unlock()

	if b.peers != nil {
		state.Peers = b.peers.NumPeers()
		state.Connected = b.peers.IsConnected()
	}

	b.broadcast(protocol.TypeSessionState, state)
}

// Snapshot returns the latest output values
func (b *Broadcaster) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Snapshot{
		Beat:    b.beat,
		Phase:   b.phase,
		Step:    b.step,
		Tempo:   b.tempo,
		Quantum: b.quantum,
		Steps:   b.steps,
		Clients: len(b.clients),
	}
}

// Dropped returns how many messages were dropped on full client buffers
func (b *Broadcaster) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// broadcast queues a message on every client without blocking
func (b *Broadcaster) broadcast(msgType string, payload interface{}) {
	msg := protocol.Message{Type: msgType, Payload: payload}

	var dropped int64
	for _, c := range b.Clients() {
		if !c.enqueue(msg) {
			dropped++
		}
	}

	if dropped > 0 {
		b.mu.Lock()
		b.dropped += dropped
		total := b.dropped
		b.mu.Unlock()

		// first drop, then once per hundred
		if total == dropped || total/100 != (total-dropped)/100 {
			log.Printf("Dropped %s for %d slow client(s) (total dropped: %d)", msgType, dropped, total)
		}
	}
}
