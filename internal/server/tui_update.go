// ABOUTME: TUI update helpers for server
// ABOUTME: Periodically pushes clock and client state to the TUI
package server

import (
	"math"
	"time"
)

const tuiRefresh = 100 * time.Millisecond

// tuiLoop refreshes the TUI until the server stops
func (s *Server) tuiLoop() {
	ticker := time.NewTicker(tuiRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.updateTUI()
		}
	}
}

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}

// status collects the current host state
func (s *Server) status() ServerStatus {
	b := s.host.Broadcaster

	clients := make([]ClientInfo, 0)
	for _, client := range b.Clients() {
		clients = append(clients, ClientInfo{
			Name:    client.Name,
			ID:      client.ID,
			Version: client.Version,
		})
	}

	return ServerStatus{
		Name:      s.config.Name,
		Port:      s.config.Port,
		Clock:     b.Snapshot(),
		Peers:     s.host.Session.NumPeers(),
		Connected: s.host.Session.IsConnected(),
		Enabled:   s.host.Session.IsEnabled(),
		NextBar:   s.untilNextBar(),
		Dropped:   b.Dropped(),
		Clients:   clients,
	}
}

// untilNextBar is the host time left before the session reaches the next
// quantum boundary
func (s *Server) untilNextBar() time.Duration {
	session := s.host.Session
	now := s.host.Clock.Now()

	q := session.Quantum()
	next := (math.Floor(session.BeatAtTime(now)/q) + 1) * q
	at := session.TimeAtBeat(next)
	if at <= now {
		return 0
	}
	return time.Duration(at-now) * time.Microsecond
}
