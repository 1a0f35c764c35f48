// ABOUTME: Linkclock host server
// ABOUTME: Manages WebSocket clients, time sync, control commands and discovery
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/internal/discovery"
	"github.com/Resonate-Protocol/linkclock-go/internal/protocol"
	"github.com/Resonate-Protocol/linkclock-go/internal/version"
	"github.com/Resonate-Protocol/linkclock-go/pkg/beatclock"
	"github.com/Resonate-Protocol/linkclock-go/pkg/link"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	clientBuffer  = 256
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool
	UseTUI     bool
}

// Host bundles the clock machinery the server exposes
type Host struct {
	Session     *link.Session
	Clock       link.Clock
	Runner      *beatclock.Runner
	Query       *beatclock.StateQuery
	Broadcaster *Broadcaster
}

// Server represents the linkclock host server
type Server struct {
	config   Config
	host     Host
	serverID string

	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	mdnsManager *discovery.Manager

	tui       *ServerTUI
	startTime time.Time

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected monitor
type Client struct {
	ID      string
	Name    string
	Version int
	Conn    *websocket.Conn

	sendChan chan interface{}

	mu     sync.Mutex
	closed bool
}

func newClient(id, name string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:       id,
		Name:     name,
		Conn:     conn,
		sendChan: make(chan interface{}, buffer),
	}
}

// enqueue queues msg without blocking; false means the buffer is full
func (c *Client) enqueue(msg interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		// going away, nothing to count
		return true
	}

	select {
	case c.sendChan <- msg:
		return true
	default:
		return false
	}
}

// close stops the writer; later enqueues are discarded
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.sendChan)
	}
}

// New creates a new server instance
func New(config Config, host Host) *Server {
	s := &Server{
		config:   config,
		host:     host,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// trusted local network only
				if origin := r.Header.Get("Origin"); origin != "" && config.Debug {
					log.Printf("[DEBUG] Accepting WebSocket from origin: %s", origin)
				}
				return true
			},
		},
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}

	s.mux.HandleFunc(discovery.Path, s.handleWebSocket)
	return s
}

// ID returns the server's instance ID
func (s *Server) ID() string {
	return s.serverID
}

// Handler returns the HTTP handler serving the websocket endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until Stop, a TUI quit, or an HTTP error
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(s.config.Name, s.config.Port); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tuiLoop()
		}()
	}

	log.Printf("Server starting: %s (ID: %s)", s.config.Name, s.serverID)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			InstanceID:  s.serverID,
			OnPeerCount: s.host.Session.SetPeerCount,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
		if err := s.mdnsManager.Browse(); err != nil {
			log.Printf("Failed to browse for peers: %v", err)
		}
	}

	s.host.Runner.Start()

	addr := fmt.Sprintf(":%d", s.config.Port)
	log.Printf("WebSocket server listening on %s%s", addr, discovery.Path)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		log.Printf("Server shutting down...")
	case <-tuiQuitChan:
		log.Printf("TUI quit requested, shutting down...")
		s.Stop()
	case err := <-errChan:
		log.Printf("HTTP server error: %v", err)
		serverErr = err
		s.Stop()
	}

	s.shutdown()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// shutdown stops the runner, disconnects clients and closes HTTP
func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}

	s.host.Runner.Stop()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// hijacked websocket connections are not closed by Shutdown
	for _, c := range s.host.Broadcaster.Clients() {
		c.Conn.Close()
	}

	s.wg.Wait()
	log.Printf("Server stopped cleanly")
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shutdown := s.isShutdown
	s.shutdownMu.RUnlock()
	if shutdown {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("New WebSocket connection from %s", r.RemoteAddr)

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	if s.config.Debug {
		log.Printf("[DEBUG] New connection, waiting for handshake")
	}

	hello, err := readHello(conn)
	if err != nil {
		log.Printf("Handshake failed: %v", err)
		return
	}

	log.Printf("Client hello: %s (ID: %s, version: %d)", hello.Name, hello.ClientID, hello.Version)

	client := newClient(hello.ClientID, hello.Name, conn, clientBuffer)
	client.Version = hello.Version

	if !s.host.Broadcaster.Add(client) {
		log.Printf("Client ID %s already connected, rejecting duplicate", hello.ClientID)
		data, err := protocol.Encode(protocol.TypeServerError, protocol.ServerError{
			Error:   "duplicate_client_id",
			Message: "Client ID already connected",
		})
		if err == nil {
			conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			conn.WriteMessage(websocket.TextMessage, data)
		}
		return
	}

	defer func() {
		s.host.Broadcaster.Remove(client.ID)
		client.close()
		log.Printf("Client disconnected: %s", client.Name)
	}()

	s.sendMessage(client, protocol.TypeServerHello, protocol.ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  version.ProtocolVersion,
	})
	s.sendMessage(client, protocol.TypeSessionState, s.sessionState())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		s.handleClientMessage(client, data)
	}
}

// readHello waits for and validates client/hello
func readHello(conn *websocket.Conn) (*protocol.ClientHello, error) {
	conn.SetReadDeadline(time.Now().Add(writeDeadline))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}

	msgType, payload, err := protocol.Decode(data)
	if err != nil {
		return nil, err
	}
	if msgType != protocol.TypeClientHello {
		return nil, fmt.Errorf("expected %s, got %s", protocol.TypeClientHello, msgType)
	}

	var hello protocol.ClientHello
	if err := protocol.DecodePayload(payload, &hello); err != nil {
		return nil, err
	}

	if hello.ClientID == "" {
		return nil, fmt.Errorf("client hello missing client_id")
	}
	if hello.Name == "" {
		return nil, fmt.Errorf("client hello missing name")
	}
	return &hello, nil
}

// clientWriter sends queued messages and keepalive pings
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error marshaling message: %v", err)
				continue
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing message to %s: %v", client.Name, err)
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// handleClientMessage processes messages from clients
func (s *Server) handleClientMessage(client *Client, data []byte) {
	msgType, payload, err := protocol.Decode(data)
	if err != nil {
		log.Printf("Error decoding message from %s: %v", client.Name, err)
		return
	}

	switch msgType {
	case protocol.TypeClientTime:
		s.handleTimeSync(client, payload)
	case protocol.TypeClientCommand:
		s.handleCommand(client, payload)
	default:
		log.Printf("Unknown message type: %s", msgType)
	}
}

// handleTimeSync answers client/time with host-clock timestamps
func (s *Server) handleTimeSync(client *Client, payload json.RawMessage) {
	serverRecv := int64(s.host.Clock.Now())

	var clientTime protocol.ClientTime
	if err := protocol.DecodePayload(payload, &clientTime); err != nil {
		log.Printf("Error parsing client time: %v", err)
		return
	}

	// queue time, not wire time
	serverSend := int64(s.host.Clock.Now())

	if s.config.Debug {
		log.Printf("[DEBUG] Time sync for %s: t1=%d, t2=%d, t3=%d",
			client.Name, clientTime.ClientTransmitted, serverRecv, serverSend)
	}

	s.sendMessage(client, protocol.TypeServerTime, protocol.ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    serverRecv,
		ServerTransmitted: serverSend,
	})
}

// handleCommand routes a control command onto the tick goroutine
func (s *Server) handleCommand(client *Client, payload json.RawMessage) {
	var cmd protocol.ClientCommand
	if err := protocol.DecodePayload(payload, &cmd); err != nil {
		s.sendError(client, "bad_command", err.Error())
		return
	}

	call, err := s.commandCall(cmd)
	if err != nil {
		s.sendError(client, "bad_command", err.Error())
		return
	}

	log.Printf("Command from %s: %s %v", client.Name, cmd.Command, cmd.Args)

	if err := s.host.Runner.Do(call); err != nil {
		s.sendError(client, "stopped", err.Error())
	}
}

// commandCall maps a command onto an engine call
func (s *Server) commandCall(cmd protocol.ClientCommand) (func(*beatclock.Engine), error) {
	switch cmd.Command {
	case protocol.CommandTempo:
		// a missing argument means no change, like an empty float inlet
		var bpm float64
		if len(cmd.Args) > 0 {
			bpm = cmd.Args[0]
		}
		return func(e *beatclock.Engine) { e.SetTempo(bpm) }, nil

	case protocol.CommandResolution:
		if len(cmd.Args) == 0 {
			return nil, fmt.Errorf("resolution needs one argument")
		}
		steps := cmd.Args[0]
		return func(e *beatclock.Engine) { e.SetResolution(steps) }, nil

	case protocol.CommandReset:
		args := append([]float64(nil), cmd.Args...)
		return func(e *beatclock.Engine) { e.Reset(args...) }, nil

	case protocol.CommandState:
		return func(*beatclock.Engine) { s.host.Query.Bang() }, nil
	}

	return nil, fmt.Errorf("unknown command %q", cmd.Command)
}

// sessionState describes the session for a single client
func (s *Server) sessionState() protocol.SessionState {
	session := s.host.Session
	return protocol.SessionState{
		Tempo:     session.SessionTempo(),
		Quantum:   session.Quantum(),
		Peers:     session.NumPeers(),
		Connected: session.IsConnected(),
	}
}

func (s *Server) sendError(client *Client, code, message string) {
	log.Printf("Rejecting request from %s: %s", client.Name, message)
	s.sendMessage(client, protocol.TypeServerError, protocol.ServerError{Error: code, Message: message})
}

// sendMessage queues a JSON message to one client
func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) {
	if !client.enqueue(protocol.Message{Type: msgType, Payload: payload}) {
		log.Printf("Dropped %s for %s: send buffer full", msgType, client.Name)
	}
}
