// ABOUTME: WebSocket client for the linkclock monitor
// ABOUTME: Handles connection, handshake, commands and message routing
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/internal/discovery"
	"github.com/Resonate-Protocol/linkclock-go/internal/protocol"
	"github.com/gorilla/websocket"
)

const handshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	Version    int
	DeviceInfo protocol.DeviceInfo
}

// Client represents a WebSocket client
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex
	writeM sync.Mutex

	// Message channels
	Beats        chan protocol.Beat
	Steps        chan protocol.Step
	States       chan protocol.SessionState
	TimeSyncResp chan protocol.ServerTime
	Errors       chan protocol.ServerError

	server protocol.ServerHello

	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:       config,
		Beats:        make(chan protocol.Beat, 64),
		Steps:        make(chan protocol.Step, 64),
		States:       make(chan protocol.SessionState, 10),
		TimeSyncResp: make(chan protocol.ServerTime, 10),
		Errors:       make(chan protocol.ServerError, 10),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: discovery.Path}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake sends client/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := protocol.ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    c.config.Version,
		DeviceInfo: &c.config.DeviceInfo,
	}

	if err := c.send(protocol.TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}

	msgType, payload, err := protocol.Decode(data)
	if err != nil {
		return err
	}

	switch msgType {
	case protocol.TypeServerHello:
	case protocol.TypeServerError:
		var serr protocol.ServerError
		if err := protocol.DecodePayload(payload, &serr); err != nil {
			return err
		}
		return fmt.Errorf("server rejected hello: %s (%s)", serr.Message, serr.Error)
	default:
		return fmt.Errorf("expected server/hello, got %s", msgType)
	}

	var sh protocol.ServerHello
	if err := protocol.DecodePayload(payload, &sh); err != nil {
		return err
	}

	c.mu.Lock()
	c.server = sh
	c.mu.Unlock()

	log.Printf("Handshake complete with %s (ID: %s)", sh.Name, sh.ServerID)
	return nil
}

// send writes one envelope; websocket writes are serialized
func (c *Client) send(msgType string, payload interface{}) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}

	c.writeM.Lock()
	defer c.writeM.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Printf("Read error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			c.handleJSONMessage(data)
		}
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	msgType, payload, err := protocol.Decode(data)
	if err != nil {
		log.Printf("Failed to parse JSON message: %v", err)
		return
	}

	switch msgType {
	case protocol.TypeBeat:
		var beat protocol.Beat
		if decode(msgType, payload, &beat) {
			offer(c.Beats, beat)
		}

	case protocol.TypeStep:
		var step protocol.Step
		if decode(msgType, payload, &step) {
			offer(c.Steps, step)
		}

	case protocol.TypeSessionState:
		var state protocol.SessionState
		if decode(msgType, payload, &state) {
			deliver(c.ctx, c.States, state)
		}

	case protocol.TypeServerTime:
		var timeMsg protocol.ServerTime
		if decode(msgType, payload, &timeMsg) {
			deliver(c.ctx, c.TimeSyncResp, timeMsg)
		}

	case protocol.TypeServerError:
		var serr protocol.ServerError
		if decode(msgType, payload, &serr) {
			log.Printf("Server error: %s (%s)", serr.Message, serr.Error)
			offer(c.Errors, serr)
		}

	default:
		log.Printf("Unknown message type: %s", msgType)
	}
}

func decode(msgType string, payload json.RawMessage, v interface{}) bool {
	if err := protocol.DecodePayload(payload, v); err != nil {
		log.Printf("Bad %s payload: %v", msgType, err)
		return false
	}
	return true
}

// offer drops the value when nobody keeps up; clock events are superseded
// by the next one anyway
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// deliver blocks until the value is taken or the client closes
func deliver[T any](ctx context.Context, ch chan T, v T) {
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}

// SendCommand sends a client/command message
func (c *Client) SendCommand(command string, args ...float64) error {
	return c.send(protocol.TypeClientCommand, protocol.ClientCommand{
		Command: command,
		Args:    args,
	})
}

// SendTimeSync sends a client/time message
func (c *Client) SendTimeSync(t1 int64) error {
	return c.send(protocol.TypeClientTime, protocol.ClientTime{ClientTransmitted: t1})
}

// Server returns the server/hello received during the handshake
func (c *Client) Server() protocol.ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
