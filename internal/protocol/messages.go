// ABOUTME: Linkclock wire protocol message type definitions
// ABOUTME: Defines structs for handshake, time sync, clock events and commands
package protocol

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeClientTime    = "client/time"
	TypeServerTime    = "server/time"
	TypeClientCommand = "client/command"
	TypeBeat          = "clock/beat"
	TypeStep          = "clock/step"
	TypeSessionState  = "session/state"
	TypeServerError   = "server/error"
)

// Commands accepted in client/command, named after the host control messages
const (
	CommandTempo      = "tempo"
	CommandResolution = "resolution"
	CommandReset      = "reset"
	CommandState      = "state"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake
type ClientHello struct {
	ClientID   string      `json:"client_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// ServerHello is the server's response to client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // Client timestamp in microseconds
}

// ServerTime is the response to client/time; server times are host time
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// ClientCommand carries a control message and its float arguments
type ClientCommand struct {
	Command string    `json:"command"`
	Args    []float64 `json:"args,omitempty"`
}

// Beat reports the beat and phase outputs at a host time
type Beat struct {
	Beat     float64 `json:"beat"`
	Phase    float64 `json:"phase"`
	HostTime int64   `json:"host_time"`
}

// Step reports a step boundary
type Step struct {
	Step     float64 `json:"step"`
	HostTime int64   `json:"host_time"`
}

// SessionState reports session tempo and quantum
type SessionState struct {
	Tempo     float64 `json:"tempo"`
	Quantum   float64 `json:"quantum"`
	Peers     int     `json:"peers"`
	Connected bool    `json:"connected"`
}

// ServerError reports a rejected request
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
