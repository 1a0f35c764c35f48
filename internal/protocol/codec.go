// ABOUTME: Envelope encoding helpers
// ABOUTME: Builds and decodes typed payloads inside the JSON envelope
package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps payload in an envelope and marshals it
func Encode(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msgType, err)
	}
	return data, nil
}

// Decode parses an envelope, leaving the payload raw
func Decode(data []byte) (string, json.RawMessage, error) {
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return env.Type, env.Payload, nil
}

// DecodePayload unmarshals a raw payload into v
func DecodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}
