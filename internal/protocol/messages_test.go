// ABOUTME: Tests for linkclock protocol messages
// ABOUTME: Verifies envelope encoding and typed payload decoding
package protocol

import (
	"testing"
)

func TestEncodeDecodeCommand(t *testing.T) {
	data, err := Encode(TypeClientCommand, ClientCommand{
		Command: CommandReset,
		Args:    []float64{5, 2},
	})
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	msgType, raw, err := Decode(data)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if msgType != TypeClientCommand {
		t.Errorf("expected type %s, got %s", TypeClientCommand, msgType)
	}

	var cmd ClientCommand
	if err := DecodePayload(raw, &cmd); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if cmd.Command != CommandReset {
		t.Errorf("expected command reset, got %s", cmd.Command)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != 5 || cmd.Args[1] != 2 {
		t.Errorf("expected args [5 2], got %v", cmd.Args)
	}
}

func TestCommandWithoutArgs(t *testing.T) {
	data, err := Encode(TypeClientCommand, ClientCommand{Command: CommandState})
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	_, raw, err := Decode(data)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	var cmd ClientCommand
	if err := DecodePayload(raw, &cmd); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if cmd.Args != nil {
		t.Errorf("expected no args, got %v", cmd.Args)
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, _, err := Decode([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}

	var step Step
	if err := DecodePayload(nil, &step); err == nil {
		t.Error("expected error for empty payload")
	}
}
