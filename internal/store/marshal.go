package store

import (
	"encoding/json"
	"fmt"

	"github.com/pledgeworks/pledge/internal/canon"
	"github.com/pledgeworks/pledge/internal/protocol"
)

// marshalOperation converts an operation to canonical JSON TEXT for storage.
func marshalOperation(op protocol.Operation) (string, error) {
	data, err := canon.MarshalStruct(op)
	if err != nil {
		return "", fmt.Errorf("marshal operation: %w", err)
	}
	return string(data), nil
}

// marshalEvent converts an event to canonical JSON TEXT for storage.
func marshalEvent(ev protocol.Event) (string, error) {
	data, err := canon.MarshalStruct(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(data), nil
}

func unmarshalOperation(data string) (protocol.Operation, error) {
	var op protocol.Operation
	if err := json.Unmarshal([]byte(data), &op); err != nil {
		return protocol.Operation{}, fmt.Errorf("unmarshal operation: %w", err)
	}
	return op, nil
}

func unmarshalEvent(data string) (protocol.Event, error) {
	var ev protocol.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return protocol.Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}
