package livefeed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joshp123/hivewatch/internal/telemetry"
)

const pingType = "ping"

// Message is one decoded inbound frame: either a liveness ping or a reading.
type Message struct {
	Ping    bool
	Reading telemetry.Reading
}

// MalformedMessageError reports an inbound payload that could not be decoded.
type MalformedMessageError struct {
	Payload []byte
	Err     error
}

func (e *MalformedMessageError) Error() string {
	const maxShown = 64
	shown := e.Payload
	if len(shown) > maxShown {
		shown = shown[:maxShown]
	}
	return fmt.Sprintf("malformed live feed message %q: %v", shown, e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// DecodeMessage parses an inbound payload. Objects with type "ping" are
// liveness signals; every other object is a reading.
func DecodeMessage(payload []byte) (Message, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, &MalformedMessageError{Payload: payload, Err: fmt.Errorf("expected a JSON object")}
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return Message{}, &MalformedMessageError{Payload: payload, Err: err}
	}
	if envelope.Type == pingType {
		return Message{Ping: true}, nil
	}

	var reading telemetry.Reading
	if err := json.Unmarshal(trimmed, &reading); err != nil {
		return Message{}, &MalformedMessageError{Payload: payload, Err: err}
	}
	return Message{Reading: reading}, nil
}
