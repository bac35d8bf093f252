package events

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of frame pushed to observers.
type EventType string

const (
	Connected    EventType = "connected"
	Echo         EventType = "echo"
	SpinStart    EventType = "spin_start"
	SpinTick     EventType = "spin_tick"
	SpinComplete EventType = "spin_complete"
)

// Message is the two-field envelope every frame on the wire uses.
type Message struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

type ConnectedPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type EchoPayload struct {
	Received string `json:"received"`
}

type SpinStartPayload struct {
	SpinID  string   `json:"spin_id"`
	Options []string `json:"options"`
	Mode    string   `json:"mode"`
}

type SpinTickPayload struct {
	SpinID         string  `json:"spin_id"`
	HighlightIndex int     `json:"highlight_index"`
	CurrentOption  string  `json:"current_option"`
	Progress       float64 `json:"progress"`
}

type SpinCompletePayload struct {
	SpinID     string `json:"spin_id"`
	Result     string `json:"result"`
	DurationMs int64  `json:"duration_ms"`
}

// Encode serializes an event into a text frame.
func Encode(t EventType, payload interface{}) ([]byte, error) {
	b, err := json.Marshal(Message{Type: t, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}

// Decode parses a frame back into its envelope, leaving the payload raw.
func Decode(frame []byte) (EventType, json.RawMessage, error) {
	var m struct {
		Type    EventType       `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &m); err != nil {
		return "", nil, fmt.Errorf("decode frame: %w", err)
	}
	return m.Type, m.Payload, nil
}
