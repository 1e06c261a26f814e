package transport

import (
	"encoding/json"
	"fmt"

	"github.com/doeshing/extscan-go/internal/domain"
)

// MessageType is the type of a host WebSocket message.
type MessageType string

const (
	// Host -> monitor
	TypeStart   MessageType = "start"   // begin monitoring an extension
	TypeStop    MessageType = "stop"    // end monitoring an extension
	TypeEvent   MessageType = "event"   // one live behavior event
	TypeResults MessageType = "results" // request (and response) for session results
	TypePing    MessageType = "ping"    // keep-alive

	// Monitor -> host
	TypeAck   MessageType = "ack"
	TypeError MessageType = "error"
	TypePong  MessageType = "pong"
)

// Message is the envelope of every WebSocket frame.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionPayload addresses one extension.
type SessionPayload struct {
	ExtensionID string `json:"extensionId"`
}

// AckPayload confirms a session command.
type AckPayload struct {
	ExtensionID string      `json:"extensionId"`
	Action      MessageType `json:"action"`
	Monitored   bool        `json:"monitored"`
	Available   bool        `json:"available"`
}

// ResultsPayload carries session results; Results is null for untracked extensions.
type ResultsPayload struct {
	ExtensionID string                             `json:"extensionId"`
	Results     *domain.ExtensionMonitoringResults `json:"results"`
}

// ErrorPayload describes a rejected frame.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func newMessage(t MessageType, payload interface{}) Message {
	if payload == nil {
		return Message{Type: t}
	}
	data, _ := json.Marshal(payload)
	return Message{Type: t, Payload: data}
}

// NewAckMessage builds an ack for a start or stop command.
func NewAckMessage(extensionID string, action MessageType, monitored, available bool) Message {
	return newMessage(TypeAck, AckPayload{ExtensionID: extensionID, Action: action, Monitored: monitored, Available: available})
}

// NewResultsMessage builds a results reply.
func NewResultsMessage(extensionID string, results *domain.ExtensionMonitoringResults) Message {
	return newMessage(TypeResults, ResultsPayload{ExtensionID: extensionID, Results: results})
}

// NewErrorMessage builds an error reply.
func NewErrorMessage(code, message string, err error) Message {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return newMessage(TypeError, ErrorPayload{Message: message, Code: code})
}

// ParseSessionPayload extracts the extension id from a session message.
func ParseSessionPayload(msg Message) (SessionPayload, error) {
	var payload SessionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return SessionPayload{}, fmt.Errorf("parse session payload: %w", err)
	}
	if payload.ExtensionID == "" {
		return SessionPayload{}, fmt.Errorf("parse session payload: extensionId is required")
	}
	return payload, nil
}

// ParseEventPayload extracts a behavior event.
func ParseEventPayload(msg Message) (domain.BehaviorEvent, error) {
	var ev domain.BehaviorEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return domain.BehaviorEvent{}, fmt.Errorf("parse event payload: %w", err)
	}
	if ev.ExtensionID == "" {
		return domain.BehaviorEvent{}, fmt.Errorf("parse event payload: extensionId is required")
	}
	return ev, nil
}
