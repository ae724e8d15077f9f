package model

import "encoding/json"

// FrameType distinguishes the kinds of text frames on the live channel.
// Both the client and the demo hub speak these frames.
type FrameType string

const (
	// FrameEvent is a server push.
	FrameEvent FrameType = "event"
	// FrameEmit is a client request that expects an ack with the same id.
	FrameEmit FrameType = "emit"
	// FrameAck answers an emit.
	FrameAck FrameType = "ack"
	// FrameError reports a frame the server could not handle.
	FrameError FrameType = "error"
)

const (
	EventMessageNew     = "messages:new"
	EventMessageUpdated = "messages:updated"
	EventMessageSend    = "messages:send"
)

// Frame is one JSON text message in either direction.
type Frame struct {
	Type  FrameType       `json:"type"`
	ID    uint64          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Ack is the payload of an ack frame.
type Ack struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SendAck is the typed ack of messages:send.
type SendAck struct {
	Success bool           `json:"success"`
	Data    *Message `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// EventFrame builds a server push frame.
func EventFrame(event string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameEvent, Event: event, Data: raw}, nil
}

// AckFrame builds the answer to the emit with the given id.
func AckFrame(id uint64, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameAck, ID: id, Data: raw}, nil
}
