package model

import "encoding/json"

// Envelope is the wire wrapper of every REST response.
type Envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
}

// NewEnvelope builds a success envelope around data. A nil data leaves the
// field out of the encoded body.
func NewEnvelope(message string, data any) (Envelope, error) {
	env := Envelope{Success: true, Message: message}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}

// FailureEnvelope builds a logical failure envelope.
func FailureEnvelope(message, errorCode string) Envelope {
	return Envelope{Success: false, Message: message, ErrorCode: errorCode}
}
