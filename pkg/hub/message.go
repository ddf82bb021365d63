// Package hub fans telemetry out to dashboard websocket clients using
// the channel-based broadcast pattern: one goroutine owns the client
// set, each client owns its connection writes.
package hub

import "encoding/json"

// Message is one telemetry frame sent to every client.
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// NewMessage encodes v under topic.
func NewMessage(topic string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: topic, Data: data}, nil
}

// Bytes returns the wire encoding.
func (m Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}
