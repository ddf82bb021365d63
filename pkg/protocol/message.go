// Package protocol defines the WebSocket message types exchanged with
// the VR headset.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Headset → Bridge messages
	TypeGaze  MessageType = "gaze"  // Eye tracker rays
	TypeReply MessageType = "reply" // Answer to a query

	// Bridge → Headset messages
	TypeQuery     MessageType = "query"      // Request/reply query
	TypeEyeAngles MessageType = "eye_angles" // Eye image pose

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Query methods understood by the headset.
const (
	MethodIsLeftEyeActive        = "isLeftEyeActive"
	MethodIsRightEyeActive       = "isRightEyeActive"
	MethodGetInterCameraDistance = "getInterCameraDistance"
	MethodGetEyesZPosition       = "getEyesZPosition"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Headset → Bridge Message Types
// =============================================================================

// Vec3 is a point or direction in the eye tracker frame, meters.
type Vec3 [3]float64

// RayData is one eye's gaze ray.
type RayData struct {
	Origin    Vec3 `json:"origin"`
	Direction Vec3 `json:"direction"`
}

// GazeData carries both gaze rays. Valid is false when the tracker
// lost either eye.
type GazeData struct {
	Left  RayData `json:"left"`
	Right RayData `json:"right"`
	Valid bool    `json:"valid"`
}

// ReplyData answers a query. Value is a JSON bool or number depending
// on the method.
type ReplyData struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// =============================================================================
// Bridge → Headset Message Types
// =============================================================================

// QueryData asks the headset for a value.
type QueryData struct {
	ID     string `json:"id"`
	Method string `json:"method"`
}

// EyeAnglesData is the image pose of one eye, in radians.
type EyeAnglesData struct {
	Side      string  `json:"side"` // "left" or "right"
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
