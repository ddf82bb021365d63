package protocol

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewGazeMessage creates a gaze message
func NewGazeMessage(left, right RayData, valid bool) (*Message, error) {
	return NewMessage(TypeGaze, GazeData{Left: left, Right: right, Valid: valid})
}

// NewQueryMessage creates a query message
func NewQueryMessage(id, method string) (*Message, error) {
	return NewMessage(TypeQuery, QueryData{ID: id, Method: method})
}

// NewReplyMessage creates a reply carrying value
func NewReplyMessage(id string, value interface{}) (*Message, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply value: %w", err)
	}
	return NewMessage(TypeReply, ReplyData{ID: id, Value: raw})
}

// NewErrorReplyMessage creates a failed reply
func NewErrorReplyMessage(id, reason string) (*Message, error) {
	return NewMessage(TypeReply, ReplyData{ID: id, Error: reason})
}

// NewEyeAnglesMessage creates an eye image pose message
func NewEyeAnglesMessage(side string, azimuth, elevation float64) (*Message, error) {
	return NewMessage(TypeEyeAngles, EyeAnglesData{
		Side:      side,
		Azimuth:   azimuth,
		Elevation: elevation,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string, ts int64) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: ts,
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetGazeData extracts gaze data from a message
func (m *Message) GetGazeData() (*GazeData, error) {
	var data GazeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetQueryData extracts a query from a message
func (m *Message) GetQueryData() (*QueryData, error) {
	var data QueryData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetReplyData extracts a reply from a message
func (m *Message) GetReplyData() (*ReplyData, error) {
	var data ReplyData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetEyeAnglesData extracts eye angles from a message
func (m *Message) GetEyeAnglesData() (*EyeAnglesData, error) {
	var data EyeAnglesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Float decodes a numeric reply value
func (r *ReplyData) Float() (float64, error) {
	if r.Error != "" {
		return 0, fmt.Errorf("query %s failed: %s", r.ID, r.Error)
	}
	var v float64
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return 0, fmt.Errorf("query %s: numeric reply expected: %w", r.ID, err)
	}
	return v, nil
}

// Bool decodes a boolean reply value
func (r *ReplyData) Bool() (bool, error) {
	if r.Error != "" {
		return false, fmt.Errorf("query %s failed: %s", r.ID, r.Error)
	}
	var v bool
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return false, fmt.Errorf("query %s: boolean reply expected: %w", r.ID, err)
	}
	return v, nil
}
