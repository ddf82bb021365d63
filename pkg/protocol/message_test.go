package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "gaze message",
			msgType: TypeGaze,
			data:    GazeData{Left: RayData{Direction: Vec3{0, 0, 1}}, Valid: true},
			wantErr: false,
		},
		{
			name:    "query message",
			msgType: TypeQuery,
			data:    QueryData{ID: "q-1", Method: MethodIsLeftEyeActive},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeReply,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestGazeMessageRoundTrip(t *testing.T) {
	left := RayData{Origin: Vec3{0.032, 0, 0}, Direction: Vec3{0.1, -0.05, 1}}
	right := RayData{Origin: Vec3{-0.032, 0, 0}, Direction: Vec3{0.1, -0.05, 1}}

	msg, err := NewGazeMessage(left, right, true)
	if err != nil {
		t.Fatalf("NewGazeMessage() error = %v", err)
	}

	bytes, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(bytes)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeGaze {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeGaze)
	}

	gaze, err := parsed.GetGazeData()
	if err != nil {
		t.Fatalf("GetGazeData() error = %v", err)
	}
	if gaze.Left != left || gaze.Right != right {
		t.Errorf("rays = %+v / %+v, want %+v / %+v", gaze.Left, gaze.Right, left, right)
	}
	if !gaze.Valid {
		t.Error("Valid should be true")
	}
}

func TestReplyMessage(t *testing.T) {
	msg, err := NewReplyMessage("q-7", 0.064)
	if err != nil {
		t.Fatalf("NewReplyMessage() error = %v", err)
	}
	reply, err := msg.GetReplyData()
	if err != nil {
		t.Fatalf("GetReplyData() error = %v", err)
	}
	if reply.ID != "q-7" {
		t.Errorf("ID = %v, want q-7", reply.ID)
	}
	v, err := reply.Float()
	if err != nil || v != 0.064 {
		t.Errorf("Float() = %v, %v, want 0.064", v, err)
	}
	if _, err := reply.Bool(); err == nil {
		t.Error("Bool() on a numeric reply should fail")
	}

	msg, _ = NewReplyMessage("q-8", true)
	reply, _ = msg.GetReplyData()
	if b, err := reply.Bool(); err != nil || !b {
		t.Errorf("Bool() = %v, %v, want true", b, err)
	}
}

func TestErrorReplyMessage(t *testing.T) {
	msg, err := NewErrorReplyMessage("q-9", "eye tracker not calibrated")
	if err != nil {
		t.Fatalf("NewErrorReplyMessage() error = %v", err)
	}
	reply, err := msg.GetReplyData()
	if err != nil {
		t.Fatalf("GetReplyData() error = %v", err)
	}
	if _, err := reply.Float(); err == nil {
		t.Error("Float() should report the remote error")
	}
	if _, err := reply.Bool(); err == nil {
		t.Error("Bool() should report the remote error")
	}
}

func TestQueryMessage(t *testing.T) {
	msg, err := NewQueryMessage("q-1", MethodGetEyesZPosition)
	if err != nil {
		t.Fatalf("NewQueryMessage() error = %v", err)
	}
	if msg.Type != TypeQuery {
		t.Errorf("Type = %v, want %v", msg.Type, TypeQuery)
	}
	q, err := msg.GetQueryData()
	if err != nil {
		t.Fatalf("GetQueryData() error = %v", err)
	}
	if q.ID != "q-1" || q.Method != MethodGetEyesZPosition {
		t.Errorf("query = %+v", q)
	}
}

func TestEyeAnglesMessage(t *testing.T) {
	msg, err := NewEyeAnglesMessage("left", -0.07, 0.087)
	if err != nil {
		t.Fatalf("NewEyeAnglesMessage() error = %v", err)
	}
	if msg.Type != TypeEyeAngles {
		t.Errorf("Type = %v, want %v", msg.Type, TypeEyeAngles)
	}
	a, err := msg.GetEyeAnglesData()
	if err != nil {
		t.Fatalf("GetEyeAnglesData() error = %v", err)
	}
	if a.Side != "left" || a.Azimuth != -0.07 || a.Elevation != 0.087 {
		t.Errorf("angles = %+v", a)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123", time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	// Create pong response
	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   "not json",
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   "{}",
			wantErr: true,
		},
		{
			name:    "valid message",
			input:   `{"type":"ping","ts":1234567890}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	// Verify JSON structure matches the headset's parser
	msg, _ := NewEyeAnglesMessage("right", 0, 0)

	bytes, _ := msg.Bytes()

	var parsed map[string]interface{}
	if err := json.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}

	if parsed["type"] != "eye_angles" {
		t.Errorf("type = %v, want eye_angles", parsed["type"])
	}

	if _, ok := parsed["ts"]; !ok {
		t.Error("ts field should be present")
	}

	data, ok := parsed["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data field should be an object")
	}
	for _, key := range []string{"side", "azimuth", "elevation"} {
		if _, ok := data[key]; !ok {
			t.Errorf("data.%s should be present", key)
		}
	}
}

func BenchmarkParseGazeMessage(b *testing.B) {
	msg, _ := NewGazeMessage(
		RayData{Origin: Vec3{0.032, 0, 0}, Direction: Vec3{0, 0, 1}},
		RayData{Origin: Vec3{-0.032, 0, 0}, Direction: Vec3{0, 0, 1}},
		true,
	)
	bytes, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseMessage(bytes)
	}
}
