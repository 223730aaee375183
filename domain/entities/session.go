package entities

import (
	"encoding/json"
	"time"
)

// VoiceStatus is the user-facing state of the voice conversation
type VoiceStatus string

const (
	VoiceStatusIdle      VoiceStatus = "idle"
	VoiceStatusPriming   VoiceStatus = "priming"
	VoiceStatusListening VoiceStatus = "listening"
	VoiceStatusSpeaking  VoiceStatus = "speaking"
	VoiceStatusReporting VoiceStatus = "reporting"
	VoiceStatusError     VoiceStatus = "error"
)

// Active reports whether a conversation is currently capturing audio
func (s VoiceStatus) Active() bool {
	return s == VoiceStatusListening || s == VoiceStatusSpeaking
}

// ConnectionState tracks the live session connection, independent of VoiceStatus
type ConnectionState string

const (
	ConnectionClosed     ConnectionState = "closed"
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
)

// Snapshot is a point-in-time view of the voice controller
type Snapshot struct {
	VoiceStatus       VoiceStatus     `json:"voice_status"`
	ConnectionState   ConnectionState `json:"connection_state"`
	InterviewComplete bool            `json:"interview_complete"`
	Report            json.RawMessage `json:"report,omitempty"`
	Error             string          `json:"error,omitempty"`
	SessionID         string          `json:"session_id,omitempty"`
}

// StatusEvent is emitted every time the snapshot changes
type StatusEvent struct {
	Snapshot
	Timestamp time.Time `json:"timestamp"`
}

// NewStatusEvent stamps a snapshot with the current time
func NewStatusEvent(s Snapshot) StatusEvent {
	return StatusEvent{Snapshot: s, Timestamp: time.Now()}
}
