// Package events is the line-oriented channel to the host process. Messages are JSON objects,
// one per line, or bare tokens in the minimal protocol.
package events

import (
	"encoding/json"
	"time"
)

// Message types.
const (
	TypeStatus     = "status"
	TypeHeartbeat  = "heartbeat"
	TypeWake       = "wake_word_detected"
	TypeConfidence = "confidence_report"
	TypeError      = "error"
)

// Status milestones, in the order a run emits them.
const (
	StatusStarting      = "starting"
	StatusInitializing  = "initializing"
	StatusModelLoaded   = "model_loaded"
	StatusStartingAudio = "starting_audio"
	StatusListening     = "listening"
	StatusStopped       = "stopped"
)

// TimestampLayout is ISO-8601 local time with microseconds.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Message is one event. Data is one of the payload types below.
type Message struct {
	Type      string
	Timestamp time.Time
	Data      any
}

type wireMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:      m.Type,
		Timestamp: m.Timestamp.Format(TimestampLayout),
		Data:      m.Data,
	})
}

// StatusData reports a lifecycle milestone. Details is never nil.
type StatusData struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

// HeartbeatData is the periodic liveness report.
type HeartbeatData struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	DetectionsCount int64   `json:"detections_count"`
	AvgConfidence   float64 `json:"avg_confidence"`
}

// WakeData describes one detection.
type WakeData struct {
	Confidence      float64 `json:"confidence"`
	Model           string  `json:"model"`
	DetectionNumber int64   `json:"detection_number"`
}

// ConfidenceData summarises the rolling score buffer.
type ConfidenceData struct {
	Average     float64 `json:"average"`
	Maximum     float64 `json:"maximum"`
	SampleCount int     `json:"sample_count"`
}

// ErrorData carries a non-fatal runtime error.
type ErrorData struct {
	Message string `json:"message"`
}

// Status builds a status message.
func Status(now time.Time, status string, details map[string]any) Message {
	if details == nil {
		details = map[string]any{}
	}
	return Message{Type: TypeStatus, Timestamp: now, Data: StatusData{Status: status, Details: details}}
}

// Heartbeat builds a heartbeat message.
func Heartbeat(now time.Time, data HeartbeatData) Message {
	return Message{Type: TypeHeartbeat, Timestamp: now, Data: data}
}

// Wake builds a wake_word_detected message.
func Wake(now time.Time, data WakeData) Message {
	return Message{Type: TypeWake, Timestamp: now, Data: data}
}

// Confidence builds a confidence_report message.
func Confidence(now time.Time, data ConfidenceData) Message {
	return Message{Type: TypeConfidence, Timestamp: now, Data: data}
}

// Error builds an error message.
func Error(now time.Time, msg string) Message {
	return Message{Type: TypeError, Timestamp: now, Data: ErrorData{Message: msg}}
}
