// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	SnapshotCreated EventType = "SNAPSHOT_CREATED"
	RefreshStarted  EventType = "REFRESH_STARTED"
	RefreshFailed   EventType = "REFRESH_FAILED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type in emission order of a refresh
var AllTypes = []EventType{RefreshStarted, SnapshotCreated, RefreshFailed, ErrorOccurred}

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data,omitempty"`
}

// EventData is implemented by every typed event payload
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SnapshotCreatedData contains data for SnapshotCreated events
type SnapshotCreatedData struct {
	SnapshotID string   `json:"snapshot_id"`
	Datasets   []string `json:"datasets"`
	Failed     []string `json:"failed,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// EventType returns the event type for SnapshotCreatedData
func (d *SnapshotCreatedData) EventType() EventType {
	return SnapshotCreated
}

// RefreshStartedData contains data for RefreshStarted events
type RefreshStartedData struct {
	Trigger string `json:"trigger"`
}

// EventType returns the event type for RefreshStartedData
func (d *RefreshStartedData) EventType() EventType {
	return RefreshStarted
}

// RefreshFailedData contains data for RefreshFailed events
type RefreshFailedData struct {
	Error string `json:"error"`
}

// EventType returns the event type for RefreshFailedData
func (d *RefreshFailedData) EventType() EventType {
	return RefreshFailed
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
