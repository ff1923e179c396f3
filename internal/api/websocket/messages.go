package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Bluetooth session messages
	MessageTypeConnectionStatus MessageType = "connection_status"
	MessageTypeDeviceList       MessageType = "device_list"

	// Schedule messages
	MessageTypeScheduleList MessageType = "schedule_list"

	// Transient notices (toast/snackbar equivalent)
	MessageTypeErrorNotice MessageType = "error_notice"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ConnectionStatusData represents a session status transition
type ConnectionStatusData struct {
	Status        string `json:"status"`
	Previous      string `json:"previous_status"`
	ConnectedName string `json:"connected_name,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// ErrorNoticeData carries a user-facing notice
type ErrorNoticeData struct {
	Message string `json:"message"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Helper functions for creating specific message types

func NewConnectionStatusMessage(status, previous, connectedName, errorMessage string) Message {
	return NewMessage(MessageTypeConnectionStatus, ConnectionStatusData{
		Status:        status,
		Previous:      previous,
		ConnectedName: connectedName,
		ErrorMessage:  errorMessage,
	})
}

func NewDeviceListMessage(devices interface{}) Message {
	return NewMessage(MessageTypeDeviceList, devices)
}

func NewScheduleListMessage(schedules interface{}) Message {
	return NewMessage(MessageTypeScheduleList, schedules)
}

func NewErrorNoticeMessage(message string) Message {
	return NewMessage(MessageTypeErrorNotice, ErrorNoticeData{Message: message})
}
