package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "VATCHK/"
	// Batch queue name - new batch submitted
	Batch = st + "Batch"
	// Fail queue name
	Fail = st + "Fail"
	// Inform queue name
	Inform = st + "Inform"
	// StatusChange queue name
	StatusChange = st + "StatusChange"
)

// BatchMessage is the main message passing through the compliance check pipeline
type BatchMessage struct {
	amessages.QueueMessage
	Name string `json:"name,omitempty"`
}

// NewMessageFrom creates a copy of a message
func NewMessageFrom(m *BatchMessage) *BatchMessage {
	return &BatchMessage{QueueMessage: m.QueueMessage, Name: m.Name}
}
