package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSignalCreated         EventType = "signal_created"
	EventSignalAccepted        EventType = "signal_accepted"
	EventResponseStatusChanged EventType = "response_status_changed"
	EventChatMessagePosted     EventType = "chat_message_posted"
	EventSignalCancelled       EventType = "signal_cancelled"
	EventSignalResolved        EventType = "signal_resolved"
	EventMissingPersonReported EventType = "missing_person_reported"
)

// Event is a domain event emitted by the coordination service.
// Recipients is only used by in-process notifiers and never serialized.
type Event struct {
	ID            uuid.UUID           `json:"id"`
	Type          EventType           `json:"type"`
	SignalID      uuid.UUID           `json:"signal_id"`
	ResponseID    *uuid.UUID          `json:"response_id,omitempty"`
	ResponderID   string              `json:"responder_id,omitempty"`
	SignalStatus  SignalState         `json:"signal_status,omitempty"`
	Status        ResponseState       `json:"response_status,omitempty"`
	Location      *Location           `json:"location,omitempty"`
	Chat          *ChatMessage        `json:"chat,omitempty"`
	MissingPerson *MissingPersonEntry `json:"missing_person,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
	Recipients    []Recipient         `json:"-"`
}

// Recipient is a device or phone that should hear about an event
type Recipient struct {
	DeviceToken string
	Phone       string
}
