package domain

import "time"

// Conversation is a display grouping of messages. It is derived on every
// read and never stored.
type Conversation struct {
	ConversationID string      `json:"conversation_id"`
	PhoneNumber    string      `json:"phone_number"`
	LastMessage    LastMessage `json:"last_message"`
	Contact        *Contact    `json:"contact,omitempty"`
	SenderPhones   []string    `json:"sender_phones"`
	MessageCount   int         `json:"message_count"`
}

// LastMessage summarizes the most recent message of a conversation.
type LastMessage struct {
	ID        string        `json:"id"`
	Body      string        `json:"body"`
	Direction Direction     `json:"direction"`
	Status    MessageStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// ResolveResult is the outcome of a successful conversation resolution.
type ResolveResult struct {
	ConversationKey   string        `json:"conversation_key"`
	ParticipantsAdded int           `json:"participants_added"`
	Created           bool          `json:"created"`
	Source            ResolveSource `json:"source"`
}

// DeleteResult reports the outcome of deleting a conversation.
type DeleteResult struct {
	ConversationKey string `json:"conversation_key"`
	DeletedCount    int    `json:"deleted_count"`
	RemoteDeleted   bool   `json:"remote_deleted"`
	RemoteError     string `json:"remote_error,omitempty"`
}

// MessageEvent is pushed to stream subscribers of a sender phone.
type MessageEvent struct {
	Type            EventType `json:"type"`
	Ts              int64     `json:"ts"`
	SenderPhone     string    `json:"sender_phone"`
	ConversationKey string    `json:"conversation_key,omitempty"`
	Message         *Message  `json:"message,omitempty"`
}
