// Package domain defines the core domain models for the SMS conversation service.
package domain

import "strings"

// Direction is the direction of a message relative to the business.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageStatus mirrors the provider's delivery status vocabulary.
type MessageStatus string

const (
	MessageStatusQueued      MessageStatus = "queued"
	MessageStatusSending     MessageStatus = "sending"
	MessageStatusSent        MessageStatus = "sent"
	MessageStatusDelivered   MessageStatus = "delivered"
	MessageStatusUndelivered MessageStatus = "undelivered"
	MessageStatusFailed      MessageStatus = "failed"
	MessageStatusReceived    MessageStatus = "received"
)

// IsFailure reports whether the status is terminal and unsuccessful.
func (s MessageStatus) IsFailure() bool {
	return s == MessageStatusFailed || s == MessageStatusUndelivered
}

// Provider identifies the messaging provider of a sender account.
type Provider string

const (
	ProviderTwilio Provider = "twilio"
)

// ResolveSource records how a conversation key was obtained.
type ResolveSource string

const (
	ResolveSourceLocal    ResolveSource = "local"
	ResolveSourceRemote   ResolveSource = "remote"
	ResolveSourceCreated  ResolveSource = "created"
	ResolveSourceConflict ResolveSource = "conflict"
)

// EventType is the type of a pushed message event.
type EventType string

const (
	EventTypeMessageReceived     EventType = "message_received"
	EventTypeMessageSent         EventType = "message_sent"
	EventTypeMessageStatus       EventType = "message_status"
	EventTypeConversationDeleted EventType = "conversation_deleted"
)

// RemoteKeyPrefix marks conversation keys issued by the remote provider.
const RemoteKeyPrefix = "CH"

// IsRemoteKey reports whether key was issued by the remote provider, as
// opposed to a legacy key derived from a local message id.
func IsRemoteKey(key string) bool {
	return strings.HasPrefix(key, RemoteKeyPrefix)
}
