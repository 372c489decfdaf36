package domain

import "time"

// Message is a single SMS in the local message log.
type Message struct {
	ID                  string        `json:"id"`
	Direction           Direction     `json:"direction"`
	From                string        `json:"from_number"`
	To                  string        `json:"to_number"`
	Body                string        `json:"body"`
	Status              MessageStatus `json:"status"`
	ProviderMessageSID  string        `json:"provider_message_sid,omitempty"`
	ConversationKey     string        `json:"conversation_id,omitempty"`
	SenderPhoneNumberID string        `json:"sender_phone_number_id,omitempty"`
	AccountID           string        `json:"account_id,omitempty"`
	MediaCount          int           `json:"num_media,omitempty"`
	ErrorCode           string        `json:"error_code,omitempty"`
	ErrorMessage        string        `json:"error_message,omitempty"`
	SentAt              *time.Time    `json:"sent_at,omitempty"`
	ReceivedAt          *time.Time    `json:"received_at,omitempty"`
	DeliveredAt         *time.Time    `json:"delivered_at,omitempty"`
	FailedAt            *time.Time    `json:"failed_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// CustomerPhone returns the counterpart phone: the sender of an inbound
// message or the recipient of an outbound one.
func (m *Message) CustomerPhone() string {
	if m.Direction == DirectionInbound {
		return m.From
	}
	return m.To
}

// BusinessPhone returns the phone on the business side of the message.
func (m *Message) BusinessPhone() string {
	if m.Direction == DirectionInbound {
		return m.To
	}
	return m.From
}

// Timestamp returns the most specific time known for the message:
// received_at, then sent_at, then created_at.
func (m *Message) Timestamp() time.Time {
	if m.ReceivedAt != nil && !m.ReceivedAt.IsZero() {
		return *m.ReceivedAt
	}
	if m.SentAt != nil && !m.SentAt.IsZero() {
		return *m.SentAt
	}
	return m.CreatedAt
}

// MessageFilter narrows ListMessages. Empty fields are ignored.
type MessageFilter struct {
	CustomerPhone       string
	ConversationKey     string
	SenderPhoneNumberID string
	// Unkeyed keeps only legacy messages without a conversation key.
	Unkeyed bool
	Limit   int
}
