package twilio

import "time"

// Conversation is a Conversations API conversation resource.
type Conversation struct {
	SID            string    `json:"sid"`
	AccountSID     string    `json:"account_sid"`
	ChatServiceSID string    `json:"chat_service_sid"`
	FriendlyName   string    `json:"friendly_name"`
	UniqueName     string    `json:"unique_name,omitempty"`
	State          string    `json:"state"`
	DateCreated    time.Time `json:"date_created"`
}

// Participant is a member of a conversation.
type Participant struct {
	SID              string            `json:"sid"`
	ConversationSID  string            `json:"conversation_sid"`
	Identity         string            `json:"identity,omitempty"`
	MessagingBinding *MessagingBinding `json:"messaging_binding,omitempty"`
}

// MessagingBinding ties an SMS address to a proxy (business) address.
type MessagingBinding struct {
	Type         string `json:"type,omitempty"`
	Address      string `json:"address"`
	ProxyAddress string `json:"proxy_address"`
}

// Address returns the participant's bound address, or "" if unbound.
func (p *Participant) Address() string {
	if p.MessagingBinding == nil {
		return ""
	}
	return p.MessagingBinding.Address
}

// ProxyAddress returns the participant's proxy address, or "" if unbound.
func (p *Participant) ProxyAddress() string {
	if p.MessagingBinding == nil {
		return ""
	}
	return p.MessagingBinding.ProxyAddress
}

// SendParams holds the fields of a Messages API create call.
type SendParams struct {
	To             string
	From           string
	Body           string
	StatusCallback string
}

// Message is a Messages API message resource.
type Message struct {
	SID          string `json:"sid"`
	AccountSID   string `json:"account_sid"`
	To           string `json:"to"`
	From         string `json:"from"`
	Body         string `json:"body"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type pageMeta struct {
	NextPageURL string `json:"next_page_url"`
}

type conversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Meta          pageMeta       `json:"meta"`
}

type participantPage struct {
	Participants []Participant `json:"participants"`
	Meta         pageMeta      `json:"meta"`
}
