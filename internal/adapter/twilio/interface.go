// Package twilio provides clients for the Twilio Conversations and Messages APIs.
package twilio

import "context"

// Provider defines the remote conversation operations the service relies on.
// serviceSID scopes calls to a Conversation Service when non-empty.
type Provider interface {
	ListConversations(ctx context.Context, serviceSID string, pageSize, limit int) ([]Conversation, error)
	CreateConversation(ctx context.Context, serviceSID, friendlyName string) (*Conversation, error)
	DeleteConversation(ctx context.Context, serviceSID, conversationSID string) error

	ListParticipants(ctx context.Context, serviceSID, conversationSID string) ([]Participant, error)
	CreateParticipant(ctx context.Context, serviceSID, conversationSID, address, proxyAddress string) (*Participant, error)

	SendMessage(ctx context.Context, params SendParams) (*Message, error)
	FetchMessage(ctx context.Context, messageSID string) (*Message, error)
}

// Ensure Client implements Provider interface.
var _ Provider = (*Client)(nil)
