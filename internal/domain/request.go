package domain

// ResolveRequest is the body of POST /v1/conversations/resolve.
type ResolveRequest struct {
	CustomerPhone       string `json:"customer_phone"`
	SenderPhoneNumberID string `json:"sender_phone_number_id"`
}

// SendRequest is the body of POST /v1/messages/send.
type SendRequest struct {
	To                  string `json:"to"`
	From                string `json:"from,omitempty"`
	Message             string `json:"message"`
	SenderPhoneNumberID string `json:"sender_phone_number_id"`
}

// SendResponse is returned after an outbound message is accepted.
type SendResponse struct {
	Success         bool          `json:"success"`
	MessageID       string        `json:"message_id"`
	ProviderSID     string        `json:"provider_sid"`
	ConversationKey string        `json:"conversation_key"`
	Status          MessageStatus `json:"status"`
	Via             string        `json:"via"`
}

// InboundSMS carries the fields of a provider inbound-message webhook.
type InboundSMS struct {
	MessageSID string
	AccountSID string
	From       string
	To         string
	Body       string
	Status     string
	NumMedia   int
}

// StatusCallback carries the fields of a provider delivery-status webhook.
type StatusCallback struct {
	MessageSID   string
	Status       MessageStatus
	ErrorCode    string
	ErrorMessage string
}

// CreateContactRequest is the body of POST /v1/contacts.
type CreateContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	Notes string `json:"notes,omitempty"`
}
