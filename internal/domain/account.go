package domain

import "time"

// SenderAccount holds provider credentials for a group of sender phones.
type SenderAccount struct {
	ID                     string    `json:"id" yaml:"id"`
	AccountName            string    `json:"account_name" yaml:"account_name"`
	Provider               Provider  `json:"provider" yaml:"provider"`
	AccountSID             string    `json:"account_sid" yaml:"account_sid"`
	AuthToken              string    `json:"-" yaml:"auth_token"`
	ConversationServiceSID string    `json:"conversation_service_sid,omitempty" yaml:"conversation_service_sid"`
	IsActive               bool      `json:"is_active" yaml:"is_active"`
	CreatedAt              time.Time `json:"created_at" yaml:"-"`
}

// HasCredentials reports whether the account can authenticate to its provider.
func (a *SenderAccount) HasCredentials() bool {
	return a.AccountSID != "" && a.AuthToken != ""
}

// SenderPhoneNumber is a business phone bound to a sender account.
type SenderPhoneNumber struct {
	ID           string    `json:"id" yaml:"id"`
	AccountID    string    `json:"account_id" yaml:"account_id"`
	PhoneNumber  string    `json:"phone_number" yaml:"phone_number"`
	FriendlyName string    `json:"friendly_name,omitempty" yaml:"friendly_name"`
	ProviderSID  string    `json:"twilio_sid,omitempty" yaml:"twilio_sid"`
	IsPrimary    bool      `json:"is_primary" yaml:"is_primary"`
	IsActive     bool      `json:"is_active" yaml:"is_active"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
}

// Contact is a customer known to the CRM.
type Contact struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Phone     string    `json:"phone" yaml:"phone"`
	Email     string    `json:"email,omitempty" yaml:"email"`
	Notes     string    `json:"notes,omitempty" yaml:"notes"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}
