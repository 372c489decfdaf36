// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/hebes/smscrm/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Message operations
	CreateMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	GetMessageByProviderSID(ctx context.Context, sid string) (*domain.Message, error)
	ListMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error)
	FindByCustomerAndSender(ctx context.Context, customerPhone, senderPhoneNumberID, senderPhone string) ([]domain.Message, error)
	UpdateMessageConversationKey(ctx context.Context, id, key string) (bool, error)
	UpdateMessageStatus(ctx context.Context, cb domain.StatusCallback, at time.Time) (bool, error)
	ListPendingOutbound(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, id string) (bool, error)

	// Contact operations
	CreateContact(ctx context.Context, contact *domain.Contact) error
	GetContactByPhone(ctx context.Context, phone string) (*domain.Contact, error)
	ListContacts(ctx context.Context) ([]domain.Contact, error)

	// Sender account operations
	UpsertSenderAccount(ctx context.Context, account *domain.SenderAccount) error
	GetSenderAccount(ctx context.Context, id string) (*domain.SenderAccount, error)
	GetSenderAccountBySID(ctx context.Context, accountSID string) (*domain.SenderAccount, error)
	ListSenderAccounts(ctx context.Context) ([]domain.SenderAccount, error)

	// Sender phone operations
	UpsertSenderPhoneNumber(ctx context.Context, p *domain.SenderPhoneNumber) error
	GetSenderPhoneNumber(ctx context.Context, id string) (*domain.SenderPhoneNumber, error)
	GetSenderPhoneNumberByPhone(ctx context.Context, phone string) (*domain.SenderPhoneNumber, error)
	ListSenderPhoneNumbers(ctx context.Context, activeOnly bool) ([]domain.SenderPhoneNumber, error)

	// Lifecycle
	Close() error
}
