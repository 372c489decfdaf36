package helpers

import (
	"context"
	"testing"

	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedSender inserts an active account "acc1" with sender phone "sp1" bound
// to senderPhone.
func SeedSender(t *testing.T, s repository.Store, senderPhone string) (*domain.SenderAccount, *domain.SenderPhoneNumber) {
	t.Helper()
	ctx := context.Background()

	account := &domain.SenderAccount{
		ID:          "acc1",
		AccountName: "Main",
		Provider:    domain.ProviderTwilio,
		AccountSID:  "AC00000000000000000000000000000001",
		AuthToken:   "token",
		IsActive:    true,
	}
	if err := s.UpsertSenderAccount(ctx, account); err != nil {
		t.Fatalf("UpsertSenderAccount failed: %v", err)
	}
	sp := &domain.SenderPhoneNumber{
		ID:          "sp1",
		AccountID:   account.ID,
		PhoneNumber: senderPhone,
		IsPrimary:   true,
		IsActive:    true,
	}
	if err := s.UpsertSenderPhoneNumber(ctx, sp); err != nil {
		t.Fatalf("UpsertSenderPhoneNumber failed: %v", err)
	}
	return account, sp
}
