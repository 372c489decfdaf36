package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/config"
)

// ApplySeed upserts seeded accounts and sender phones and inserts seeded
// contacts that do not exist yet.
func (s *Service) ApplySeed(ctx context.Context, seed *config.Seed) error {
	if seed == nil {
		return nil
	}
	for i := range seed.Accounts {
		if err := s.store.UpsertSenderAccount(ctx, &seed.Accounts[i]); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", seed.Accounts[i].ID, err)
		}
	}
	for i := range seed.SenderPhones {
		if err := s.store.UpsertSenderPhoneNumber(ctx, &seed.SenderPhones[i]); err != nil {
			return fmt.Errorf("failed to seed sender phone %s: %w", seed.SenderPhones[i].ID, err)
		}
	}
	for i := range seed.Contacts {
		if err := s.store.CreateContact(ctx, &seed.Contacts[i]); err != nil {
			// Ignore duplicates
			if strings.Contains(err.Error(), "UNIQUE") {
				continue
			}
			return fmt.Errorf("failed to seed contact %s: %w", seed.Contacts[i].ID, err)
		}
	}
	log.Info().
		Int("accounts", len(seed.Accounts)).
		Int("sender_phones", len(seed.SenderPhones)).
		Int("contacts", len(seed.Contacts)).
		Msg("seed applied")
	return nil
}
