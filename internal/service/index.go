package service

import (
	"context"

	"github.com/hebes/smscrm/internal/domain"
)

// localKey returns the conversation key recorded on past messages between
// customer and the sender. Remote keys win over legacy keys; among equals
// the newest message wins.
func (s *Service) localKey(ctx context.Context, customer, senderPhoneNumberID, senderPhone string) (string, error) {
	messages, err := s.store.FindByCustomerAndSender(ctx, customer, senderPhoneNumberID, senderPhone)
	if err != nil {
		return "", err
	}
	return pickLocalKey(messages), nil
}

// pickLocalKey expects messages newest first.
func pickLocalKey(messages []domain.Message) string {
	legacy := ""
	for _, m := range messages {
		if m.ConversationKey == "" {
			continue
		}
		if domain.IsRemoteKey(m.ConversationKey) {
			return m.ConversationKey
		}
		if legacy == "" {
			legacy = m.ConversationKey
		}
	}
	return legacy
}
