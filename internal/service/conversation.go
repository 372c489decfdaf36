package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
)

// ListConversations derives the conversation list from the message log.
func (s *Service) ListConversations(ctx context.Context, senderFilter string) ([]domain.Conversation, error) {
	messages, err := s.store.ListMessages(ctx, domain.MessageFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	senderPhones, err := s.store.ListSenderPhoneNumbers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get sender phones: %w", err)
	}
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}
	return BuildConversations(messages, senderPhones, contacts, senderFilter), nil
}

// ConversationMessages returns the messages of one conversation, oldest first.
func (s *Service) ConversationMessages(ctx context.Context, key string) ([]domain.Message, error) {
	if key == "" {
		return nil, newError(ErrorInvalidInput, "conversation key is required", nil)
	}
	messages, err := s.conversationMessages(ctx, key)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp().Before(messages[j].Timestamp())
	})
	return messages, nil
}

// conversationMessages collects the messages stored under key, plus legacy
// messages without a key whose normalized customer phone equals key. This is
// the grouping BuildConversations applies, whatever format the phone was
// stored in.
func (s *Service) conversationMessages(ctx context.Context, key string) ([]domain.Message, error) {
	keyed, err := s.store.ListMessages(ctx, domain.MessageFilter{ConversationKey: key})
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if domain.IsRemoteKey(key) || phone.Normalize(key) != key {
		return keyed, nil
	}

	legacy, err := s.store.ListMessages(ctx, domain.MessageFilter{Unkeyed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	seen := make(map[string]bool, len(keyed))
	for _, m := range keyed {
		seen[m.ID] = true
	}
	for _, m := range legacy {
		if seen[m.ID] || phone.Normalize(m.CustomerPhone()) != key {
			continue
		}
		seen[m.ID] = true
		keyed = append(keyed, m)
	}
	return keyed, nil
}

// DeleteConversation removes a conversation's messages and, for remote keys,
// the remote conversation. Local deletion is best effort per message and the
// remote delete is attempted regardless of local outcomes.
func (s *Service) DeleteConversation(ctx context.Context, key string) (*domain.DeleteResult, error) {
	if key == "" {
		return nil, newError(ErrorInvalidInput, "conversation key is required", nil)
	}
	logger := log.With().Str("conversation_key", key).Logger()

	targets, err := s.conversationMessages(ctx, key)
	if err != nil {
		return nil, newError(ErrorInternal, "failed to collect conversation messages", err)
	}

	result := &domain.DeleteResult{ConversationKey: key}
	for _, m := range targets {
		deleted, err := s.store.DeleteMessage(ctx, m.ID)
		if err != nil {
			logger.Warn().Err(err).Str("message_id", m.ID).Msg("failed to delete message")
			continue
		}
		if deleted {
			result.DeletedCount++
		}
	}

	if domain.IsRemoteKey(key) {
		if err := s.deleteRemote(ctx, key, targets); err != nil {
			result.RemoteError = err.Error()
			logger.Warn().Err(err).Msg("failed to delete remote conversation")
		} else {
			result.RemoteDeleted = true
		}
	}

	for _, sender := range senderPhonesOf(targets) {
		s.publish(sender, domain.MessageEvent{
			Type:            domain.EventTypeConversationDeleted,
			ConversationKey: key,
		})
	}

	logger.Info().
		Int("deleted_count", result.DeletedCount).
		Bool("remote_deleted", result.RemoteDeleted).
		Msg("conversation deleted")
	return result, nil
}

// deleteRemote deletes key with the credentials of the first usable sender
// found on the deleted messages, falling back to any active sender phone.
func (s *Service) deleteRemote(ctx context.Context, key string, targets []domain.Message) error {
	sc, err := s.senderForMessages(ctx, targets)
	if err != nil {
		return err
	}
	cctx, cancel := s.remoteCtx(ctx)
	defer cancel()
	return sc.provider.DeleteConversation(cctx, sc.serviceSID(), key)
}

func (s *Service) senderForMessages(ctx context.Context, messages []domain.Message) (*senderContext, error) {
	tried := make(map[string]bool)
	for _, m := range messages {
		if m.SenderPhoneNumberID == "" || tried[m.SenderPhoneNumberID] {
			continue
		}
		tried[m.SenderPhoneNumberID] = true
		if sc, err := s.loadSender(ctx, m.SenderPhoneNumberID); err == nil {
			return sc, nil
		}
	}

	phones, err := s.store.ListSenderPhoneNumbers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get sender phones: %w", err)
	}
	for i := range phones {
		if tried[phones[i].ID] {
			continue
		}
		if sc, err := s.senderFor(ctx, &phones[i]); err == nil {
			return sc, nil
		}
	}
	return nil, newError(ErrorConfiguration, "no sender account available for remote delete", nil)
}

func senderPhonesOf(messages []domain.Message) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range messages {
		p := phone.Normalize(messages[i].BusinessPhone())
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
