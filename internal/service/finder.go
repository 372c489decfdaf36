package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/phone"
)

// ConversationMatch is a remote conversation containing the customer.
// Exact means one participant binds both the customer and the proxy phone.
type ConversationMatch struct {
	Conversation twilio.Conversation
	Exact        bool
}

// FindResult is the outcome of a remote search. Err is set when the listing
// or a participant fetch failed; matches gathered before the failure are kept.
// Conversations that vanish between listing and fetch are skipped.
type FindResult struct {
	Found         int
	Searched      int
	Conversations []ConversationMatch
	Err           *Error
}

// Best returns the match to use: the first exact match, else the first
// customer-only match.
func (r FindResult) Best() (ConversationMatch, bool) {
	switch len(r.Conversations) {
	case 0:
		return ConversationMatch{}, false
	case 1:
		return r.Conversations[0], true
	}
	for _, m := range r.Conversations {
		if m.Exact {
			return m, true
		}
	}
	return r.Conversations[0], true
}

// findByPhone scans the sender's remote conversations for the customer.
func (s *Service) findByPhone(ctx context.Context, sc *senderContext, customer string) FindResult {
	proxy := sc.proxy()

	cctx, cancel := s.remoteCtx(ctx)
	conversations, err := sc.provider.ListConversations(cctx, sc.serviceSID(), s.config.ConversationPageSize, s.config.ConversationListLimit)
	cancel()
	if err != nil {
		return FindResult{Err: classifyProviderError("failed to list conversations", err)}
	}

	var result FindResult
	for _, conv := range conversations {
		result.Searched++

		cctx, cancel := s.remoteCtx(ctx)
		participants, err := sc.provider.ListParticipants(cctx, sc.serviceSID(), conv.SID)
		cancel()
		if err != nil {
			// Deleted between listing and fetch, e.g. a racing resolver's orphan.
			if twilio.IsNotFound(err) {
				log.Debug().Str("conversation_key", conv.SID).Msg("listed conversation is gone, skipping")
				continue
			}
			result.Err = classifyProviderError("failed to list participants of "+conv.SID, err)
			return result
		}

		matched, exact := matchParticipants(participants, customer, proxy)
		if !matched {
			continue
		}
		result.Found++
		result.Conversations = append(result.Conversations, ConversationMatch{Conversation: conv, Exact: exact})
	}
	return result
}

func matchParticipants(participants []twilio.Participant, customer, proxy string) (matched, exact bool) {
	for _, p := range participants {
		if !phone.Equal(p.Address(), customer) {
			continue
		}
		matched = true
		if phone.Equal(p.ProxyAddress(), proxy) {
			return true, true
		}
	}
	return matched, false
}
