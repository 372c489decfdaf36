package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/phone"
)

// BindResult reports what ensureParticipant did. Exactly one field is true on
// success.
type BindResult struct {
	Added        bool
	AlreadyBound bool
}

// ensureParticipant makes sure customer is bound to conversation key through
// the sender's proxy phone. A binding held by another conversation is returned
// as *BindingConflictError; other errors are raw provider errors.
func (s *Service) ensureParticipant(ctx context.Context, sc *senderContext, key, customer string) (BindResult, error) {
	cctx, cancel := s.remoteCtx(ctx)
	participants, err := sc.provider.ListParticipants(cctx, sc.serviceSID(), key)
	cancel()
	if err != nil {
		return BindResult{}, err
	}

	for _, p := range participants {
		if phone.Equal(p.Address(), customer) {
			s.ensureSenderParticipant(ctx, sc, key, participants)
			return BindResult{AlreadyBound: true}, nil
		}
	}

	cctx, cancel = s.remoteCtx(ctx)
	_, err = sc.provider.CreateParticipant(cctx, sc.serviceSID(), key, phone.Normalize(customer), sc.proxy())
	cancel()
	if err != nil {
		if twilio.IsAlreadyParticipant(err) {
			return BindResult{AlreadyBound: true}, nil
		}
		if holder, ok := twilio.ParseBindingConflict(err); ok {
			if holder == key {
				return BindResult{AlreadyBound: true}, nil
			}
			return BindResult{}, &BindingConflictError{ConflictingKey: holder, Err: err}
		}
		return BindResult{}, err
	}

	s.ensureSenderParticipant(ctx, sc, key, participants)
	return BindResult{Added: true}, nil
}

// ensureSenderParticipant adds the business phone as its own participant,
// bound through itself, when configured. The (sender, sender) binding can
// exist in only one conversation, so failures are logged only.
func (s *Service) ensureSenderParticipant(ctx context.Context, sc *senderContext, key string, participants []twilio.Participant) {
	if !s.config.BindSenderParticipant {
		return
	}
	proxy := sc.proxy()
	for _, p := range participants {
		if phone.Equal(p.Address(), proxy) {
			return
		}
	}

	cctx, cancel := s.remoteCtx(ctx)
	defer cancel()
	if _, err := sc.provider.CreateParticipant(cctx, sc.serviceSID(), key, proxy, proxy); err != nil && !twilio.IsAlreadyParticipant(err) {
		log.Warn().Err(err).
			Str("conversation_key", key).
			Str("sender_phone", proxy).
			Msg("failed to bind sender participant")
	}
}
