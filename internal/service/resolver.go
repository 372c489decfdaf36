package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
)

// errConversationGone marks a conversation key the provider no longer knows.
var errConversationGone = errors.New("conversation no longer exists")

// ResolveConversation returns the single remote conversation for
// (customerPhone, sender), creating and binding one when none exists. A
// result is only returned once the customer binding is confirmed.
func (s *Service) ResolveConversation(ctx context.Context, customerPhone, senderPhoneNumberID string) (*domain.ResolveResult, error) {
	customer := phone.Normalize(customerPhone)
	if customer == "" || !phone.Valid(customer) {
		return nil, newError(ErrorInvalidInput, "invalid customer phone", nil)
	}
	if senderPhoneNumberID == "" {
		return nil, newError(ErrorInvalidInput, "sender_phone_number_id is required", nil)
	}

	if !s.config.ResolveCoalesce {
		return s.resolve(ctx, customer, senderPhoneNumberID)
	}

	// The shared flight must not die with whichever caller started it; each
	// remote call inside it is still bounded by its own timeout.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.resolveGroup.DoChan(customer+"|"+senderPhoneNumberID, func() (interface{}, error) {
		return s.resolve(flightCtx, customer, senderPhoneNumberID)
	})

	select {
	case <-ctx.Done():
		return nil, newError(ErrorTransient, "conversation resolution cancelled", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*domain.ResolveResult)
		if r.Shared {
			log.Debug().Str("customer_phone", customer).Msg("resolution shared with concurrent caller")
		}
		return &res, nil
	}
}

func (s *Service) resolve(ctx context.Context, customer, senderPhoneNumberID string) (*domain.ResolveResult, error) {
	start := time.Now()
	logger := log.With().
		Str("customer_phone", customer).
		Str("sender_phone_number_id", senderPhoneNumberID).
		Logger()

	sc, err := s.loadSender(ctx, senderPhoneNumberID)
	if err != nil {
		return nil, err
	}

	res, err := s.resolveWith(ctx, sc, customer, logger)
	if err != nil {
		logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("conversation resolution failed")
		return nil, err
	}
	logger.Info().
		Str("conversation_key", res.ConversationKey).
		Str("source", string(res.Source)).
		Bool("created", res.Created).
		Int("participants_added", res.ParticipantsAdded).
		Dur("elapsed", time.Since(start)).
		Msg("conversation resolved")
	return res, nil
}

func (s *Service) resolveWith(ctx context.Context, sc *senderContext, customer string, logger zerolog.Logger) (*domain.ResolveResult, error) {
	key, err := s.localKey(ctx, customer, sc.phone.ID, sc.phone.PhoneNumber)
	if err != nil {
		return nil, newError(ErrorInternal, "failed to look up local messages", err)
	}
	if domain.IsRemoteKey(key) {
		res, err := s.verify(ctx, sc, key, customer, domain.ResolveSourceLocal, false, logger)
		if !errors.Is(err, errConversationGone) {
			return res, err
		}
		logger.Warn().Str("conversation_key", key).Msg("local conversation key unknown to provider, searching remotely")
	}

	found := s.findByPhone(ctx, sc, customer)
	if found.Err != nil {
		return nil, found.Err
	}
	if best, ok := found.Best(); ok {
		logger.Debug().
			Int("found", found.Found).
			Int("searched", found.Searched).
			Bool("exact", best.Exact).
			Str("conversation_key", best.Conversation.SID).
			Msg("remote conversation found")
		res, err := s.verify(ctx, sc, best.Conversation.SID, customer, domain.ResolveSourceRemote, false, logger)
		if !errors.Is(err, errConversationGone) {
			return res, err
		}
		logger.Warn().Str("conversation_key", best.Conversation.SID).Msg("matched conversation disappeared, creating a new one")
	}

	return s.createAndBind(ctx, sc, customer, logger)
}

// verify confirms the customer binding on key. A binding conflict redirects
// to the holder once; a second conflict is a data inconsistency.
func (s *Service) verify(ctx context.Context, sc *senderContext, key, customer string, source domain.ResolveSource, redirected bool, logger zerolog.Logger) (*domain.ResolveResult, error) {
	bind, err := s.ensureParticipant(ctx, sc, key, customer)
	if err == nil {
		return &domain.ResolveResult{
			ConversationKey:   key,
			ParticipantsAdded: addedCount(bind),
			Source:            source,
		}, nil
	}

	var conflict *BindingConflictError
	if errors.As(err, &conflict) {
		if redirected {
			return nil, newError(ErrorInconsistency, "binding still conflicts after redirect to "+key, err)
		}
		logger.Info().
			Str("conversation_key", key).
			Str("conflicting_key", conflict.ConflictingKey).
			Msg("binding held by another conversation, redirecting")
		return s.verify(ctx, sc, conflict.ConflictingKey, customer, domain.ResolveSourceConflict, true, logger)
	}

	if twilio.IsNotFound(err) {
		if redirected {
			return nil, newError(ErrorInconsistency, "conflicting conversation "+key+" not found", err)
		}
		return nil, errConversationGone
	}
	return nil, classifyProviderError("failed to verify participant on "+key, err)
}

func (s *Service) createAndBind(ctx context.Context, sc *senderContext, customer string, logger zerolog.Logger) (*domain.ResolveResult, error) {
	cctx, cancel := s.remoteCtx(ctx)
	conv, err := sc.provider.CreateConversation(cctx, sc.serviceSID(), "Conversation with "+customer)
	cancel()
	if err != nil {
		return nil, classifyProviderError("failed to create conversation", err)
	}

	bind, err := s.ensureParticipant(ctx, sc, conv.SID, customer)
	if err == nil {
		return &domain.ResolveResult{
			ConversationKey:   conv.SID,
			ParticipantsAdded: addedCount(bind),
			Created:           true,
			Source:            domain.ResolveSourceCreated,
		}, nil
	}

	s.deleteOrphan(ctx, sc, conv.SID, logger)

	var conflict *BindingConflictError
	if errors.As(err, &conflict) {
		logger.Info().
			Str("orphan_key", conv.SID).
			Str("conflicting_key", conflict.ConflictingKey).
			Msg("lost creation race, redirecting")
		return s.verify(ctx, sc, conflict.ConflictingKey, customer, domain.ResolveSourceConflict, true, logger)
	}
	return nil, classifyProviderError("failed to bind participant on new conversation", err)
}

// deleteOrphan removes a conversation created by a failed resolution. It runs
// even when ctx is already cancelled.
func (s *Service) deleteOrphan(ctx context.Context, sc *senderContext, key string, logger zerolog.Logger) {
	cctx, cancel := s.remoteCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := sc.provider.DeleteConversation(cctx, sc.serviceSID(), key); err != nil {
		logger.Warn().Err(err).Str("orphan_key", key).Msg("failed to delete orphan conversation")
	}
}

func addedCount(b BindResult) int {
	if b.Added {
		return 1
	}
	return 0
}
