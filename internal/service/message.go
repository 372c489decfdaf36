package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hebes/smscrm/internal/adapter/paramstore"
	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
	"github.com/hebes/smscrm/policy"
)

// Send paths reported in SendResponse.Via.
const (
	ViaConversation = "conversation"
	ViaDirect       = "direct"
)

// StatusCallbackPath is where the provider posts delivery updates.
const StatusCallbackPath = "/webhooks/twilio/status"

func newMessageID() string {
	return "msg_" + uuid.New().String()
}

// ListMessages returns messages matching filter, newest first.
func (s *Service) ListMessages(ctx context.Context, filter domain.MessageFilter) ([]domain.Message, error) {
	messages, err := s.store.ListMessages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// SendMessage sends an outbound SMS. The conversation is resolved first; if
// resolution fails for any reason other than configuration, the message is
// sent directly and recorded under the local key.
func (s *Service) SendMessage(ctx context.Context, req domain.SendRequest) (*domain.SendResponse, error) {
	to := phone.Normalize(req.To)
	if to == "" || !phone.Valid(to) {
		return nil, newError(ErrorInvalidInput, "invalid destination phone", nil)
	}
	body := strings.TrimSpace(req.Message)
	if body == "" {
		return nil, newError(ErrorInvalidInput, "message is required", nil)
	}

	sc, err := s.loadSender(ctx, req.SenderPhoneNumberID)
	if err != nil {
		return nil, err
	}
	from := sc.proxy()
	if req.From != "" && !phone.Equal(req.From, from) {
		return nil, newError(ErrorInvalidInput, "from does not match the sender phone", nil)
	}

	if err := s.checkSendPolicy(ctx, sc, to, from, body); err != nil {
		return nil, err
	}

	logger := log.With().Str("customer_phone", to).Str("sender_phone", from).Logger()

	via := ViaConversation
	var key string
	res, err := s.ResolveConversation(ctx, to, sc.phone.ID)
	if err != nil {
		if e, ok := AsError(err); ok && e.Code == ErrorConfiguration {
			return nil, err
		}
		logger.Warn().Err(err).Msg("conversation resolution failed, sending directly")
		via = ViaDirect
		if key, err = s.localKey(ctx, to, sc.phone.ID, sc.phone.PhoneNumber); err != nil {
			logger.Warn().Err(err).Msg("failed to look up local conversation key")
		}
	} else {
		key = res.ConversationKey
	}

	cctx, cancel := s.remoteCtx(ctx)
	sent, err := sc.provider.SendMessage(cctx, twilio.SendParams{
		To:             to,
		From:           from,
		Body:           body,
		StatusCallback: s.config.PublicURL + StatusCallbackPath,
	})
	cancel()
	if err != nil {
		return nil, classifyProviderError("failed to send message", err)
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:                  newMessageID(),
		Direction:           domain.DirectionOutbound,
		From:                from,
		To:                  to,
		Body:                body,
		Status:              statusOr(sent.Status, domain.MessageStatusQueued),
		ProviderMessageSID:  sent.SID,
		ConversationKey:     key,
		SenderPhoneNumberID: sc.phone.ID,
		AccountID:           sc.account.ID,
		SentAt:              &now,
		CreatedAt:           now,
	}
	if msg.ConversationKey == "" {
		msg.ConversationKey = msg.ID
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		logger.Error().Err(err).Str("provider_sid", sent.SID).Msg("message sent but not recorded")
		return nil, newError(ErrorInternal, "failed to record sent message", err)
	}

	s.publish(from, domain.MessageEvent{
		Type:            domain.EventTypeMessageSent,
		ConversationKey: msg.ConversationKey,
		Message:         msg,
	})

	return &domain.SendResponse{
		Success:         true,
		MessageID:       msg.ID,
		ProviderSID:     msg.ProviderMessageSID,
		ConversationKey: msg.ConversationKey,
		Status:          msg.Status,
		Via:             via,
	}, nil
}

func (s *Service) checkSendPolicy(ctx context.Context, sc *senderContext, to, from, body string) error {
	if s.policyEngine == nil {
		return nil
	}
	decision, reason, err := s.policyEngine.Evaluate(ctx, policy.SendInput{
		To:   to,
		From: from,
		Body: body,
		Sender: policy.SenderInput{
			PhoneNumberID: sc.phone.ID,
			IsActive:      sc.phone.IsActive,
			AccountActive: sc.account.IsActive,
		},
	})
	if err != nil {
		return newError(ErrorInternal, "failed to evaluate send policy", err)
	}
	if decision == policy.DecisionBlock {
		return newError(ErrorBlocked, reason, nil)
	}
	return nil
}

// HandleInbound records an inbound SMS and assigns its conversation key: the
// resolved remote key, else the key on earlier local messages, else the
// message's own id. Redelivered webhooks return the stored message.
func (s *Service) HandleInbound(ctx context.Context, in domain.InboundSMS) (*domain.Message, error) {
	if in.MessageSID == "" || in.From == "" || in.To == "" {
		return nil, newError(ErrorInvalidInput, "MessageSid, From and To are required", nil)
	}

	existing, err := s.store.GetMessageByProviderSID(ctx, in.MessageSID)
	if err != nil {
		return nil, newError(ErrorInternal, "failed to check for duplicate message", err)
	}
	if existing != nil {
		return existing, nil
	}

	from := phone.Normalize(in.From)
	to := phone.Normalize(in.To)
	logger := log.With().Str("customer_phone", from).Str("sender_phone", to).Str("provider_sid", in.MessageSID).Logger()

	sender, err := s.store.GetSenderPhoneNumberByPhone(ctx, to)
	if err != nil {
		return nil, newError(ErrorInternal, "failed to get sender phone", err)
	}
	if sender == nil {
		logger.Warn().Msg("inbound message for unknown sender phone")
	}

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:                 newMessageID(),
		Direction:          domain.DirectionInbound,
		From:               from,
		To:                 to,
		Body:               in.Body,
		Status:             domain.MessageStatusReceived,
		ProviderMessageSID: in.MessageSID,
		MediaCount:         in.NumMedia,
		ReceivedAt:         &now,
		CreatedAt:          now,
	}
	if sender != nil {
		msg.SenderPhoneNumberID = sender.ID
		msg.AccountID = sender.AccountID
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, newError(ErrorInternal, "failed to record inbound message", err)
	}

	key := ""
	if sender != nil {
		if res, err := s.ResolveConversation(ctx, from, sender.ID); err != nil {
			logger.Warn().Err(err).Msg("failed to resolve conversation for inbound message")
		} else {
			key = res.ConversationKey
		}
	}
	if key == "" {
		senderID := ""
		if sender != nil {
			senderID = sender.ID
		}
		if key, err = s.localKey(ctx, from, senderID, to); err != nil {
			logger.Warn().Err(err).Msg("failed to look up local conversation key")
		}
	}
	if key == "" {
		key = msg.ID
	}

	if _, err := s.store.UpdateMessageConversationKey(ctx, msg.ID, key); err != nil {
		logger.Warn().Err(err).Msg("failed to store conversation key")
	} else {
		msg.ConversationKey = key
	}

	s.publish(to, domain.MessageEvent{
		Type:            domain.EventTypeMessageReceived,
		ConversationKey: msg.ConversationKey,
		Message:         msg,
	})
	logger.Info().Str("conversation_key", msg.ConversationKey).Msg("inbound message recorded")
	return msg, nil
}

// HandleStatus applies a delivery-status callback. It reports false when no
// message has the callback's SID.
func (s *Service) HandleStatus(ctx context.Context, cb domain.StatusCallback) (bool, error) {
	if cb.MessageSID == "" || cb.Status == "" {
		return false, newError(ErrorInvalidInput, "MessageSid and MessageStatus are required", nil)
	}
	return s.applyStatus(ctx, cb)
}

func (s *Service) applyStatus(ctx context.Context, cb domain.StatusCallback) (bool, error) {
	updated, err := s.store.UpdateMessageStatus(ctx, cb, time.Now().UTC())
	if err != nil {
		return false, newError(ErrorInternal, "failed to update message status", err)
	}
	if !updated {
		return false, nil
	}

	msg, err := s.store.GetMessageByProviderSID(ctx, cb.MessageSID)
	if err != nil || msg == nil {
		return true, nil
	}
	s.publish(msg.BusinessPhone(), domain.MessageEvent{
		Type:            domain.EventTypeMessageStatus,
		ConversationKey: msg.ConversationKey,
		Message:         msg,
	})
	return true, nil
}

// SigningToken returns the token webhook signatures are checked against: the
// configured webhook token, else the auth token of the account accountSID.
func (s *Service) SigningToken(ctx context.Context, accountSID string) (string, error) {
	if s.config.WebhookAuthToken != "" {
		token, err := paramstore.Resolve(ctx, s.secrets, s.config.WebhookAuthToken)
		if err != nil {
			return "", newError(ErrorConfiguration, "webhook auth token unavailable", err)
		}
		return token, nil
	}
	if accountSID == "" {
		return "", newError(ErrorConfiguration, "no account for webhook signature", nil)
	}
	account, err := s.store.GetSenderAccountBySID(ctx, accountSID)
	if err != nil {
		return "", newError(ErrorInternal, "failed to get sender account", err)
	}
	if account == nil {
		return "", newError(ErrorConfiguration, "unknown account "+accountSID, nil)
	}
	return s.authToken(ctx, account)
}

func statusOr(status string, fallback domain.MessageStatus) domain.MessageStatus {
	if status == "" {
		return fallback
	}
	return domain.MessageStatus(status)
}

func errorCodeString(code *int) string {
	if code == nil || *code == 0 {
		return ""
	}
	return strconv.Itoa(*code)
}
