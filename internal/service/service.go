// Package service implements conversation resolution, aggregation and the
// message flows built on top of it.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/hebes/smscrm/internal/adapter/paramstore"
	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/phone"
	"github.com/hebes/smscrm/internal/repository"
	"github.com/hebes/smscrm/policy"
)

const defaultProviderTimeout = 12 * time.Second

// ProviderFactory builds a provider client for an account. authToken is the
// account's token with any parameter store reference already resolved.
type ProviderFactory func(account *domain.SenderAccount, authToken string) twilio.Provider

// NewProviderFactory returns a factory backed by twilio.NewProvider.
func NewProviderFactory(cfg *config.Config) ProviderFactory {
	return func(account *domain.SenderAccount, authToken string) twilio.Provider {
		return twilio.NewProvider(account.AccountSID, authToken, cfg.ProviderBaseURL, cfg.ProviderTimeout)
	}
}

// StaticProvider returns a factory that hands out p for every account.
func StaticProvider(p twilio.Provider) ProviderFactory {
	return func(*domain.SenderAccount, string) twilio.Provider {
		return p
	}
}

// Publisher receives message events for a sender phone.
type Publisher interface {
	PublishEvent(senderPhone string, evt domain.MessageEvent)
}

type Service struct {
	store        repository.Store
	providers    ProviderFactory
	secrets      paramstore.Getter
	publisher    Publisher
	config       *config.Config
	policyEngine *policy.Engine

	resolveGroup singleflight.Group
}

// New creates a Service. secrets, publisher and policyEngine may be nil.
func New(store repository.Store, providers ProviderFactory, secrets paramstore.Getter, publisher Publisher, cfg *config.Config, policyEngine *policy.Engine) *Service {
	return &Service{
		store:        store,
		providers:    providers,
		secrets:      secrets,
		publisher:    publisher,
		config:       cfg,
		policyEngine: policyEngine,
	}
}

// senderContext is everything needed to talk to the provider on behalf of one
// sender phone.
type senderContext struct {
	phone    *domain.SenderPhoneNumber
	account  *domain.SenderAccount
	provider twilio.Provider
}

func (sc *senderContext) serviceSID() string {
	return sc.account.ConversationServiceSID
}

// proxy returns the normalized business phone.
func (sc *senderContext) proxy() string {
	return phone.Normalize(sc.phone.PhoneNumber)
}

func (s *Service) loadSender(ctx context.Context, senderPhoneNumberID string) (*senderContext, error) {
	if senderPhoneNumberID == "" {
		return nil, newError(ErrorInvalidInput, "sender_phone_number_id is required", nil)
	}
	sp, err := s.store.GetSenderPhoneNumber(ctx, senderPhoneNumberID)
	if err != nil {
		return nil, newError(ErrorInternal, "failed to get sender phone", err)
	}
	if sp == nil {
		return nil, newError(ErrorConfiguration, "sender phone "+senderPhoneNumberID+" not found", nil)
	}
	return s.senderFor(ctx, sp)
}

func (s *Service) loadSenderByPhone(ctx context.Context, businessPhone string) (*senderContext, error) {
	sp, err := s.store.GetSenderPhoneNumberByPhone(ctx, businessPhone)
	if err != nil {
		return nil, newError(ErrorInternal, "failed to get sender phone", err)
	}
	if sp == nil {
		return nil, newError(ErrorConfiguration, "no sender phone for "+businessPhone, nil)
	}
	return s.senderFor(ctx, sp)
}

func (s *Service) senderFor(ctx context.Context, sp *domain.SenderPhoneNumber) (*senderContext, error) {
	account, err := s.store.GetSenderAccount(ctx, sp.AccountID)
	if err != nil {
		return nil, newError(ErrorInternal, "failed to get sender account", err)
	}
	if account == nil {
		return nil, newError(ErrorConfiguration, "sender account "+sp.AccountID+" not found", nil)
	}

	token, err := s.authToken(ctx, account)
	if err != nil {
		return nil, err
	}
	resolved := *account
	resolved.AuthToken = token
	if !resolved.HasCredentials() {
		return nil, newError(ErrorConfiguration, "sender account "+account.ID+" has no credentials", nil)
	}

	return &senderContext{
		phone:    sp,
		account:  &resolved,
		provider: s.providers(&resolved, token),
	}, nil
}

func (s *Service) authToken(ctx context.Context, account *domain.SenderAccount) (string, error) {
	token, err := paramstore.Resolve(ctx, s.secrets, account.AuthToken)
	if err != nil {
		return "", newError(ErrorConfiguration, "auth token for account "+account.ID+" unavailable", err)
	}
	return token, nil
}

// remoteCtx bounds a single provider call.
func (s *Service) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.ProviderTimeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) publish(senderPhone string, evt domain.MessageEvent) {
	if s.publisher == nil || senderPhone == "" {
		return
	}
	evt.SenderPhone = phone.Normalize(senderPhone)
	if evt.Ts == 0 {
		evt.Ts = time.Now().UnixMilli()
	}
	s.publisher.PublishEvent(evt.SenderPhone, evt)
	log.Debug().
		Str("type", string(evt.Type)).
		Str("sender_phone", evt.SenderPhone).
		Msg("published message event")
}
