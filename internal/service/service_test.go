package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/domain"
	"github.com/hebes/smscrm/internal/repository"
	"github.com/hebes/smscrm/policy"
	"github.com/hebes/smscrm/tests/helpers"
)

const (
	testCustomer    = "+15551234567"
	testSenderPhone = "+15550000001"
	testOtherProxy  = "+15559999999"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.MessageEvent
}

func (p *recordingPublisher) PublishEvent(senderPhone string, evt domain.MessageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) Events() []domain.MessageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.MessageEvent(nil), p.events...)
}

func testConfig() *config.Config {
	return &config.Config{
		PublicURL:             "http://localhost:8080",
		ProviderTimeout:       2 * time.Second,
		ConversationListLimit: 1000,
		ConversationPageSize:  100,
		StatusStaleAfter:      10 * time.Minute,
	}
}

type testEnv struct {
	svc       *Service
	store     *repository.SQLiteStore
	mock      *twilio.MockClient
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	return newTestEnvWithProvider(t, twilio.NewMockClient(), nil, mutate)
}

func newTestEnvWithProvider(t *testing.T, mock *twilio.MockClient, provider twilio.Provider, mutate func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	db := helpers.NewTestSQLiteStore(t)
	helpers.SeedSender(t, db, testSenderPhone)

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)

	if provider == nil {
		provider = mock
	}
	pub := &recordingPublisher{}
	svc := New(db, StaticProvider(provider), nil, pub, cfg, engine)
	return &testEnv{svc: svc, store: db, mock: mock, publisher: pub}
}

func (e *testEnv) addMessage(t *testing.T, msg domain.Message) {
	t.Helper()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, e.store.CreateMessage(context.Background(), &msg))
}

func requireCode(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok, "expected *service.Error, got %T: %v", err, err)
	require.Equal(t, code, e.Code, "unexpected code, reason: %s", e.Reason)
	return e
}
