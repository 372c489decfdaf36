package service

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hebes/smscrm/internal/adapter/twilio"
	"github.com/hebes/smscrm/internal/config"
	"github.com/hebes/smscrm/internal/domain"
)

func TestResolveCreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	first, err := env.svc.ResolveConversation(ctx, "(555) 123-4567", "sp1")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, domain.ResolveSourceCreated, first.Source)
	assert.Equal(t, 1, first.ParticipantsAdded)
	assert.True(t, domain.IsRemoteKey(first.ConversationKey))

	env.addMessage(t, domain.Message{
		ID: "m1", Direction: domain.DirectionOutbound, From: testSenderPhone, To: testCustomer,
		Status: domain.MessageStatusSent, ConversationKey: first.ConversationKey, SenderPhoneNumberID: "sp1",
	})

	second, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationKey, second.ConversationKey)
	assert.Equal(t, domain.ResolveSourceLocal, second.Source)
	assert.Equal(t, 0, second.ParticipantsAdded)
	assert.False(t, second.Created)
	assert.Equal(t, 1, env.mock.ConversationCount())
	assert.Equal(t, 1, env.mock.Calls("CreateConversation"))
}

func TestResolveReusesRemoteWithoutLocalHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	first, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)

	second, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationKey, second.ConversationKey)
	assert.Equal(t, domain.ResolveSourceRemote, second.Source)
	assert.Equal(t, 0, second.ParticipantsAdded)
	assert.Equal(t, 1, env.mock.ConversationCount())
}

func TestResolvePrefersExactMatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	env.mock.Seed("", "other proxy", twilio.MessagingBinding{Address: testCustomer, ProxyAddress: testOtherProxy})
	exact := env.mock.Seed("", "exact", twilio.MessagingBinding{Address: testCustomer, ProxyAddress: testSenderPhone})

	res, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)
	assert.Equal(t, exact, res.ConversationKey)
	assert.Equal(t, domain.ResolveSourceRemote, res.Source)
	assert.Equal(t, 0, res.ParticipantsAdded)
	assert.Equal(t, 0, env.mock.Calls("CreateConversation"))
}

func TestResolveStaleLocalKeyFallsBackToSearch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	env.addMessage(t, domain.Message{
		ID: "m1", Direction: domain.DirectionInbound, From: testCustomer, To: testSenderPhone,
		Status: domain.MessageStatusReceived, ConversationKey: "CHdeadbeef", SenderPhoneNumberID: "sp1",
	})
	live := env.mock.Seed("", "live", twilio.MessagingBinding{Address: testCustomer, ProxyAddress: testSenderPhone})

	res, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)
	assert.Equal(t, live, res.ConversationKey)
	assert.Equal(t, domain.ResolveSourceRemote, res.Source)
}

func TestResolveLegacyLocalKeyIsNotTrusted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	env.addMessage(t, domain.Message{
		ID: "m1", Direction: domain.DirectionInbound, From: testCustomer, To: testSenderPhone,
		Status: domain.MessageStatusReceived, ConversationKey: "m1", SenderPhoneNumberID: "sp1",
	})

	res, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, domain.IsRemoteKey(res.ConversationKey))
}

func TestResolveConcurrentConverges(t *testing.T) {
	const n = 5
	ctx := context.Background()
	env := newTestEnv(t, func(cfg *config.Config) { cfg.ResolveCoalesce = false })

	// Hold every creation until all callers have created their own
	// conversation, so the bindings race.
	var created int32
	release := make(chan struct{})
	env.mock.OnCreateConversation = func(string) {
		if atomic.AddInt32(&created, 1) == n {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}

	keys := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
			errs[i] = err
			if err == nil {
				keys[i] = res.ConversationKey
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, keys[0], keys[i])
	}
	assert.Equal(t, 1, env.mock.ConversationCount())
	assert.True(t, env.mock.Has(keys[0]))
}

func TestResolveCoalescesConcurrentCalls(t *testing.T) {
	const n = 5
	ctx := context.Background()
	env := newTestEnv(t, func(cfg *config.Config) { cfg.ResolveCoalesce = true })

	keys := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
			if err == nil {
				keys[i] = res.ConversationKey
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.NotEmpty(t, keys[i])
		assert.Equal(t, keys[0], keys[i])
	}
	assert.Equal(t, 1, env.mock.ConversationCount())
}

// conflictProvider reports every new binding as held by the next holder.
type conflictProvider struct {
	*twilio.MockClient
	holders []string
	calls   int
}

func (p *conflictProvider) CreateParticipant(ctx context.Context, serviceSID, conversationSID, address, proxyAddress string) (*twilio.Participant, error) {
	holder := p.holders[p.calls%len(p.holders)]
	p.calls++
	return nil, &twilio.Error{
		Status:  http.StatusConflict,
		Code:    twilio.CodeBindingConflict,
		Message: "A binding for this participant and proxy address already exists in Conversation " + holder,
	}
}

func TestResolveDoubleConflictIsInconsistency(t *testing.T) {
	ctx := context.Background()
	mock := twilio.NewMockClient()
	a := mock.Seed("", "a", twilio.MessagingBinding{Address: "+15557770000", ProxyAddress: testSenderPhone})
	b := mock.Seed("", "b", twilio.MessagingBinding{Address: "+15557770001", ProxyAddress: testSenderPhone})
	provider := &conflictProvider{MockClient: mock, holders: []string{a, b}}
	env := newTestEnvWithProvider(t, mock, provider, nil)

	_, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	requireCode(t, err, ErrorInconsistency)

	assert.Equal(t, 1, mock.Calls("CreateConversation"))
	assert.Equal(t, 1, mock.Calls("DeleteConversation"))
	assert.Equal(t, 2, mock.ConversationCount())
}

func TestResolveBindFailureDeletesOrphan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.mock.FailOn("CreateParticipant", &twilio.Error{Status: http.StatusInternalServerError, Message: "boom"})

	_, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	e := requireCode(t, err, ErrorTransient)
	assert.True(t, e.Retryable())
	assert.Equal(t, 1, env.mock.Calls("DeleteConversation"))
	assert.Equal(t, 0, env.mock.ConversationCount())
}

func TestResolveErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{
			name: "missing service",
			err:  &twilio.Error{Status: http.StatusNotFound, Code: twilio.CodeServiceNotFound, Message: "Service not found"},
			code: ErrorConfiguration,
		},
		{
			name: "bad credentials",
			err:  &twilio.Error{Status: http.StatusUnauthorized, Code: twilio.CodeAuthentication, Message: "Authenticate"},
			code: ErrorConfiguration,
		},
		{
			name: "upstream outage",
			err:  &twilio.Error{Status: http.StatusServiceUnavailable, Message: "unavailable"},
			code: ErrorTransient,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			code: ErrorTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.mock.FailOn("ListConversations", tt.err)

			_, err := env.svc.ResolveConversation(context.Background(), testCustomer, "sp1")
			e := requireCode(t, err, tt.code)
			assert.Equal(t, tt.code == ErrorTransient, e.Retryable())
			assert.Equal(t, 0, env.mock.Calls("CreateConversation"))
		})
	}
}

func TestResolveCarriesProviderCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.FailOn("ListConversations", &twilio.Error{Status: http.StatusNotFound, Code: twilio.CodeServiceNotFound, Message: "Service not found"})

	_, err := env.svc.ResolveConversation(context.Background(), testCustomer, "sp1")
	e := requireCode(t, err, ErrorConfiguration)
	assert.Equal(t, twilio.CodeServiceNotFound, e.ProviderCode)
}

func TestResolveRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.ResolveConversation(ctx, "not a phone", "sp1")
	requireCode(t, err, ErrorInvalidInput)

	_, err = env.svc.ResolveConversation(ctx, testCustomer, "")
	requireCode(t, err, ErrorInvalidInput)

	_, err = env.svc.ResolveConversation(ctx, testCustomer, "missing")
	requireCode(t, err, ErrorConfiguration)
}

func TestResolveBindsSenderParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, func(cfg *config.Config) { cfg.BindSenderParticipant = true })

	res, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ParticipantsAdded)

	participants, err := env.mock.ListParticipants(ctx, "", res.ConversationKey)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, testCustomer, participants[0].Address())
	assert.Equal(t, testSenderPhone, participants[1].Address())
	assert.Equal(t, testSenderPhone, participants[1].ProxyAddress())

	// The sender binding is already held by the first conversation; the
	// second customer still resolves.
	other, err := env.svc.ResolveConversation(ctx, testOtherProxy, "sp1")
	require.NoError(t, err)
	assert.True(t, other.Created)
	assert.NotEqual(t, res.ConversationKey, other.ConversationKey)

	participants, err = env.mock.ListParticipants(ctx, "", other.ConversationKey)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, testOtherProxy, participants[0].Address())
}

// gatedProvider holds the first CreateParticipant call until release is
// closed, failing early if the call's context ends first.
type gatedProvider struct {
	*twilio.MockClient
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (p *gatedProvider) CreateParticipant(ctx context.Context, serviceSID, conversationSID, address, proxyAddress string) (*twilio.Participant, error) {
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.entered)
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.MockClient.CreateParticipant(ctx, serviceSID, conversationSID, address, proxyAddress)
}

func TestResolveCoalescedCallerSurvivesOtherCancellation(t *testing.T) {
	mock := twilio.NewMockClient()
	provider := &gatedProvider{MockClient: mock, entered: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnvWithProvider(t, mock, provider, func(cfg *config.Config) { cfg.ResolveCoalesce = true })

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := env.svc.ResolveConversation(ctxA, testCustomer, "sp1")
		errA <- err
	}()

	select {
	case <-provider.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("resolution never reached participant creation")
	}

	type outcome struct {
		res *domain.ResolveResult
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := env.svc.ResolveConversation(context.Background(), testCustomer, "sp1")
		doneB <- outcome{res, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		requireCode(t, err, ErrorTransient)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	// Let the second caller join the in-flight resolution before it finishes.
	time.Sleep(50 * time.Millisecond)
	close(provider.release)

	select {
	case out := <-doneB:
		require.NoError(t, out.err)
		assert.True(t, domain.IsRemoteKey(out.res.ConversationKey))
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, 1, mock.ConversationCount())
	assert.Equal(t, 1, mock.Calls("CreateConversation"))
}

// vanishingProvider deletes the first listed conversation right after
// listing, as a racing resolver's orphan cleanup would.
type vanishingProvider struct {
	*twilio.MockClient
}

func (p *vanishingProvider) ListConversations(ctx context.Context, serviceSID string, pageSize, limit int) ([]twilio.Conversation, error) {
	convs, err := p.MockClient.ListConversations(ctx, serviceSID, pageSize, limit)
	if err != nil || len(convs) == 0 {
		return convs, err
	}
	if err := p.MockClient.DeleteConversation(ctx, serviceSID, convs[0].SID); err != nil {
		return nil, err
	}
	return convs, nil
}

func TestResolveSkipsConversationDeletedDuringSearch(t *testing.T) {
	ctx := context.Background()
	mock := twilio.NewMockClient()
	orphan := mock.Seed("", "orphan")
	existing := mock.Seed("", "Conversation with "+testCustomer,
		twilio.MessagingBinding{Address: testCustomer, ProxyAddress: testSenderPhone})
	env := newTestEnvWithProvider(t, mock, &vanishingProvider{MockClient: mock}, nil)

	res, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	require.NoError(t, err)
	assert.Equal(t, existing, res.ConversationKey)
	assert.Equal(t, domain.ResolveSourceRemote, res.Source)
	assert.False(t, mock.Has(orphan))
	assert.Equal(t, 0, mock.Calls("CreateConversation"))
}

func TestResolveSearchStillFailsOnOtherParticipantErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.mock.Seed("", "other")
	env.mock.FailOn("ListParticipants", &twilio.Error{Status: http.StatusServiceUnavailable, Message: "down"})

	_, err := env.svc.ResolveConversation(ctx, testCustomer, "sp1")
	requireCode(t, err, ErrorTransient)
	assert.Equal(t, 0, env.mock.Calls("CreateConversation"))
}
