package twilio

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient is an in-memory Provider. Like the real service it enforces
// that an (address, proxy address) binding belongs to at most one
// conversation.
type MockClient struct {
	mu            sync.Mutex
	conversations map[string]*mockConversation
	order         []string
	bindings      map[string]string
	sent          []Message
	calls         map[string]int
	failures      map[string]error

	// OnCreateConversation runs after a conversation is created and before
	// the call returns. Tests use it to interleave concurrent resolutions.
	OnCreateConversation func(sid string)
}

type mockConversation struct {
	conv         Conversation
	serviceSID   string
	participants []Participant
}

// Ensure MockClient implements Provider interface.
var _ Provider = (*MockClient)(nil)

// NewMockClient creates an empty mock provider.
func NewMockClient() *MockClient {
	return &MockClient{
		conversations: make(map[string]*mockConversation),
		bindings:      make(map[string]string),
		calls:         make(map[string]int),
		failures:      make(map[string]error),
	}
}

func newSID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func bindingKey(address, proxy string) string {
	return address + "|" + proxy
}

// FailOn makes every subsequent call to op return err. A nil err clears it.
func (m *MockClient) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked.
func (m *MockClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ConversationCount returns the number of live conversations.
func (m *MockClient) ConversationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// Has reports whether a conversation exists.
func (m *MockClient) Has(sid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conversations[sid]
	return ok
}

// Sent returns the messages sent so far.
func (m *MockClient) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// Seed creates a conversation with the given bindings and returns its SID.
func (m *MockClient) Seed(serviceSID, friendlyName string, bindings ...MessagingBinding) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid := m.createLocked(serviceSID, friendlyName)
	for _, b := range bindings {
		m.bindLocked(sid, b.Address, b.ProxyAddress)
	}
	return sid
}

func (m *MockClient) enter(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	return m.failures[op]
}

func (m *MockClient) createLocked(serviceSID, friendlyName string) string {
	sid := newSID("CH")
	m.conversations[sid] = &mockConversation{
		conv: Conversation{
			SID:            sid,
			ChatServiceSID: serviceSID,
			FriendlyName:   friendlyName,
			State:          "active",
			DateCreated:    time.Now().UTC(),
		},
		serviceSID: serviceSID,
	}
	m.order = append(m.order, sid)
	return sid
}

func (m *MockClient) bindLocked(sid, address, proxy string) Participant {
	p := Participant{
		SID:             newSID("MB"),
		ConversationSID: sid,
		MessagingBinding: &MessagingBinding{
			Type:         "sms",
			Address:      address,
			ProxyAddress: proxy,
		},
	}
	c := m.conversations[sid]
	c.participants = append(c.participants, p)
	m.bindings[bindingKey(address, proxy)] = sid
	return p
}

func notFound(path string) error {
	return &Error{
		Status:  http.StatusNotFound,
		Code:    CodeResourceNotFound,
		Message: fmt.Sprintf("The requested resource %s was not found", path),
	}
}

func (m *MockClient) ListConversations(ctx context.Context, serviceSID string, pageSize, limit int) ([]Conversation, error) {
	if err := m.enter("ListConversations"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Conversation
	for _, sid := range m.order {
		c, ok := m.conversations[sid]
		if !ok || c.serviceSID != serviceSID {
			continue
		}
		out = append(out, c.conv)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockClient) CreateConversation(ctx context.Context, serviceSID, friendlyName string) (*Conversation, error) {
	if err := m.enter("CreateConversation"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	sid := m.createLocked(serviceSID, friendlyName)
	conv := m.conversations[sid].conv
	hook := m.OnCreateConversation
	m.mu.Unlock()

	if hook != nil {
		hook(sid)
	}
	return &conv, nil
}

func (m *MockClient) DeleteConversation(ctx context.Context, serviceSID, conversationSID string) error {
	if err := m.enter("DeleteConversation"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationSID]
	if !ok {
		return notFound("/Conversations/" + conversationSID)
	}
	for _, p := range c.participants {
		delete(m.bindings, bindingKey(p.Address(), p.ProxyAddress()))
	}
	delete(m.conversations, conversationSID)
	return nil
}

func (m *MockClient) ListParticipants(ctx context.Context, serviceSID, conversationSID string) ([]Participant, error) {
	if err := m.enter("ListParticipants"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationSID]
	if !ok {
		return nil, notFound("/Conversations/" + conversationSID + "/Participants")
	}
	return append([]Participant(nil), c.participants...), nil
}

func (m *MockClient) CreateParticipant(ctx context.Context, serviceSID, conversationSID, address, proxyAddress string) (*Participant, error) {
	if err := m.enter("CreateParticipant"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conversationSID]; !ok {
		return nil, notFound("/Conversations/" + conversationSID + "/Participants")
	}
	if holder, ok := m.bindings[bindingKey(address, proxyAddress)]; ok {
		if holder == conversationSID {
			return nil, &Error{
				Status:  http.StatusConflict,
				Code:    CodeParticipantDuplicate,
				Message: "Participant already exists",
			}
		}
		return nil, &Error{
			Status:  http.StatusConflict,
			Code:    CodeBindingConflict,
			Message: "A binding for this participant and proxy address already exists in Conversation " + holder,
		}
	}
	p := m.bindLocked(conversationSID, address, proxyAddress)
	return &p, nil
}

func (m *MockClient) SendMessage(ctx context.Context, params SendParams) (*Message, error) {
	if err := m.enter("SendMessage"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := Message{
		SID:    newSID("SM"),
		To:     params.To,
		From:   params.From,
		Body:   params.Body,
		Status: "queued",
	}
	m.sent = append(m.sent, msg)
	return &msg, nil
}

func (m *MockClient) FetchMessage(ctx context.Context, messageSID string) (*Message, error) {
	if err := m.enter("FetchMessage"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.sent {
		if msg.SID == messageSID {
			out := msg
			return &out, nil
		}
	}
	return nil, notFound("/Messages/" + messageSID + ".json")
}

// SetMessageStatus changes the status reported for a sent message.
func (m *MockClient) SetMessageStatus(messageSID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sent {
		if m.sent[i].SID == messageSID {
			m.sent[i].Status = status
		}
	}
}
