package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultConversationsURL = "https://conversations.twilio.com/v1"
	DefaultAPIURL           = "https://api.twilio.com/2010-04-01"
)

// Client is a Twilio REST client authenticated with an account SID and token.
type Client struct {
	accountSID       string
	authToken        string
	conversationsURL string
	apiURL           string
	httpClient       *http.Client
}

// NewClient creates a new Twilio client. timeout bounds every call.
func NewClient(accountSID, authToken string, timeout time.Duration) *Client {
	return &Client{
		accountSID:       accountSID,
		authToken:        authToken,
		conversationsURL: DefaultConversationsURL,
		apiURL:           DefaultAPIURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithBaseURL points both APIs at base. Used for test servers and proxies.
func (c *Client) WithBaseURL(base string) *Client {
	base = strings.TrimSuffix(base, "/")
	if base != "" {
		c.conversationsURL = base
		c.apiURL = base
	}
	return c
}

// AccountSID returns the account the client authenticates as.
func (c *Client) AccountSID() string {
	return c.accountSID
}

func (c *Client) conversationsPath(serviceSID string) string {
	if serviceSID != "" {
		return c.conversationsURL + "/Services/" + url.PathEscape(serviceSID) + "/Conversations"
	}
	return c.conversationsURL + "/Conversations"
}

// ListConversations lists conversations, following pages until limit is
// reached. limit <= 0 means no limit.
func (c *Client) ListConversations(ctx context.Context, serviceSID string, pageSize, limit int) ([]Conversation, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if limit > 0 && pageSize > limit {
		pageSize = limit
	}
	next := c.conversationsPath(serviceSID) + "?PageSize=" + strconv.Itoa(pageSize)

	var out []Conversation
	for next != "" {
		var page conversationPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		for _, conv := range page.Conversations {
			out = append(out, conv)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		next = page.Meta.NextPageURL
	}
	return out, nil
}

// CreateConversation creates a conversation with the given friendly name.
func (c *Client) CreateConversation(ctx context.Context, serviceSID, friendlyName string) (*Conversation, error) {
	form := url.Values{}
	if friendlyName != "" {
		form.Set("FriendlyName", friendlyName)
	}
	var conv Conversation
	if err := c.do(ctx, http.MethodPost, c.conversationsPath(serviceSID), form, &conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

// DeleteConversation deletes a conversation and its participants.
func (c *Client) DeleteConversation(ctx context.Context, serviceSID, conversationSID string) error {
	endpoint := c.conversationsPath(serviceSID) + "/" + url.PathEscape(conversationSID)
	if err := c.do(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", conversationSID, err)
	}
	return nil
}

// ListParticipants lists every participant of a conversation.
func (c *Client) ListParticipants(ctx context.Context, serviceSID, conversationSID string) ([]Participant, error) {
	next := c.conversationsPath(serviceSID) + "/" + url.PathEscape(conversationSID) + "/Participants?PageSize=100"

	var out []Participant
	for next != "" {
		var page participantPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list participants of %s: %w", conversationSID, err)
		}
		out = append(out, page.Participants...)
		next = page.Meta.NextPageURL
	}
	return out, nil
}

// CreateParticipant binds address (through proxyAddress) to a conversation.
// Binding errors are returned as *Error so callers can inspect the code.
func (c *Client) CreateParticipant(ctx context.Context, serviceSID, conversationSID, address, proxyAddress string) (*Participant, error) {
	form := url.Values{}
	form.Set("MessagingBinding.Address", address)
	if proxyAddress != "" {
		form.Set("MessagingBinding.ProxyAddress", proxyAddress)
	}
	endpoint := c.conversationsPath(serviceSID) + "/" + url.PathEscape(conversationSID) + "/Participants"

	var p Participant
	if err := c.do(ctx, http.MethodPost, endpoint, form, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SendMessage sends an SMS through the Messages API.
func (c *Client) SendMessage(ctx context.Context, params SendParams) (*Message, error) {
	form := url.Values{}
	form.Set("To", params.To)
	form.Set("From", params.From)
	form.Set("Body", params.Body)
	if params.StatusCallback != "" {
		form.Set("StatusCallback", params.StatusCallback)
	}
	endpoint := c.apiURL + "/Accounts/" + url.PathEscape(c.accountSID) + "/Messages.json"

	var msg Message
	if err := c.do(ctx, http.MethodPost, endpoint, form, &msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &msg, nil
}

// FetchMessage retrieves the current state of a sent message.
func (c *Client) FetchMessage(ctx context.Context, messageSID string) (*Message, error) {
	endpoint := c.apiURL + "/Accounts/" + url.PathEscape(c.accountSID) + "/Messages/" + url.PathEscape(messageSID) + ".json"

	var msg Message
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &msg); err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", messageSID, err)
	}
	return &msg, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, form != nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, hasForm bool) {
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")
	if hasForm {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
}
