package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hebes/smscrm/internal/domain"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status       int    `json:"-"`
	Message      string `json:"error"`
	Code         string `json:"code,omitempty"`
	ProviderCode int    `json:"provider_code,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.ProviderCode != 0 {
		msg += fmt.Sprintf(" (provider code %d)", e.ProviderCode)
	}
	return msg
}

// Client calls the smscrm JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StreamURL returns the websocket URL of the event stream.
func (c *Client) StreamURL(senderPhone string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	u += "/v1/stream"
	if senderPhone != "" {
		u += "?" + url.Values{"sender_phone": {senderPhone}}.Encode()
	}
	return u
}

func (c *Client) Resolve(ctx context.Context, customerPhone, senderPhoneNumberID string) (*domain.ResolveResult, error) {
	var out domain.ResolveResult
	err := c.do(ctx, http.MethodPost, "/v1/conversations/resolve", domain.ResolveRequest{
		CustomerPhone:       customerPhone,
		SenderPhoneNumberID: senderPhoneNumberID,
	}, &out)
	return &out, err
}

func (c *Client) ListConversations(ctx context.Context, senderPhone string) ([]domain.Conversation, error) {
	path := "/v1/conversations"
	if senderPhone != "" {
		path += "?" + url.Values{"senderPhone": {senderPhone}}.Encode()
	}
	var out struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Conversations, err
}

func (c *Client) ConversationMessages(ctx context.Context, key string) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(key)+"/messages", nil, &out)
	return out.Messages, err
}

func (c *Client) DeleteConversation(ctx context.Context, key string) (*domain.DeleteResult, error) {
	var out domain.DeleteResult
	err := c.do(ctx, http.MethodDelete, "/v1/conversations/"+url.PathEscape(key), nil, &out)
	return &out, err
}

func (c *Client) Send(ctx context.Context, req domain.SendRequest) (*domain.SendResponse, error) {
	var out domain.SendResponse
	err := c.do(ctx, http.MethodPost, "/v1/messages/send", req, &out)
	return &out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
