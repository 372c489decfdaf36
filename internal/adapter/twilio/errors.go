package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Provider error codes the service reacts to.
const (
	CodeServiceNotFound      = 20001
	CodeAuthentication       = 20003
	CodeResourceNotFound     = 20404
	CodeBindingConflict      = 50416
	CodeParticipantDuplicate = 50433
)

// Error is an error response from the Twilio REST API.
type Error struct {
	Status   int    `json:"status"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("twilio error [%d] %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("twilio error [%d]: %s", e.Status, e.Message)
}

func parseError(status int, body []byte) error {
	apiErr := &Error{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	apiErr.Status = status
	return apiErr
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

var conflictPattern = regexp.MustCompile(`Conversation\s+([A-Za-z0-9]+)`)

// ParseBindingConflict reports whether err says the binding is already held
// by another conversation, and returns that conversation's SID. The provider
// only names the holder in the message text, e.g.
// "A binding for this participant and proxy address already exists in Conversation CH5d6...".
func ParseBindingConflict(err error) (string, bool) {
	apiErr, ok := AsError(err)
	if !ok {
		return "", false
	}
	idx := strings.Index(apiErr.Message, "already exists in Conversation")
	if idx < 0 {
		return "", false
	}
	m := conflictPattern.FindStringSubmatch(apiErr.Message[idx:])
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// IsAlreadyParticipant reports whether err says the address is already a
// participant of the target conversation.
func IsAlreadyParticipant(err error) bool {
	apiErr, ok := AsError(err)
	if !ok {
		return false
	}
	if _, conflict := ParseBindingConflict(err); conflict {
		return false
	}
	return apiErr.Code == CodeParticipantDuplicate ||
		(apiErr.Status == http.StatusConflict && strings.Contains(apiErr.Message, "already exists"))
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	apiErr, ok := AsError(err)
	return ok && (apiErr.Status == http.StatusNotFound || apiErr.Code == CodeResourceNotFound)
}

// IsConfiguration reports whether err points at account setup: a missing
// conversation service or rejected credentials.
func IsConfiguration(err error) bool {
	apiErr, ok := AsError(err)
	if !ok {
		return false
	}
	if apiErr.Code == CodeServiceNotFound || apiErr.Code == CodeAuthentication {
		return true
	}
	if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
		return true
	}
	// 404 messages echo the request path, which names the service on
	// service-scoped calls.
	if IsNotFound(err) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "service") && apiErr.Status < 500
}

// IsTransient reports whether err is worth retrying later: timeouts,
// network failures, throttling and provider 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := AsError(err); ok {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
