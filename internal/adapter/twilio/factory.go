package twilio

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "SMSCRM_MODE"
	// ModeMock indicates the in-memory provider should be used.
	ModeMock = "MOCK"
)

var (
	sharedMockOnce sync.Once
	sharedMock     *MockClient
)

// NewProvider creates a provider based on the SMSCRM_MODE environment variable.
// If SMSCRM_MODE=MOCK, every account shares one in-memory MockClient; otherwise
// a real Client is returned.
func NewProvider(accountSID, authToken, baseURL string, timeout time.Duration) Provider {
	if os.Getenv(EnvMode) == ModeMock {
		sharedMockOnce.Do(func() {
			log.Warn().Msg("SMSCRM_MODE=MOCK detected, using in-memory twilio provider")
			sharedMock = NewMockClient()
		})
		return sharedMock
	}
	return NewClient(accountSID, authToken, timeout).WithBaseURL(baseURL)
}
