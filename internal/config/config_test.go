package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "PROVIDER_TIMEOUT_MS", "CONVERSATION_LIST_LIMIT", "RESOLVE_COALESCE", "BIND_SENDER_PARTICIPANT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 12*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 1000, cfg.ConversationListLimit)
	assert.True(t, cfg.ResolveCoalesce)
	assert.False(t, cfg.BindSenderParticipant)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("PROVIDER_TIMEOUT_MS", "15000")
	t.Setenv("RESOLVE_COALESCE", "false")
	t.Setenv("PUBLIC_URL", "https://crm.example.com/")
	t.Setenv("CONVERSATION_LIST_LIMIT", "not-a-number")

	cfg := Load()
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.False(t, cfg.ResolveCoalesce)
	assert.Equal(t, "https://crm.example.com", cfg.PublicURL)
	assert.Equal(t, 1000, cfg.ConversationListLimit)
}

const seedYAML = `
accounts:
  - id: acc1
    account_name: Main
    account_sid: AC123
    auth_token: ssm:/smscrm/twilio/token
    conversation_service_sid: IS123
    is_active: true
sender_phones:
  - id: sp1
    account_id: acc1
    phone_number: "+15550000001"
    is_primary: true
    is_active: true
contacts:
  - id: c1
    name: Ada
    phone: "5551234567"
`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Accounts, 1)
	assert.Equal(t, "IS123", seed.Accounts[0].ConversationServiceSID)
	assert.Equal(t, "ssm:/smscrm/twilio/token", seed.Accounts[0].AuthToken)
	assert.Equal(t, "twilio", string(seed.Accounts[0].Provider))
	require.Len(t, seed.SenderPhones, 1)
	assert.True(t, seed.SenderPhones[0].IsPrimary)
	require.Len(t, seed.Contacts, 1)
}

func TestLoadSeedEmptyPath(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	assert.Empty(t, seed.Accounts)
}

func TestParseSeedUnknownAccount(t *testing.T) {
	_, err := ParseSeed([]byte(`
sender_phones:
  - id: sp1
    account_id: missing
    phone_number: "+15550000001"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown account")
}
