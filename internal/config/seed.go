package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hebes/smscrm/internal/domain"
)

// Seed is the startup data loaded from SEED_FILE.
type Seed struct {
	Accounts     []domain.SenderAccount     `yaml:"accounts"`
	SenderPhones []domain.SenderPhoneNumber `yaml:"sender_phones"`
	Contacts     []domain.Contact           `yaml:"contacts"`
}

// LoadSeed reads a YAML seed file. An empty path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return &Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML seed document and checks references between
// sender phones and accounts.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	accounts := make(map[string]bool, len(seed.Accounts))
	for i, a := range seed.Accounts {
		if a.ID == "" || a.AccountSID == "" {
			return nil, fmt.Errorf("seed account %d: id and account_sid are required", i)
		}
		if a.Provider == "" {
			seed.Accounts[i].Provider = domain.ProviderTwilio
		}
		accounts[a.ID] = true
	}
	for i, p := range seed.SenderPhones {
		if p.ID == "" || p.PhoneNumber == "" {
			return nil, fmt.Errorf("seed sender phone %d: id and phone_number are required", i)
		}
		if !accounts[p.AccountID] {
			return nil, fmt.Errorf("seed sender phone %s: unknown account %q", p.ID, p.AccountID)
		}
	}
	for i, c := range seed.Contacts {
		if c.ID == "" || c.Phone == "" {
			return nil, fmt.Errorf("seed contact %d: id and phone are required", i)
		}
	}
	return &seed, nil
}
