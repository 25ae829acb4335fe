package services

import (
	"errors"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "imageforge"
	keyAccount  = "huggingface"
	keyEnvVar   = "HUGGINGFACE_API_KEY"
)

// KeyringService resolves the Hugging Face API key. The environment
// variable wins; the OS keyring holds a key stored through the API.
type KeyringService struct {
	envKey string
}

func NewKeyringService(envKey string) *KeyringService {
	return &KeyringService{envKey: envKey}
}

// APIKey returns the active key: the configured environment value if
// present, otherwise the stored keyring entry. An empty result with a
// nil error means no key is configured anywhere.
func (s *KeyringService) APIKey() (string, error) {
	if s.envKey != "" {
		return s.envKey, nil
	}
	if v := os.Getenv(keyEnvVar); v != "" {
		return v, nil
	}

	key, err := keyring.Get(serviceName, keyAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *KeyringService) StoreApiKey(apiKey string) error {
	if apiKey == "" {
		return errors.New("API key is empty")
	}
	return keyring.Set(serviceName, keyAccount, apiKey)
}

func (s *KeyringService) DeleteApiKey() error {
	err := keyring.Delete(serviceName, keyAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasKey reports whether any key source currently resolves.
func (s *KeyringService) HasKey() bool {
	key, err := s.APIKey()
	return err == nil && key != ""
}
