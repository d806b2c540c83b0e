package app

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zouwei/moraya-speechd/internal/stt"
)

// ProviderConfig is one named speech-provider entry from the providers file.
// The API key comes either from api_key_env (preferred) or an inline api_key.
type ProviderConfig struct {
	ID        string `yaml:"id"`
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Language  string `yaml:"language,omitempty"`
	Model     string `yaml:"model,omitempty"`
	Region    string `yaml:"region,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
}

type providersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadProviders reads and validates the providers YAML file.
func LoadProviders(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pf providersFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool)
	for i := range pf.Providers {
		p := &pf.Providers[i]
		if p.ID == "" {
			return nil, fmt.Errorf("%s: provider entry %d has no id", path, i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%s: duplicate provider id %q", path, p.ID)
		}
		seen[p.ID] = true
		if p.Provider == "" {
			return nil, fmt.Errorf("%s: provider %q has no provider type", path, p.ID)
		}
		if p.Language == "" {
			p.Language = "en"
		}
	}
	return pf.Providers, nil
}

// KeyCache memoizes API keys resolved from the environment so a revoked
// credential can be purged and re-read on next use.
type KeyCache struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[string]string)}
}

// Resolve returns the API key for a provider entry. Inline keys bypass the
// cache entirely.
func (c *KeyCache) Resolve(p ProviderConfig) string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv == "" {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.keys[p.APIKeyEnv]; ok {
		return k
	}
	k := os.Getenv(p.APIKeyEnv)
	c.keys[p.APIKeyEnv] = k
	return k
}

// Forget drops the cached key for a provider entry.
func (c *KeyCache) Forget(p ProviderConfig) {
	if p.APIKeyEnv == "" {
		return
	}
	c.mu.Lock()
	delete(c.keys, p.APIKeyEnv)
	c.mu.Unlock()
}

// sttConfig builds the dial config for a provider entry.
func (p ProviderConfig) sttConfig(key string) stt.Config {
	return stt.Config{
		Provider: p.Provider,
		BaseURL:  p.BaseURL,
		APIKey:   key,
		Language: p.Language,
		Model:    p.Model,
		Region:   p.Region,
	}
}
