// Package secrets stores the upstream bearer token in HashiCorp Vault,
// dual-mode: when Vault is disabled it falls back to an in-memory cache
// so local development never needs a running Vault server.
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config names the Vault connection and the secret path the upstream
// bearer token lives at.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	SecretPath string
}

// Store wraps the Vault client used to read/write the upstream bearer
// token.
type Store struct {
	client *api.Client
	cfg    Config

	mu    sync.RWMutex
	cache string
}

// NewStore constructs a Store. With cfg.Enabled false it never dials
// Vault and serves entirely out of the in-memory cache.
func NewStore(cfg Config) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Store{client: client, cfg: cfg}, nil
}

// PutUpstreamToken stores the bearer token used to authorize against the
// upstream broker.
func (s *Store) PutUpstreamToken(ctx context.Context, token string) error {
	if !s.cfg.Enabled {
		s.mu.Lock()
		s.cache = token
		s.mu.Unlock()
		return nil
	}

	_, err := s.client.Logical().WriteWithContext(ctx, s.cfg.SecretPath, map[string]interface{}{
		"data": map[string]interface{}{"token": token},
	})
	if err != nil {
		return fmt.Errorf("write upstream token to vault: %w", err)
	}
	return nil
}

// UpstreamToken reads back the bearer token used to authorize against
// the upstream broker.
func (s *Store) UpstreamToken(ctx context.Context) (string, error) {
	if !s.cfg.Enabled {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.cache, nil
	}

	secret, err := s.client.Logical().ReadWithContext(ctx, s.cfg.SecretPath)
	if err != nil {
		return "", fmt.Errorf("read upstream token from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", nil
	}
	token, _ := data["token"].(string)
	return token, nil
}
