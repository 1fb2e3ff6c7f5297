package secrets

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/dkoffi/marketplace-payments/internal/adapters/ports"
)

// VaultConfig contains configuration for the HashiCorp Vault adapter
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Token for token authentication
	Token string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV v2 secrets engine mount path (default: "secret")
	MountPath string

	// Cache TTL
	CacheTTL time.Duration

	// Enable caching
	EnableCache bool
}

// DefaultVaultConfig returns default configuration for the Vault adapter
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:     address,
		MountPath:   "secret",
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

// vaultAdapter implements the SecretManagerAdapter port for HashiCorp Vault
type vaultAdapter struct {
	client *vault.Client
	config *VaultConfig
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultAdapter creates a new HashiCorp Vault adapter
func NewVaultAdapter(cfg *VaultConfig, logger *zap.Logger) (ports.SecretManagerAdapter, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	client.SetToken(cfg.Token)

	logger.Info("Vault adapter initialized",
		zap.String("address", cfg.Address),
		zap.String("mount_path", cfg.MountPath),
	)

	return &vaultAdapter{
		client: client,
		config: cfg,
		logger: logger,
		cache: &secretCache{
			entries: make(map[string]*cacheEntry),
			enabled: cfg.EnableCache,
			ttl:     cfg.CacheTTL,
		},
	}, nil
}

// GetSecret retrieves a secret from the KV v2 engine.
// Path format: "marketplace-payments/gateway/moneroo" with the value under
// the "value" key.
func (a *vaultAdapter) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached := a.cache.get(path); cached != nil {
		a.logger.Debug("Secret retrieved from cache", zap.String("path", path))
		return cached, nil
	}

	kv := a.client.KVv2(a.config.MountPath)
	vaultSecret, err := kv.Get(ctx, path)
	if err != nil {
		a.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get secret %s: %w", path, err)
	}

	value, ok := vaultSecret.Data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("secret %s has no string value field", path)
	}

	secret := &ports.Secret{
		Value:    value,
		Version:  fmt.Sprintf("%d", vaultSecret.VersionMetadata.Version),
		Metadata: make(map[string]string),
	}
	for k, v := range vaultSecret.Data {
		if k == "value" {
			continue
		}
		if s, ok := v.(string); ok {
			secret.Metadata[k] = s
		}
	}

	a.cache.set(path, secret)

	return secret, nil
}

// PutSecret creates or updates a secret in the KV v2 engine
func (a *vaultAdapter) PutSecret(ctx context.Context, path string, value string, metadata map[string]string) (string, error) {
	data := map[string]interface{}{"value": value}
	for k, v := range metadata {
		data[k] = v
	}

	kv := a.client.KVv2(a.config.MountPath)
	written, err := kv.Put(ctx, path, data)
	if err != nil {
		return "", fmt.Errorf("failed to put secret %s: %w", path, err)
	}

	a.logger.Info("Secret updated in Vault",
		zap.String("path", path),
		zap.Int("version", written.VersionMetadata.Version),
	)
	return fmt.Sprintf("%d", written.VersionMetadata.Version), nil
}
