package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (e.g., gateway API key)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManagerAdapter defines the port for retrieving secrets from a secret
// management service. Backends: AWS Secrets Manager, HashiCorp Vault, or a
// local env-backed store for development.
type SecretManagerAdapter interface {
	// GetSecret retrieves a secret by its path/name.
	// Path format depends on implementation:
	//   - AWS: "marketplace-payments/gateway/moneroo/api-key"
	//   - Vault: "secret/data/marketplace-payments/gateway/moneroo"
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// PutSecret creates or updates a secret (rotation operations).
	// Returns the new version identifier.
	PutSecret(ctx context.Context, path string, value string, metadata map[string]string) (version string, err error)
}
