package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// PRSTATUS_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set PRSTATUS_SECRET_KEY")

// CredentialStore defines the driven port for encrypted credential persistence.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Set stores or replaces the credential for the given service.
	Set(ctx context.Context, service, plaintext string) error

	// SetAll stores several credentials atomically, so values that belong
	// together are never persisted half-updated.
	SetAll(ctx context.Context, values map[string]string) error

	// Get returns ("", nil) if no credential exists for that service.
	Get(ctx context.Context, service string) (string, error)

	List(ctx context.Context) ([]model.Credential, error)

	Delete(ctx context.Context, service string) error
}
