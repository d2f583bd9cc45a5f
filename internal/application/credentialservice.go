package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// Credential store service names.
const (
	ServiceBitbucketUsername = "bitbucket.username"
	ServiceBitbucketPassword = "bitbucket.password"
)

// ErrMissingCredentials is returned when a rotation is missing the username
// or password.
var ErrMissingCredentials = errors.New("username and password are required")

// ClientFactory builds a HostingClient for the given Bitbucket credentials.
type ClientFactory func(username, password string) (driven.HostingClient, error)

// CredentialService rotates Bitbucket credentials: the new client is built
// first, then the credentials are persisted and the live client is swapped.
type CredentialService struct {
	store    driven.CredentialStore // nil disables persistence.
	provider *HostingClientProvider
	factory  ClientFactory
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(store driven.CredentialStore, provider *HostingClientProvider, factory ClientFactory) *CredentialService {
	return &CredentialService{store: store, provider: provider, factory: factory}
}

// Rotate replaces the live client with one using username and password.
// When the store has no encryption key the new client still goes live but
// the credentials are not persisted across restarts.
func (s *CredentialService) Rotate(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}

	client, err := s.factory(username, password)
	if err != nil {
		return fmt.Errorf("building bitbucket client: %w", err)
	}

	if err := s.persist(ctx, username, password); err != nil {
		if !errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			return err
		}
		clog.FromContext(ctx).Warn("credentials not persisted", "error", err)
	}

	s.provider.Replace(client)
	clog.FromContext(ctx).Info("bitbucket credentials rotated", "username", username)
	return nil
}

// Restore loads persisted credentials and swaps in a client built from them.
// It reports false when nothing usable is stored.
func (s *CredentialService) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}

	username, err := s.store.Get(ctx, ServiceBitbucketUsername)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading stored username: %w", err)
	}
	password, err := s.store.Get(ctx, ServiceBitbucketPassword)
	if err != nil {
		return false, fmt.Errorf("loading stored password: %w", err)
	}
	if username == "" || password == "" {
		return false, nil
	}

	client, err := s.factory(username, password)
	if err != nil {
		return false, fmt.Errorf("building bitbucket client: %w", err)
	}
	s.provider.Replace(client)

	clog.FromContext(ctx).Info("restored stored bitbucket credentials", "username", username)
	return true, nil
}

func (s *CredentialService) persist(ctx context.Context, username, password string) error {
	if s.store == nil {
		return driven.ErrEncryptionKeyNotSet
	}
	err := s.store.SetAll(ctx, map[string]string{
		ServiceBitbucketUsername: username,
		ServiceBitbucketPassword: password,
	})
	if err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	return nil
}
