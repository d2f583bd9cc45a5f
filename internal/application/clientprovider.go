package application

import (
	"sync"

	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// HostingClientProvider holds the live HostingClient so that credential
// rotation takes effect without a restart.
type HostingClientProvider struct {
	mu     sync.RWMutex
	client driven.HostingClient
}

// NewHostingClientProvider creates a provider with an initial client. client
// may be nil when no credentials are available at startup.
func NewHostingClientProvider(client driven.HostingClient) *HostingClientProvider {
	return &HostingClientProvider{client: client}
}

// Get returns the current client, or nil.
func (p *HostingClientProvider) Get() driven.HostingClient {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

// Replace swaps in client. In-flight calls keep the client they already hold.
func (p *HostingClientProvider) Replace(client driven.HostingClient) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// HasClient reports whether a non-nil client is held.
func (p *HostingClientProvider) HasClient() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil
}
