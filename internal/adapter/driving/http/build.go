package httphandler

import (
	"context"

	"github.com/ericfisherdev/prstatus/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Build     = (*causeBuild)(nil)
	_ driven.BuildHost = StaticHost("")
)

// StaticHost is a BuildHost with a fixed root URL.
type StaticHost string

// RootURL returns the configured root URL.
func (h StaticHost) RootURL() string { return string(h) }

// causeBuild is the Build reported by an event request. Descriptions are
// recorded against the registered cause.
type causeBuild struct {
	store   driven.CauseStore
	buildID string
	url     string
}

func (b *causeBuild) URL() string { return b.url }

func (b *causeBuild) SetDescription(ctx context.Context, description string) error {
	return b.store.SetDescription(ctx, b.buildID, description)
}
