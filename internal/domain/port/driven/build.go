package driven

import "context"

// Build is the host's handle on a single running build.
type Build interface {
	// URL is the build's path relative to the host root, e.g. "/job/x/1/".
	URL() string
	SetDescription(ctx context.Context, description string) error
}

// BuildHost exposes host-wide settings of the embedding build system.
type BuildHost interface {
	// RootURL returns the configured absolute root URL of the host, or "" if
	// none is set.
	RootURL() string
}
